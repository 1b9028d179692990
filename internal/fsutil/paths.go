package fsutil

import (
	"os/exec"
	"strings"
)

// IsPath reports whether a command specification already looks like a path
// (contains a path separator).
func IsPath(cmd string) bool {
	return strings.ContainsAny(cmd, "/\\")
}

// ResolveExecutable resolves a bare executable name to an absolute path via
// PATH lookup, needed on hosts where the subprocess exec call does not
// search PATH itself. Anything that already looks like a path is left
// untouched.
func ResolveExecutable(cmd string) (string, error) {
	if IsPath(cmd) {
		return cmd, nil
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// WinToPosix rewrites backslashes to forward slashes, used when handing a
// destination path to the archiver on a Windows host.
func WinToPosix(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

//go:build windows

package fsutil

import (
	"os"

	"github.com/pkg/errors"
)

// Lstat on Windows falls back to os.Lstat since there is no POSIX stat
// structure. Device ID, inode, uid, and gid are left at zero: they can't
// be cheaply accessed in all cases on this platform, so hard-link
// tracking and cross-device reasoning are unavailable here.
func Lstat(path string) (*Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to stat path")
	}
	mode := ModeTypeFile
	if info.IsDir() {
		mode = ModeTypeDirectory
	} else if info.Mode()&os.ModeSymlink != 0 {
		mode = ModeTypeSymbolicLink
	}
	mode |= Mode(info.Mode().Perm())
	nlink := uint64(1)
	return &Metadata{
		Mode:      mode,
		Size:      uint64(info.Size()),
		ModTimeNs: info.ModTime().UnixNano(),
		Nlink:     nlink,
	}, nil
}

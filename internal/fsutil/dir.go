package fsutil

import (
	"os"

	"github.com/pkg/errors"
)

// ReadDirNames returns the raw entry names of the directory at path, in
// whatever order the operating system supplies them (callers that need a
// stable order, such as the checksum engine, sort independently). It
// returns names rather than os.FileInfo values, since every caller
// immediately Lstats each child itself to avoid trusting a potentially
// symlink-following os.FileInfo.
func ReadDirNames(path string) ([]string, error) {
	directory, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open directory")
	}
	defer directory.Close()

	names, err := directory.Readdirnames(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read directory contents")
	}
	return names, nil
}

//go:build !windows

package fsutil

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Lstat takes a metadata snapshot of path without following a trailing
// symbolic link.
func Lstat(path string) (*Metadata, error) {
	var raw unix.Stat_t
	if err := unix.Lstat(path, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to stat path")
	}
	return &Metadata{
		Mode:      Mode(raw.Mode),
		Size:      uint64(raw.Size),
		ModTimeNs: raw.Mtim.Nano(),
		UID:       raw.Uid,
		GID:       raw.Gid,
		DeviceID:  uint64(raw.Dev),
		Inode:     raw.Ino,
		Nlink:     uint64(raw.Nlink),
	}, nil
}

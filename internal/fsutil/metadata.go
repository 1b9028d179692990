package fsutil

// Metadata is the raw stat snapshot taken for a single filesystem entry
// during a walk. It carries exactly the fields the checksum engine and
// hard-link tracker need: mode, size, mtime in nanoseconds, uid, gid,
// device id, inode number, and link count. Name is stored separately by
// callers since the same Metadata value is reused for children addressed
// by different relative paths. Mtime stays a raw nanosecond integer
// rather than a time.Time so checksum input never passes through a
// conversion.
type Metadata struct {
	Mode      Mode
	Size      uint64
	ModTimeNs int64
	UID       uint32
	GID       uint32
	DeviceID  uint64
	Inode     uint64
	Nlink     uint64
}

// Package checksum implements the stable, configuration-tagged digest
// scheme that drives incremental sync decisions: a per-file digest, a
// per-directory digest aggregating sorted children, and a group digest
// over an arbitrary sorted sibling set (used both to verify a previously
// stored pack and to compute a new one). Digests come in two passes,
// metadata-only and content-inclusive, so unchanged files can be
// short-circuited cheaply while content verification stays available.
package checksum

import "hash"

// Config carries every setting that affects digest output, so that no
// process-wide mutable state is needed. Two Configs differing in any of
// UseFileChecksum, UseOwner, or UseDirectoryMtime must produce different
// digests for any non-empty tree; the 4-byte Header below is what
// guarantees that.
type Config struct {
	// UseFileChecksum selects content mode: pack entries get both a
	// metadata-only and a content-inclusive digest, and unchanged content
	// (not just unchanged stat fields) is required to reuse a pack.
	UseFileChecksum bool
	// UseOwner includes uid/gid in every digest.
	UseOwner bool
	// UseDirectoryMtime includes a directory's own modification time in its
	// digest (directories are otherwise identified purely by name and mode,
	// since their mtime changes whenever a child is added or removed).
	UseDirectoryMtime bool
	// HashFactory constructs a new hash.Hash for each digest computation.
	// It is a factory value, not a shared instance.
	HashFactory func() hash.Hash
	// HashName is the registered name of the hash algorithm (e.g. "sha1"),
	// recorded in the metadata document's checksum configuration so that a
	// later read can reconstruct a compatible Config.
	HashName string
	// Warn, if non-nil, is called with a human-readable message whenever a
	// per-file or per-directory read fails during digest computation. A nil
	// Warn silently represents the failure as an empty digest.
	Warn func(format string, args ...interface{})
}

func (c Config) warnf(format string, args ...interface{}) {
	if c.Warn != nil {
		c.Warn(format, args...)
	}
}

// Header returns the 4-byte configuration header mixed into every digest
// computed under this Config: bit 0 is content mode, bit 1 is ownership
// inclusion, bit 2 is directory-mtime inclusion, remaining bits are zero.
func (c Config) Header() [4]byte {
	var b byte
	if c.UseFileChecksum {
		b |= 1 << 0
	}
	if c.UseOwner {
		b |= 1 << 1
	}
	if c.UseDirectoryMtime {
		b |= 1 << 2
	}
	return [4]byte{b, 0, 0, 0}
}

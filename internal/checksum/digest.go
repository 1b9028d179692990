package checksum

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/adrien1018/metarclone/internal/fsutil"
)

// WalkResult accumulates roll-up counters and hard-link candidates while a
// group or subtree digest is computed. It is optional everywhere it's
// accepted: passing nil skips accumulation entirely (used when only the
// digest value itself is wanted).
type WalkResult struct {
	TotalSize  uint64
	TotalFiles uint64
	// HardLinks maps a (device, inode) key to one path observed for it.
	HardLinks map[[2]uint64][]byte
}

// NewWalkResult creates an empty WalkResult ready for accumulation.
func NewWalkResult() *WalkResult {
	return &WalkResult{HardLinks: make(map[[2]uint64][]byte)}
}

// NamedMeta pairs a raw child name with its stat snapshot, the unit that
// ChecksumWalk and the group digest operate over.
type NamedMeta struct {
	Name []byte
	Meta *fsutil.Metadata
}

func putUint128LE(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf[0:8], v)
	for i := 8; i < 16; i++ {
		buf[i] = 0
	}
}

func putInt128LE(buf []byte, v int64) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(v))
	var ext byte
	if v < 0 {
		ext = 0xff
	}
	for i := 8; i < 16; i++ {
		buf[i] = ext
	}
}

// fileHeaderDigest computes the hash of the config header, the raw name,
// and the little-endian mode, the fixed leading portion of a file digest.
func (c Config) fileHeaderDigest(name []byte, mode uint32) []byte {
	h := c.HashFactory()
	header := c.Header()
	h.Write(header[:])
	h.Write(name)
	var modeBuf [4]byte
	binary.LittleEndian.PutUint32(modeBuf[:], mode)
	h.Write(modeBuf[:])
	return h.Sum(nil)
}

// dirHeaderDigest computes the directory equivalent, optionally folding in
// mtime and ownership.
func (c Config) dirHeaderDigest(name []byte, mode uint32, mtimeNs int64, uid, gid uint32) []byte {
	h := c.HashFactory()
	header := c.Header()
	h.Write(header[:])
	h.Write(name)
	var modeBuf [4]byte
	binary.LittleEndian.PutUint32(modeBuf[:], mode)
	h.Write(modeBuf[:])
	if c.UseDirectoryMtime {
		var mtBuf [16]byte
		putInt128LE(mtBuf[:], mtimeNs)
		h.Write(mtBuf[:])
	}
	if c.UseOwner {
		var uidBuf, gidBuf [4]byte
		binary.LittleEndian.PutUint32(uidBuf[:], uid)
		binary.LittleEndian.PutUint32(gidBuf[:], gid)
		h.Write(uidBuf[:])
		h.Write(gidBuf[:])
	}
	return h.Sum(nil)
}

// FileContentChecksum hashes the content of a non-directory entry: file
// bytes for regular files, link target bytes for symbolic links, and
// nothing for any other kind. ok is false if the content could not be
// read, in which case the entry is treated as absent for this run.
func (c Config) FileContentChecksum(fullPath string, meta *fsutil.Metadata) (digest []byte, ok bool) {
	h := c.HashFactory()
	switch {
	case meta.Mode.IsRegular():
		f, err := os.Open(fullPath)
		if err != nil {
			c.warnf("unable to open %s: %v", fullPath, err)
			return nil, false
		}
		defer f.Close()
		buf := make([]byte, 256*1024)
		if _, err := io.CopyBuffer(h, f, buf); err != nil {
			c.warnf("unable to read %s: %v", fullPath, err)
			return nil, false
		}
	case meta.Mode.IsSymlink():
		target, err := os.Readlink(fullPath)
		if err != nil {
			c.warnf("unable to read link %s: %v", fullPath, err)
			return nil, false
		}
		h.Write([]byte(target))
	default:
		// Other file kinds (devices, sockets, FIFOs) hash as empty content.
	}
	return h.Sum(nil), true
}

// OneFileChecksum computes the digest of a single non-directory entry. In
// content mode on the second pass, this hashes file content; otherwise it
// hashes size and mtime (and ownership, if enabled).
func (c Config) OneFileChecksum(name []byte, fullPath string, meta *fsutil.Metadata, secondPass bool) (digest []byte, ok bool) {
	head := c.fileHeaderDigest(name, uint32(meta.Mode))

	var tail []byte
	if c.UseFileChecksum && secondPass {
		content, contentOK := c.FileContentChecksum(fullPath, meta)
		if !contentOK {
			return nil, false
		}
		tail = content
	} else {
		buf := make([]byte, 0, 40)
		var sizeBuf, mtBuf [16]byte
		putUint128LE(sizeBuf[:], meta.Size)
		putInt128LE(mtBuf[:], meta.ModTimeNs)
		buf = append(buf, sizeBuf[:]...)
		buf = append(buf, mtBuf[:]...)
		if c.UseOwner {
			var uidBuf, gidBuf [4]byte
			binary.LittleEndian.PutUint32(uidBuf[:], meta.UID)
			binary.LittleEndian.PutUint32(gidBuf[:], meta.GID)
			buf = append(buf, uidBuf[:]...)
			buf = append(buf, gidBuf[:]...)
		}
		tail = buf
	}

	final := c.HashFactory()
	final.Write(head)
	final.Write(tail)
	return final.Sum(nil), true
}

// DirectoryAggregateDigest computes S(d) for a directory given the
// already-computed signatures of its children in sorted raw-name order.
// It is the building block FileChecksum's directory branch uses
// internally, exposed so a caller that has already computed (and
// possibly memoized) a child's own S(child) — such as the upload
// planner's fold decision, working from a subtree WalkResult instead of
// re-walking the filesystem — can assemble a parent digest without a
// second recursive descent.
func (c Config) DirectoryAggregateDigest(name []byte, mode uint32, mtimeNs int64, uid, gid uint32, sortedChildSigs [][]byte) []byte {
	inner := c.dirHeaderDigest(name, mode, mtimeNs, uid, gid)
	wrap := c.HashFactory()
	wrap.Write(inner)
	for _, sig := range sortedChildSigs {
		wrap.Write(sig)
	}
	return wrap.Sum(nil)
}

// FileChecksum computes the digest of any entry, recursing into
// directories in lexicographic raw-name order of their children (the sole
// source of checksum stability). It never returns an error: failures are
// reported via Config.Warn and represented as an empty digest, which
// contributes nothing when concatenated into a parent hash, so the entry
// is effectively absent for this run.
func (c Config) FileChecksum(name []byte, fullPath string, meta *fsutil.Metadata, secondPass bool, result *WalkResult) []byte {
	if meta.Mode.IsDir() {
		childNames, err := fsutil.ReadDirNames(fullPath)
		if err != nil {
			c.warnf("unable to list directory %s: %v", fullPath, err)
			return nil
		}

		entries := make([]NamedMeta, 0, len(childNames))
		for _, n := range childNames {
			childPath := filepath.Join(fullPath, n)
			m, err := fsutil.Lstat(childPath)
			if err != nil {
				c.warnf("unable to stat %s: %v", childPath, err)
				continue
			}
			entries = append(entries, NamedMeta{Name: []byte(n), Meta: m})
		}
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].Name, entries[j].Name) < 0
		})

		sigs := make([][]byte, len(entries))
		for i, e := range entries {
			childPath := filepath.Join(fullPath, string(e.Name))
			sigs[i] = c.FileChecksum(e.Name, childPath, e.Meta, secondPass, result)
		}

		if result != nil {
			result.TotalFiles++
		}
		return c.DirectoryAggregateDigest(name, uint32(meta.Mode), meta.ModTimeNs, meta.UID, meta.GID, sigs)
	}

	digest, ok := c.OneFileChecksum(name, fullPath, meta, secondPass)
	if !ok {
		return nil
	}
	if result != nil {
		result.TotalSize += meta.Size
		result.TotalFiles++
		if meta.Nlink > 1 {
			result.HardLinks[[2]uint64{meta.DeviceID, meta.Inode}] = []byte(fullPath)
		}
	}
	return digest
}

// GroupDigest hashes a set of already-computed signatures for siblings
// sorted by raw name. Callers are responsible for sorting sigs by the
// corresponding name first.
func (c Config) GroupDigest(sigs [][]byte) []byte {
	h := c.HashFactory()
	for _, s := range sigs {
		h.Write(s)
	}
	return h.Sum(nil)
}

// ChecksumWalk computes the hex-encoded group digest of entries (sorted
// internally by raw name), recursively hashing each entry via FileChecksum.
// This is the recomputation the upload planner performs when verifying
// whether a previously stored pack is still valid.
func (c Config) ChecksumWalk(entries []NamedMeta, basePath string, secondPass bool, result *WalkResult) string {
	sorted := make([]NamedMeta, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Name, sorted[j].Name) < 0
	})

	sigs := make([][]byte, len(sorted))
	for i, e := range sorted {
		fullPath := filepath.Join(basePath, string(e.Name))
		sigs[i] = c.FileChecksum(e.Name, fullPath, e.Meta, secondPass, result)
	}
	return hexEncode(c.GroupDigest(sigs))
}

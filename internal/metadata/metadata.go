// Package metadata defines the persisted document that records what was
// packed where, and the load/save logic that locates it on either a
// remote or a local path. The planner works against the typed DirNode
// tree defined here rather than raw decoded JSON.
package metadata

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adrien1018/metarclone/internal/mlog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PackEntry describes one packed artifact recorded under a DirNode.
type PackEntry struct {
	// List holds the sorted, codec-encoded first-level child names
	// whose subtree is packed into this artifact.
	List []string `json:"list"`

	// Exactly one checksum shape is populated, matching the document's
	// recorded configuration: content mode uses FileSizeChecksum and
	// FileChecksum; time mode uses MtimeChecksum.
	FileSizeChecksum string `json:"file_size_checksum,omitempty"`
	FileChecksum     string `json:"file_checksum,omitempty"`
	MtimeChecksum    string `json:"mtime_checksum,omitempty"`
}

// DirNode is the persisted metadata record for one force-retained
// directory.
type DirNode struct {
	// Files maps a pack's remote basename to its entry.
	Files map[string]*PackEntry `json:"files"`
	// Children maps a codec-encoded child directory name to its DirNode.
	Children map[string]*DirNode `json:"children"`
}

// NewDirNode returns an empty DirNode with both maps initialized, so
// callers never have to nil-check before inserting.
func NewDirNode() *DirNode {
	return &DirNode{
		Files:    make(map[string]*PackEntry),
		Children: make(map[string]*DirNode),
	}
}

// ChecksumConfigRecord is the portion of the checksum configuration
// recorded in the document so that a later read (or a reuse-pass
// comparison) can reconstruct a compatible checksum.Config.
type ChecksumConfigRecord struct {
	UseFileChecksum   bool   `json:"use_file_checksum"`
	UseOwner          bool   `json:"use_owner"`
	UseDirectoryMtime bool   `json:"use_directory_mtime"`
	HashFunction      string `json:"hash_function"`
}

// Document is the top-level persisted JSON object.
type Document struct {
	Version int `json:"version"`
	// Meta is the root DirNode.
	Meta *DirNode `json:"meta"`
	// RootName is the remote basename of the auxiliary pack storing
	// empty retained-directory skeletons.
	RootName string `json:"root_name"`
	// Checksum records the configuration used when writing.
	Checksum ChecksumConfigRecord `json:"checksum"`
	// HardLinks is an ordered sequence of groups; each group lists
	// codec-encoded paths (relative to the tree root) sharing an inode.
	HardLinks [][]string `json:"hard_links"`
}

// RawStore is the minimal capability metadata needs from a transport
// adapter: single-shot put/get of a small byte blob. A concrete
// transport.Transport satisfies this without metadata importing the
// transport package, avoiding a dependency cycle (transport in turn
// needs no knowledge of metadata's document shape).
type RawStore interface {
	PutRaw(uri string, data []byte) bool
	GetRaw(uri string) ([]byte, bool)
}

// isRemotePath reports whether p should be treated as a remote URI (true)
// or a local filesystem path (false), matching metadata_path's location
// policy: an explicit path counts as remote iff it contains ':' but
// neither ':/' nor ':\', the transport agent's URI convention.
func isRemotePath(p string) bool {
	return strings.Contains(p, ":") && !strings.Contains(p, ":/") && !strings.Contains(p, ":\\")
}

// Path resolves the metadata document's location for a sync targeting
// remotePath, given an optional explicit override.
func Path(remotePath, reservedPrefix, override string) (isRemote bool, location string) {
	if override == "" {
		return true, path.Join(remotePath, reservedPrefix+"META.json.gz")
	}
	return isRemotePath(override), override
}

// Load fetches and decodes the metadata document for remotePath. It
// returns (nil, nil) whenever no usable document exists — absent remote
// object, missing local file, or invalid gzip/JSON content — so a
// first-time sync can proceed as a full upload.
func Load(transport RawStore, remotePath, reservedPrefix, override string) (*Document, error) {
	isRemote, location := Path(remotePath, reservedPrefix, override)

	var raw []byte
	if isRemote {
		data, ok := transport.GetRaw(location)
		if !ok {
			return nil, nil
		}
		raw = data
	} else {
		data, err := os.ReadFile(location)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.Wrapf(err, "reading local metadata file %s", location)
		}
		raw = data
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil
	}
	defer gz.Close()

	var doc Document
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		return nil, nil
	}
	return &doc, nil
}

// Save gzip-compresses and JSON-encodes doc, then writes it at the
// resolved location. On failure it falls back to a local temporary
// file, warning via log; a fatal error results only if that fallback
// also fails. When dryRun is set, no write is attempted at all: a dry
// run must not advance the metadata a real run would compare against
// next time.
func Save(transport RawStore, doc *Document, remotePath, reservedPrefix, override string, dryRun bool, log *mlog.Logger) error {
	if dryRun {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		return errors.Wrap(err, "encoding metadata document")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "compressing metadata document")
	}
	data := buf.Bytes()

	isRemote, location := Path(remotePath, reservedPrefix, override)
	if isRemote {
		if transport.PutRaw(location, data) {
			return nil
		}
	} else {
		if err := os.WriteFile(location, data, 0o644); err == nil {
			return nil
		} else {
			log.Warning("cannot open metadata file %s for writing: %v", location, err)
		}
	}

	// Tag the emergency fallback with a UUID rather than relying on
	// os.CreateTemp's own uniqueness, so the name survives being read
	// back to the user across a terminal scrollback or a log line.
	fallbackPath := filepath.Join(os.TempDir(), "metarclone-metadata-"+uuid.NewString()+".json.gz")
	if err := os.WriteFile(fallbackPath, data, 0o600); err != nil {
		log.Fatal(errors.Wrap(err, "metadata writing failed"))
		return errors.Wrap(err, "metadata writing failed")
	}
	log.Warning("writing to metadata file failed; wrote to %s instead", fallbackPath)
	log.Warning("please store the metadata file properly and specify it in subsequent runs; " +
		"otherwise downloading will fail and uploading will upload the whole directory again")
	return nil
}

// Package config holds the settings that control a sync run: which
// checksum features are enabled, which external commands to invoke, and
// how uploads are grouped and compressed. A shared SyncConfig is embedded
// in UploadConfig and DownloadConfig so the two verbs stay consistent on
// their common surface.
package config

import (
	"fmt"
	"hash"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrien1018/metarclone/internal/checksum"
	"github.com/adrien1018/metarclone/internal/codec"
	"github.com/adrien1018/metarclone/internal/fsutil"
	"github.com/pkg/errors"
)

// SyncConfig carries the settings shared between upload and download runs.
type SyncConfig struct {
	// DestAsEmpty skips checksum comparison against any existing
	// destination state, treating it as empty.
	DestAsEmpty bool
	// UseFileChecksum, UseOwner, and UseDirectoryMtime select which
	// checksum features are active; see checksum.Config for their exact
	// effect on the digest.
	UseFileChecksum   bool
	UseOwner          bool
	UseDirectoryMtime bool
	// HashName and HashFactory together describe the digest algorithm.
	HashName    string
	HashFactory func() hash.Hash
	// IgnoreErrors suppresses the non-zero exit code that a run with
	// one or more non-fatal errors would otherwise produce.
	IgnoreErrors bool
	// AbortOnError escalates the first per-file filesystem failure into
	// a hard failure of the whole run instead of dropping the file and
	// continuing.
	AbortOnError bool
	// RcloneArgs are appended verbatim to every rclone invocation.
	RcloneArgs []string
	// Compression is the -I argument passed to tar, or empty/"none" to
	// disable compression entirely.
	Compression   string
	TarCommand    string
	RcloneCommand string
	// ReservedPrefix names the prefix used for pack and skeleton file
	// names; it must match [0-9A-Z_]*.
	ReservedPrefix string
	// MetadataPath overrides where the metadata document is stored; an
	// empty value selects the location policy's default.
	MetadataPath string
	// S3MinChunkSizeKiB is the chunk size floor used for the
	// --s3-chunk-size argument of every streamed upload; the remote's
	// type is not inspected.
	S3MinChunkSizeKiB uint64
	// DryRun performs every read and decision but skips all writes to
	// the destination and to the local metadata store.
	DryRun bool
}

// ChecksumConfig builds the checksum.Config that this run's digest
// computations should use.
func (c *SyncConfig) ChecksumConfig(warn func(string, ...interface{})) checksum.Config {
	return checksum.Config{
		UseFileChecksum:   c.UseFileChecksum,
		UseOwner:          c.UseOwner,
		UseDirectoryMtime: c.UseDirectoryMtime,
		HashFactory:       c.HashFactory,
		HashName:          c.HashName,
		Warn:              warn,
	}
}

// Default returns a SyncConfig with every shared setting at its default.
func Default() SyncConfig {
	factory, _ := checksum.HashFactoryFor(checksum.DefaultHashName)
	return SyncConfig{
		HashName:          checksum.DefaultHashName,
		HashFactory:       factory,
		Compression:       "gzip",
		TarCommand:        "tar",
		RcloneCommand:     "rclone",
		ReservedPrefix:    "_METARCLONE_",
		S3MinChunkSizeKiB: 5 * 1024,
	}
}

// SetHashFunction resolves name to a hash factory and stores it.
func (c *SyncConfig) SetHashFunction(name string) error {
	factory, err := checksum.HashFactoryFor(name)
	if err != nil {
		return err
	}
	c.HashName = name
	c.HashFactory = factory
	return nil
}

var reservedPrefixExact = regexp.MustCompile(`^[0-9A-Z_]*$`)

// SetReservedPrefix validates and stores prefix.
func (c *SyncConfig) SetReservedPrefix(prefix string) error {
	if !reservedPrefixExact.MatchString(prefix) {
		return errors.New("reserved prefix should only contain upper-case alphanumeric characters or '_'")
	}
	c.ReservedPrefix = prefix
	return nil
}

// ResolveCommands converts TarCommand and RcloneCommand to absolute paths
// via PATH lookup; this is required on Windows, where direct process
// creation does not consult PATH the way a shell would, but it's harmless
// to run unconditionally.
func (c *SyncConfig) ResolveCommands() error {
	tar, err := fsutil.ResolveExecutable(c.TarCommand)
	if err != nil {
		return errors.Wrap(err, "resolving tar command")
	}
	rclone, err := fsutil.ResolveExecutable(c.RcloneCommand)
	if err != nil {
		return errors.Wrap(err, "resolving rclone command")
	}
	c.TarCommand = tar
	c.RcloneCommand = rclone
	return nil
}

// UploadConfig extends SyncConfig with the settings specific to an upload
// run.
type UploadConfig struct {
	SyncConfig

	// MetadataVersion is recorded in the metadata document's version
	// field; reserved for future format changes.
	MetadataVersion int
	// FileBaseBytes is the fixed per-entry overhead added to a file's
	// size when deciding whether a directory should fold into its
	// parent's pack.
	FileBaseBytes uint64
	// MergeThreshold is the total-size ceiling under which a directory
	// folds into its parent instead of getting its own pack.
	MergeThreshold uint64
	// DeleteAfterUpload, when true, removes stale remote objects after
	// uploading new ones rather than before (the safer default, since it
	// avoids a window with no copy of since-replaced data).
	DeleteAfterUpload bool
	// GroupingOrder selects the sort key used to split a directory's
	// folded files into size-bounded packs: "size", "name", "mtime", or
	// "ctime".
	GroupingOrder string
	// CompressionSuffix is appended to every pack's file name; it must
	// match [0-9a-zA-Z_.]*.
	CompressionSuffix string
	// IncludeList and ExcludeList hold byte strings joined with '/' onto
	// the base path passed to SetIncludeList/SetExcludeList (absolute
	// inputs are kept as given). IncludeList maps each requested path to true and every
	// ancestor prefix of it to false, so a directory walk can recognize
	// both "on the way to an included path" and "inside an included
	// subtree" without walking the whole tree first.
	IncludeList map[string]bool
	ExcludeList map[string]struct{}
}

// NewUploadConfig returns an UploadConfig with upload-specific defaults
// layered on top of Default().
func NewUploadConfig() UploadConfig {
	return UploadConfig{
		SyncConfig:        Default(),
		MetadataVersion:   1,
		FileBaseBytes:     64,
		MergeThreshold:    10 * 1024 * 1024,
		DeleteAfterUpload: true,
		GroupingOrder:     "size",
		CompressionSuffix: ".gz",
		IncludeList:       make(map[string]bool),
		ExcludeList:       make(map[string]struct{}),
	}
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)([bkmgt]?)$`)

var sizeSuffixMultiplier = map[string]float64{
	"":  1024,
	"b": 1,
	"k": 1024,
	"m": 1024 * 1024,
	"g": 1024 * 1024 * 1024,
	"t": 1024 * 1024 * 1024 * 1024,
}

// ParseSize parses a size string of the form "<digits>[.digits][bkmgt]",
// case insensitive, with no suffix defaulting to KiB.
func ParseSize(s string) (uint64, error) {
	m := sizePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, errors.New("invalid size pattern")
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid size pattern")
	}
	return uint64(n * sizeSuffixMultiplier[m[2]]), nil
}

// SetMergeThreshold parses and stores threshold.
func (c *UploadConfig) SetMergeThreshold(threshold string) error {
	v, err := ParseSize(threshold)
	if err != nil {
		return err
	}
	c.MergeThreshold = v
	return nil
}

var validGroupingOrders = map[string]bool{"size": true, "name": true, "mtime": true, "ctime": true}

// SetGroupingOrder validates and stores order.
func (c *UploadConfig) SetGroupingOrder(order string) error {
	if !validGroupingOrders[order] {
		return errors.New("invalid grouping order")
	}
	c.GroupingOrder = order
	return nil
}

// SetCompressionSuffix validates and stores suffix explicitly, bypassing
// DeduceCompressionSuffix.
func (c *UploadConfig) SetCompressionSuffix(suffix string) error {
	if !codec.ValidCompressionSuffix(suffix) {
		return errors.New("compression suffix should only contain alphanumeric characters, '.' or '_'")
	}
	c.CompressionSuffix = suffix
	return nil
}

var compressionSuffixByProgram = map[string]string{
	"gzip": ".gz", "gunzip": ".gz", "pigz": ".gz",
	"bzip2": ".bz2", "bunzip2": ".bz2", "pbzip2": ".bz2",
	"xz": ".xz", "unxz": ".xz",
	"zstd": ".zst", "unzstd": ".zst", "pzstd": ".zst",
}

// DeduceCompressionSuffix infers CompressionSuffix from Compression when
// the caller hasn't set one explicitly. It reports false when Compression
// names a program this tool doesn't recognize, in which case the caller
// must supply an explicit suffix.
func (c *UploadConfig) DeduceCompressionSuffix() bool {
	if c.Compression == "none" || c.Compression == "" {
		c.Compression = ""
		c.CompressionSuffix = ""
		return true
	}
	fields := strings.Fields(c.Compression)
	if len(fields) == 0 {
		return false
	}
	suffix, ok := compressionSuffixByProgram[fields[0]]
	if !ok {
		return false
	}
	c.CompressionSuffix = suffix
	return true
}

// addAllPrefixes marks path as an include root and every ancestor
// directory of it (split on '/') as an ancestor entry, so a walk can
// recognize both "on the way to an included path" and "inside an
// included subtree" without scanning the whole tree first. A path that
// is both an ancestor of one include and an include itself stays a root.
func addAllPrefixes(set map[string]bool, path string) {
	set[path] = true
	clean := path
	for {
		idx := strings.LastIndexByte(clean, '/')
		if idx < 0 {
			break
		}
		clean = clean[:idx]
		if clean == "" || clean == "." {
			break
		}
		if !set[clean] {
			set[clean] = false
		}
	}
}

// SetIncludeList joins each of paths onto base and records it plus every
// ancestor prefix.
func (c *UploadConfig) SetIncludeList(base string, paths []string) {
	for _, p := range paths {
		addAllPrefixes(c.IncludeList, joinClean(base, p))
	}
}

// SetExcludeList joins each of paths onto base and records the results.
func (c *UploadConfig) SetExcludeList(base string, paths []string) {
	for _, p := range paths {
		c.ExcludeList[joinClean(base, p)] = struct{}{}
	}
}

func joinClean(base, p string) string {
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "/") {
		return p
	}
	return base + "/" + p
}

// DownloadConfig is a SyncConfig with no additional fields; the download
// path needs none of the upload-side grouping or threshold settings.
type DownloadConfig struct {
	SyncConfig
}

// NewDownloadConfig returns a DownloadConfig with SyncConfig defaults.
func NewDownloadConfig() DownloadConfig {
	return DownloadConfig{SyncConfig: Default()}
}

// Validate reports an error for an invalid reserved prefix, compression
// suffix, or grouping order, used as a final sanity check before a run
// starts.
func (c *UploadConfig) Validate() error {
	if !reservedPrefixExact.MatchString(c.ReservedPrefix) {
		return fmt.Errorf("reserved prefix %q is invalid", c.ReservedPrefix)
	}
	if !codec.ValidCompressionSuffix(c.CompressionSuffix) {
		return fmt.Errorf("compression suffix %q is invalid", c.CompressionSuffix)
	}
	if !validGroupingOrders[c.GroupingOrder] {
		return fmt.Errorf("grouping order %q is invalid", c.GroupingOrder)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/mlog"
	"github.com/adrien1018/metarclone/internal/transport"
)

// syncFlags holds the options common to both the upload and download
// verbs.
type syncFlags struct {
	destAsEmpty       bool
	useFileChecksum   bool
	useDirectoryMtime bool
	useOwner          bool
	checksumChoice    string
	ignoreErrors      bool
	abortOnError      bool
	rcloneArgs        string
	compressProgram   string
	tarPath           string
	rclonePath        string
	reservedPrefix    string
	metadataPath      string
	s3MinChunkSize    string
	dryRun            bool
	verbosity         int
	stats             bool
}

func (f *syncFlags) register(flags *pflag.FlagSet) {
	flags.BoolVar(&f.destAsEmpty, "dest-as-empty", false, "treat the destination as if it were empty")
	flags.BoolVarP(&f.useFileChecksum, "use-file-checksum", "c", false, "hash file contents instead of trusting size and mtime")
	flags.BoolVar(&f.useDirectoryMtime, "use-directory-mtime", false, "fold a directory's mtime into its checksum")
	flags.BoolVar(&f.useOwner, "use-owner", false, "fold uid/gid into every checksum")
	flags.StringVar(&f.checksumChoice, "checksum-choice", "", "hash function to use (sha1, sha256, sha512)")
	flags.BoolVar(&f.ignoreErrors, "ignore-errors", false, "exit 0 even if errors were encountered")
	flags.BoolVar(&f.abortOnError, "abort-on-error", false, "abort the whole run on the first per-file error")
	flags.StringVar(&f.rcloneArgs, "rclone-args", "", "extra arguments appended to every rclone invocation")
	flags.StringVarP(&f.compressProgram, "use-compress-program", "I", "", "compression program passed to tar, e.g. \"gzip\" or \"none\"")
	flags.StringVar(&f.tarPath, "tar-path", "", "path to the tar-compatible archiver")
	flags.StringVar(&f.rclonePath, "rclone-path", "", "path to the rclone-compatible transport agent")
	flags.StringVar(&f.reservedPrefix, "reserved-prefix", "", "prefix used for pack, skeleton, and metadata file names")
	flags.StringVar(&f.metadataPath, "metadata-path", "", "override the metadata document's location")
	flags.StringVar(&f.s3MinChunkSize, "s3-min-chunk-size", "", "chunk-size floor applied for S3-compatible remotes")
	flags.BoolVar(&f.dryRun, "dry-run", false, "perform every read and decision but skip all writes")
	flags.CountVarP(&f.verbosity, "verbose", "v", "increase logging verbosity (may be repeated)")
	flags.BoolVar(&f.stats, "stats", false, "print transfer statistics on completion")
}

// buildSyncConfig converts flags into a SyncConfig layered on
// config.Default().
func (f *syncFlags) buildSyncConfig() (config.SyncConfig, error) {
	c := config.Default()
	c.DestAsEmpty = f.destAsEmpty
	c.UseFileChecksum = f.useFileChecksum
	c.UseDirectoryMtime = f.useDirectoryMtime
	c.UseOwner = f.useOwner
	if f.checksumChoice != "" {
		if err := c.SetHashFunction(f.checksumChoice); err != nil {
			return c, err
		}
	}
	c.IgnoreErrors = f.ignoreErrors
	c.AbortOnError = f.abortOnError
	if f.rcloneArgs != "" {
		c.RcloneArgs = strings.Fields(f.rcloneArgs)
	}
	if f.compressProgram != "" {
		c.Compression = f.compressProgram
	}
	if f.tarPath != "" {
		c.TarCommand = f.tarPath
	}
	if f.rclonePath != "" {
		c.RcloneCommand = f.rclonePath
	}
	if f.reservedPrefix != "" {
		if err := c.SetReservedPrefix(f.reservedPrefix); err != nil {
			return c, err
		}
	}
	if f.s3MinChunkSize != "" {
		v, err := config.ParseSize(f.s3MinChunkSize)
		if err != nil {
			return c, fmt.Errorf("invalid --s3-min-chunk-size: %w", err)
		}
		c.S3MinChunkSizeKiB = v / 1024
	}
	c.MetadataPath = f.metadataPath
	c.DryRun = f.dryRun
	if err := c.ResolveCommands(); err != nil {
		return c, err
	}
	return c, nil
}

func (f *syncFlags) newLogger() *mlog.Logger {
	log := mlog.New(f.verbosity)
	// The external archiver generally needs a POSIX-like environment to
	// behave on Windows (MSYS2, Git Bash, Cygwin); warn, but proceed.
	if runtime.GOOS == "windows" && os.Getenv("MSYSTEM") == "" {
		log.Warning("not running inside a POSIX-like shell environment; the archiver may misbehave")
	}
	return log
}

func (f *syncFlags) newTransport(sync config.SyncConfig, log *mlog.Logger) *transport.RcloneTransport {
	return transport.New(transport.Options{
		TarCommand:        sync.TarCommand,
		RcloneCommand:     sync.RcloneCommand,
		RcloneArgs:        sync.RcloneArgs,
		Compression:       sync.Compression,
		S3MinChunkSizeKiB: sync.S3MinChunkSizeKiB,
		DryRun:            sync.DryRun,
	}, log)
}

// finish reports summary to standard output when --stats was requested
// and terminates the process with a nonzero exit code if one is due.
func finish(cmd *cobra.Command, summary fmt.Stringer, stats bool, exitCode int) {
	if stats {
		fmt.Fprint(cmd.OutOrStdout(), summary)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

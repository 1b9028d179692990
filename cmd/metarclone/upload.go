package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/result"
	"github.com/adrien1018/metarclone/internal/upload"
)

var uploadSyncFlags syncFlags

var uploadConfiguration struct {
	fileBaseBytes     uint64
	mergeThreshold    string
	deleteBeforeUp    bool
	groupingOrder     string
	compressionSuffix string
	excludeFiles      []string
	includeFiles      []string
}

var uploadCommand = &cobra.Command{
	Use:   "upload <local> <remote>",
	Short: "Pack and upload a local directory to a remote",
	Args:  cobra.ExactArgs(2),
	RunE:  uploadMain,
}

func init() {
	flags := uploadCommand.Flags()
	uploadSyncFlags.register(flags)
	flags.Uint64Var(&uploadConfiguration.fileBaseBytes, "file-base-bytes", 0, "per-entry overhead added when deciding whether a directory folds")
	flags.StringVar(&uploadConfiguration.mergeThreshold, "merge-threshold", "", "total size under which a directory folds into its parent's pack")
	flags.BoolVar(&uploadConfiguration.deleteBeforeUp, "delete-before-upload", false, "delete stale remote objects before uploading replacements")
	flags.StringVar(&uploadConfiguration.groupingOrder, "grouping-order", "", "sort key used to group a retained directory's entries into packs (size|name|mtime|ctime)")
	flags.StringVar(&uploadConfiguration.compressionSuffix, "compression-suffix", "", "file-name suffix appended to every pack")
	flags.StringArrayVar(&uploadConfiguration.excludeFiles, "exclude-file", nil, "path under <local> to exclude from the walk (repeatable)")
	flags.StringArrayVar(&uploadConfiguration.includeFiles, "include-file", nil, "path under <local> to force-include in the walk (repeatable)")
}

func uploadMain(cmd *cobra.Command, arguments []string) error {
	local, remote := arguments[0], arguments[1]

	syncConfig, err := uploadSyncFlags.buildSyncConfig()
	if err != nil {
		return err
	}

	cfg := config.NewUploadConfig()
	cfg.SyncConfig = syncConfig

	if uploadConfiguration.fileBaseBytes != 0 {
		cfg.FileBaseBytes = uploadConfiguration.fileBaseBytes
	}
	if uploadConfiguration.mergeThreshold != "" {
		if err := cfg.SetMergeThreshold(uploadConfiguration.mergeThreshold); err != nil {
			return fmt.Errorf("invalid --merge-threshold: %w", err)
		}
	}
	if uploadConfiguration.deleteBeforeUp {
		cfg.DeleteAfterUpload = false
	}
	if uploadConfiguration.groupingOrder != "" {
		if err := cfg.SetGroupingOrder(uploadConfiguration.groupingOrder); err != nil {
			return err
		}
	}
	if uploadConfiguration.compressionSuffix != "" {
		if err := cfg.SetCompressionSuffix(uploadConfiguration.compressionSuffix); err != nil {
			return err
		}
	} else if !cfg.DeduceCompressionSuffix() {
		return errors.New("unknown compression program; please specify --compression-suffix")
	}

	if len(uploadConfiguration.includeFiles) > 0 {
		cfg.SetIncludeList(local, uploadConfiguration.includeFiles)
	}
	if len(uploadConfiguration.excludeFiles) > 0 {
		cfg.SetExcludeList(local, uploadConfiguration.excludeFiles)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log := uploadSyncFlags.newLogger()
	tr := uploadSyncFlags.newTransport(cfg.SyncConfig, log)

	prevDoc, err := metadata.Load(tr, remote, cfg.ReservedPrefix, cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("loading previous metadata: %w", err)
	}

	res, err := upload.Run(local, remote, prevDoc, &cfg, tr, log)
	if err != nil {
		return err
	}

	if err := metadata.Save(tr, res.Document, remote, cfg.ReservedPrefix, cfg.MetadataPath, cfg.DryRun, log); err != nil {
		log.Warning("failed to persist metadata document: %v", err)
	}

	summary := result.FromUpload(res)
	finish(cmd, summary, uploadSyncFlags.stats, summary.ExitCode(cfg.IgnoreErrors))
	return nil
}

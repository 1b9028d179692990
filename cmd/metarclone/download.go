package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/download"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/result"
)

var downloadSyncFlags syncFlags

var downloadCommand = &cobra.Command{
	Use:   "download <remote> <local>",
	Short: "Download and unpack a remote tree into a local directory",
	Args:  cobra.ExactArgs(2),
	RunE:  downloadMain,
}

func init() {
	downloadSyncFlags.register(downloadCommand.Flags())
}

func downloadMain(cmd *cobra.Command, arguments []string) error {
	remote, local := arguments[0], arguments[1]

	syncConfig, err := downloadSyncFlags.buildSyncConfig()
	if err != nil {
		return err
	}
	cfg := config.DownloadConfig{SyncConfig: syncConfig}

	log := downloadSyncFlags.newLogger()
	tr := downloadSyncFlags.newTransport(cfg.SyncConfig, log)

	doc, err := metadata.Load(tr, remote, cfg.ReservedPrefix, cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("no usable metadata document found for %s", remote)
	}

	res := download.Run(local, remote, doc, &cfg, tr, log)

	summary := result.FromDownload(res)
	finish(cmd, summary, downloadSyncFlags.stats, summary.ExitCode(cfg.IgnoreErrors))
	return nil
}

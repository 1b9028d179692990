package main

import "github.com/spf13/cobra"

var rootCommand = &cobra.Command{
	Use:   "metarclone",
	Short: "Pack small files into archives and sync them through rclone",
}

func init() {
	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(uploadCommand, downloadCommand)
}

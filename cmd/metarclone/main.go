// Command metarclone packs small files into tar archives and syncs them
// to or from an opaque remote object store via an external archiver and
// rclone, tracking enough metadata to resync incrementally.
package main

import "os"

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

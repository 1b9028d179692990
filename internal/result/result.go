// Package result defines the counters reported back to a CLI invocation
// after an upload or download run, and formats them for the --stats
// flag.
package result

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Summary is the roll-up of counters a sync run produces.
type Summary struct {
	TotalSize             uint64
	TotalFiles            uint64
	IntendedTransferSize  uint64
	IntendedTransferFiles uint64
	RealTransferSize      uint64
	RealTransferFiles     uint64
	DeletedCount          uint64
	ErrorCount            uint64
}

// ExitCode returns 1 if the run reported any error and ignoreErrors is
// false; 0 otherwise.
func (s Summary) ExitCode(ignoreErrors bool) int {
	if s.ErrorCount > 0 && !ignoreErrors {
		return 1
	}
	return 0
}

// String renders a human-readable summary, using go-humanize for byte
// counts the way a CLI's --stats output would.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scanned %s in %d files\n", humanize.Bytes(s.TotalSize), s.TotalFiles)
	fmt.Fprintf(&b, "planned to transfer %s in %d files\n", humanize.Bytes(s.IntendedTransferSize), s.IntendedTransferFiles)
	fmt.Fprintf(&b, "transferred %s in %d files\n", humanize.Bytes(s.RealTransferSize), s.RealTransferFiles)
	if s.DeletedCount > 0 {
		fmt.Fprintf(&b, "deleted %d remote objects\n", s.DeletedCount)
	}
	if s.ErrorCount > 0 {
		fmt.Fprintf(&b, "%d error(s) encountered\n", s.ErrorCount)
	}
	return b.String()
}

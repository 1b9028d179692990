package result

import (
	"github.com/adrien1018/metarclone/internal/download"
	"github.com/adrien1018/metarclone/internal/upload"
)

// FromUpload adapts an upload.Result into the shared Summary shape.
func FromUpload(r *upload.Result) Summary {
	return Summary{
		TotalSize:             r.TotalSize,
		TotalFiles:            r.TotalFiles,
		IntendedTransferSize:  r.TotalTransferSize,
		IntendedTransferFiles: r.TotalTransferFiles,
		RealTransferSize:      r.RealTransferSize,
		RealTransferFiles:     r.RealTransferFiles,
		DeletedCount:          r.DeletedCount,
		ErrorCount:            r.ErrorCount,
	}
}

// FromDownload adapts a download.Result into the shared Summary shape.
// A download has no "intended vs real" distinction (every pack named in
// metadata is attempted), so both transfer counters are populated from
// the same totals.
func FromDownload(r *download.Result) Summary {
	return Summary{
		IntendedTransferSize:  r.TransferSize,
		IntendedTransferFiles: r.TransferFiles,
		RealTransferSize:      r.TransferSize,
		RealTransferFiles:     r.TransferFiles,
		ErrorCount:            r.ErrorCount,
	}
}

package upload

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/adrien1018/metarclone/internal/codec"
	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/fsutil"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/mlog"
	"github.com/adrien1018/metarclone/internal/transport"
)

// Result is what a completed upload run reports to its caller.
type Result struct {
	TotalSize          uint64
	TotalFiles         uint64
	TotalTransferSize  uint64
	TotalTransferFiles uint64
	RealTransferSize   uint64
	RealTransferFiles  uint64
	DeletedCount       uint64
	ErrorCount         uint64
	Document           *metadata.Document
}

// Run drives a full upload: walks localPath against prevDoc (nil if
// there is no previous state), executes pending deletes, uploads the
// directory skeleton, canonicalises hard-link equivalences, and returns
// the new Document ready to be persisted by the caller.
func Run(localPath, remotePath string, prevDoc *metadata.Document, cfg *config.UploadConfig, tr transport.Transport, log *mlog.Logger) (*Result, error) {
	rootMeta, err := fsutil.Lstat(localPath)
	if err != nil {
		return nil, fmt.Errorf("statting upload root %s: %w", localPath, err)
	}

	planner := &Planner{
		Config:    cfg,
		Checksum:  cfg.ChecksumConfig(log.Warning),
		Transport: tr,
		Log:       log,
	}

	var prevNode *metadata.DirNode
	if prevDoc != nil && !cfg.DestAsEmpty {
		prevNode = prevDoc.Meta
	}

	state := NewSyncState()
	res := planner.Walk(localPath, remotePath, rootMeta, prevNode, state, true)
	if err := planner.Abort(); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("upload root %s is not accessible", localPath)
	}

	var deletedCount uint64
	for _, op := range res.FilesToDelete {
		if tr.Delete(op.Path, op.IsDir) {
			deletedCount++
		} else {
			res.ErrorCount++
		}
	}

	rootName := fmt.Sprintf("%sROOT.tar%s", cfg.ReservedPrefix, cfg.CompressionSuffix)
	sortedRetained := append([]string(nil), res.RetainedDirectories...)
	sort.Strings(sortedRetained)
	if nbytes, ok := tr.PackAndUpload(localPath, relativize(localPath, sortedRetained), remotePath+"/"+rootName, 0); ok {
		res.RealTransferSize += nbytes
		res.RealTransferFiles++
	} else {
		log.Warning("failed to upload directory skeleton")
		res.ErrorCount++
	}

	djs := newDisjointSet()
	for _, pair := range state.HardLinkList {
		djs.union(pair[0], pair[1])
	}

	hardLinks := make([][]string, 0)
	for _, group := range djs.sets() {
		encoded := make([]string, 0, len(group))
		for _, p := range group {
			rel, err := filepath.Rel(localPath, p)
			if err != nil {
				rel = p
			}
			encoded = append(encoded, codec.EncodeChild([]byte(rel)))
		}
		sort.Strings(encoded)
		hardLinks = append(hardLinks, encoded)
	}
	sort.Slice(hardLinks, func(i, j int) bool {
		if len(hardLinks[i]) != len(hardLinks[j]) {
			return len(hardLinks[i]) < len(hardLinks[j])
		}
		for k := range hardLinks[i] {
			if hardLinks[i][k] != hardLinks[j][k] {
				return hardLinks[i][k] < hardLinks[j][k]
			}
		}
		return false
	})

	doc := &metadata.Document{
		Version:  cfg.MetadataVersion,
		Meta:     res.Metadata,
		RootName: rootName,
		Checksum: metadata.ChecksumConfigRecord{
			UseFileChecksum:   cfg.UseFileChecksum,
			UseOwner:          cfg.UseOwner,
			UseDirectoryMtime: cfg.UseDirectoryMtime,
			HashFunction:      cfg.HashName,
		},
		HardLinks: hardLinks,
	}

	return &Result{
		TotalSize:          res.TotalSize,
		TotalFiles:         res.TotalFiles,
		TotalTransferSize:  res.TotalTransferSize,
		TotalTransferFiles: res.TotalTransferFiles,
		RealTransferSize:   res.RealTransferSize,
		RealTransferFiles:  res.RealTransferFiles,
		DeletedCount:       deletedCount,
		ErrorCount:         res.ErrorCount,
		Document:           doc,
	}, nil
}

func relativize(base string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil {
			rel = p
		}
		out[i] = rel
	}
	return out
}

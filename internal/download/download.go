// Package download implements the top-down walk that restores a tree
// from a metadata document: creating directories, unpacking each pack
// in place, and finally reconstructing hard links.
package download

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/adrien1018/metarclone/internal/codec"
	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/mlog"
	"github.com/adrien1018/metarclone/internal/transport"
)

// Result reports the counters a completed download accumulates.
type Result struct {
	TransferSize  uint64
	TransferFiles uint64
	ErrorCount    uint64
}

// Planner bundles the collaborators a download walk needs.
type Planner struct {
	Config    *config.DownloadConfig
	Transport transport.Transport
	Log       *mlog.Logger
}

// walk recursively restores node at localPath (mapped to remotePath on
// the remote).
func (p *Planner) walk(localPath, remotePath string, node *metadata.DirNode, res *Result) {
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		p.Log.Warning("unable to create directory %s: %v", localPath, err)
		res.ErrorCount++
		return
	}

	names := make([]string, 0, len(node.Files))
	for name := range node.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		nbytes, ok := p.Transport.DownloadAndUnpack(remotePath+"/"+name, localPath)
		if !ok {
			p.Log.Warning("failed to download pack %s", remotePath+"/"+name)
			res.ErrorCount++
			continue
		}
		res.TransferSize += nbytes
		res.TransferFiles++
	}

	childNames := make([]string, 0, len(node.Children))
	for name := range node.Children {
		childNames = append(childNames, name)
	}
	sort.Strings(childNames)
	for _, encoded := range childNames {
		decoded, err := codec.DecodeChild(encoded)
		if err != nil {
			p.Log.Warning("invalid encoded child name %q in metadata: %v", encoded, err)
			res.ErrorCount++
			continue
		}
		p.walk(filepath.Join(localPath, string(decoded)), remotePath+"/"+encoded, node.Children[encoded], res)
	}
}

// restoreHardLinks reconstructs every hard-link group in doc by
// unlinking the unpacked copy of each non-first member and relinking it
// to the first member, preserving the enclosing directory's mtime.
func (p *Planner) restoreHardLinks(localPath string, doc *metadata.Document, res *Result) {
	for _, group := range doc.HardLinks {
		if len(group) < 2 {
			continue
		}
		sourceRel, err := codec.DecodeChild(group[0])
		if err != nil {
			p.Log.Warning("invalid encoded hard-link source %q: %v", group[0], err)
			res.ErrorCount++
			continue
		}
		sourcePath := filepath.Join(localPath, string(sourceRel))

		for _, encoded := range group[1:] {
			memberRel, err := codec.DecodeChild(encoded)
			if err != nil {
				p.Log.Warning("invalid encoded hard-link member %q: %v", encoded, err)
				res.ErrorCount++
				continue
			}
			memberPath := filepath.Join(localPath, string(memberRel))
			parentDir := filepath.Dir(memberPath)

			parentInfo, err := os.Stat(parentDir)
			if err != nil {
				p.Log.Warning("unable to stat %s before relinking %s: %v", parentDir, memberPath, err)
				res.ErrorCount++
				continue
			}

			if err := os.Remove(memberPath); err != nil {
				p.Log.Warning("unable to remove unpacked copy %s: %v", memberPath, err)
				res.ErrorCount++
				continue
			}
			if err := os.Link(sourcePath, memberPath); err != nil {
				p.Log.Warning("unable to hardlink %s to %s: %v", memberPath, sourcePath, err)
				res.ErrorCount++
				continue
			}
			if err := os.Chtimes(parentDir, parentInfo.ModTime(), parentInfo.ModTime()); err != nil {
				p.Log.Warning("unable to restore mtime on %s: %v", parentDir, err)
				res.ErrorCount++
			}
		}
	}
}

// Run restores doc's tree at localPath from remotePath, unpacking every
// pack, then the root skeleton, then reconstructing hard links. The
// checksum configuration recorded in doc overrides whatever the flags
// selected, so any verification against this tree is self-consistent
// with the settings the uploader hashed under.
func Run(localPath, remotePath string, doc *metadata.Document, cfg *config.DownloadConfig, tr transport.Transport, log *mlog.Logger) *Result {
	res := &Result{}

	cfg.UseFileChecksum = doc.Checksum.UseFileChecksum
	cfg.UseOwner = doc.Checksum.UseOwner
	cfg.UseDirectoryMtime = doc.Checksum.UseDirectoryMtime
	if doc.Checksum.HashFunction != "" {
		if err := cfg.SetHashFunction(doc.Checksum.HashFunction); err != nil {
			log.Warning("metadata records unknown hash function %q: %v", doc.Checksum.HashFunction, err)
		}
	}

	planner := &Planner{Config: cfg, Transport: tr, Log: log}

	planner.walk(localPath, remotePath, doc.Meta, res)

	nbytes, ok := tr.DownloadAndUnpack(remotePath+"/"+doc.RootName, localPath)
	if !ok {
		log.Warning("failed to download directory skeleton %s", doc.RootName)
		res.ErrorCount++
	} else {
		res.TransferSize += nbytes
		res.TransferFiles++
	}

	planner.restoreHardLinks(localPath, doc, res)
	return res
}

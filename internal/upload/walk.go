// Package upload implements the bottom-up recursive walk that decides
// which directories fold into an ancestor's pack, which stay
// force-retained, and which packs must be rebuilt, uploaded, or
// deleted.
package upload

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrien1018/metarclone/internal/checksum"
	"github.com/adrien1018/metarclone/internal/codec"
	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/fsutil"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/mlog"
	"github.com/adrien1018/metarclone/internal/transport"
)

// Planner bundles the collaborators a walk needs so recursive calls
// don't have to thread each one through individually.
type Planner struct {
	Config    *config.UploadConfig
	Checksum  checksum.Config
	Transport transport.Transport
	Log       *mlog.Logger

	// abort is set by the first per-file failure when AbortOnError is
	// configured; once set, Walk unwinds without doing further work.
	abort error
}

// Abort returns the error that stopped the walk, if AbortOnError
// escalated a per-file failure; nil otherwise.
func (p *Planner) Abort() error {
	return p.abort
}

func (p *Planner) fileError(path string, err error) {
	p.Log.Warning("error accessing %s: %v", path, err)
	if p.Config.AbortOnError && p.abort == nil {
		p.abort = fmt.Errorf("accessing %s: %w", path, err)
	}
}

// deleteOp is a pending remote removal collected by a subtree and
// flushed either immediately or at the end of the run, depending on
// DeleteAfterUpload.
type deleteOp struct {
	Path  string
	IsDir bool
}

// WalkResult is the outcome of walking one subtree.
type WalkResult struct {
	TotalSize          uint64
	TotalFiles         uint64
	TotalTransferSize  uint64
	TotalTransferFiles uint64
	RealTransferSize   uint64
	RealTransferFiles  uint64

	ForceRetain bool
	// FilesToTar holds absolute paths to pack; valid only when
	// ForceRetain is false (nil once force-retained).
	FilesToTar map[string]struct{}
	// HardLinkMap holds this subtree's own (device, inode) candidates;
	// valid only when ForceRetain is false (nil once force-retained,
	// since a force-retained subtree flushes straight into SyncState).
	HardLinkMap map[[2]uint64]string

	FilesToDelete []deleteOp
	// RetainedDirectories holds absolute paths whose directory metadata
	// must be preserved via the skeleton pack; populated only once
	// ForceRetain is set.
	RetainedDirectories []string
	// Metadata is the new DirNode for this subtree; non-nil only when
	// ForceRetain is set.
	Metadata *metadata.DirNode

	FirstChecksum  []byte
	SecondChecksum []byte

	ErrorCount uint64
}

func newWalkResult() *WalkResult {
	return &WalkResult{
		TotalFiles:         1,
		TotalTransferFiles: 1,
		FilesToTar:         make(map[string]struct{}),
		HardLinkMap:        make(map[[2]uint64]string),
	}
}

// setForceRetain promotes this WalkResult to a force-retained directory
// the first time it's called for a given path; later calls are no-ops.
func (r *WalkResult) setForceRetain(path string) {
	if r.ForceRetain {
		return
	}
	r.ForceRetain = true
	r.FilesToTar = nil
	r.HardLinkMap = nil
	r.Metadata = metadata.NewDirNode()
	r.RetainedDirectories = []string{path}
}

// Walk recurses over the subtree rooted at path (with stat meta),
// comparing it against prevNode (nil if there is no previous state).
// remotePath is the corresponding remote prefix. It returns nil if the
// directory could not even be listed; the caller treats the subtree as
// absent.
func (p *Planner) Walk(path, remotePath string, meta *fsutil.Metadata, prevNode *metadata.DirNode, state *SyncState, isRoot bool) *WalkResult {
	if p.abort != nil {
		return nil
	}

	childNames, err := fsutil.ReadDirNames(path)
	if err != nil {
		p.fileError(path, err)
		return nil
	}

	res := newWalkResult()

	statMap := make(map[string]*fsutil.Metadata, len(childNames))
	for _, name := range childNames {
		if p.abort != nil {
			return nil
		}
		childPath := filepath.Join(path, name)
		if !p.included(path, name) {
			continue
		}
		m, err := fsutil.Lstat(childPath)
		if err != nil {
			p.fileError(childPath, err)
			res.ErrorCount++
			continue
		}
		statMap[name] = m
	}
	childSet := make(map[string]struct{}, len(statMap))
	for name := range statMap {
		childSet[name] = struct{}{}
	}

	remoteNames := make(map[string]struct{})

	remoteDel := func(name string, isDir bool) {
		delPath := remotePath + "/" + name
		if p.Config.DeleteAfterUpload {
			res.FilesToDelete = append(res.FilesToDelete, deleteOp{Path: delPath, IsDir: isDir})
			return
		}
		if !p.Transport.Delete(delPath, isDir) {
			p.Log.Warning("failed to delete remote: %s", delPath)
			res.ErrorCount++
		}
	}

	if prevNode != nil {
		for filename, entry := range prevNode.Files {
			keep, walkRes := p.verifyPackEntry(entry, statMap, path)
			if keep {
				for _, f := range decodeList(p.Log, entry.List) {
					delete(childSet, f)
				}
				remoteNames[filename] = struct{}{}
				res.setForceRetain(path)
				res.Metadata.Files[filename] = entry
				res.TotalSize += walkRes.TotalSize
				res.TotalFiles += walkRes.TotalFiles
				hardlinks := make(map[[2]uint64]string)
				for key, hp := range walkRes.HardLinks {
					state.updateHardLinkMap(key, string(hp), hardlinks)
				}
				for k, v := range hardlinks {
					state.HardLinkMap[k] = v
				}
			} else {
				remoteDel(filename, false)
				if p.Config.DeleteAfterUpload {
					remoteNames[filename] = struct{}{}
				}
			}
		}

		for encodedChild := range prevNode.Children {
			decoded, err := codec.DecodeChild(encodedChild)
			if err != nil {
				p.Log.Warning("invalid encoded child name %q in metadata: %v", encodedChild, err)
				continue
			}
			name := string(decoded)
			m, present := statMap[name]
			if !present || !m.Mode.IsDir() {
				remoteDel(encodedChild, true)
			}
		}
	}

	dirResultMap := make(map[string]*WalkResult)
	sizeMap := make(map[string]uint64)

	for child := range childSet {
		childMeta := statMap[child]
		childPath := filepath.Join(path, child)
		if childMeta.Mode.IsDir() {
			var childPrev *metadata.DirNode
			if prevNode != nil {
				childPrev = prevNode.Children[codec.EncodeChild([]byte(child))]
			}
			childRemote := remotePath + "/" + codec.EncodeChild([]byte(child))
			childRes := p.Walk(childPath, childRemote, childMeta, childPrev, state, false)
			if childRes == nil {
				res.ErrorCount++
				continue
			}
			dirResultMap[child] = childRes
			if childRes.ForceRetain {
				res.setForceRetain(path)
				res.RetainedDirectories = append(res.RetainedDirectories, childRes.RetainedDirectories...)
				res.Metadata.Children[codec.EncodeChild([]byte(child))] = childRes.Metadata
				res.RealTransferSize += childRes.RealTransferSize
				res.RealTransferFiles += childRes.RealTransferFiles
			} else {
				sizeMap[child] = childRes.TotalSize + childRes.TotalFiles*p.Config.FileBaseBytes
			}
			res.TotalSize += childRes.TotalSize
			res.TotalFiles += childRes.TotalFiles
			res.TotalTransferSize += childRes.TotalTransferSize
			res.TotalTransferFiles += childRes.TotalTransferFiles
			res.FilesToDelete = append(res.FilesToDelete, childRes.FilesToDelete...)
			res.ErrorCount += childRes.ErrorCount
		} else {
			sizeMap[child] = childMeta.Size + p.Config.FileBaseBytes
			res.TotalSize += childMeta.Size
			res.TotalFiles++
			res.TotalTransferSize += childMeta.Size
			res.TotalTransferFiles++
		}
	}

	if !isRoot && !res.ForceRetain && res.TotalSize+res.TotalFiles*p.Config.FileBaseBytes <= p.Config.MergeThreshold {
		p.foldInto(res, path, meta, childSet, statMap, dirResultMap, sizeMap, state)
		return res
	}

	res.setForceRetain(path)
	p.emitPacks(res, path, remotePath, statMap, dirResultMap, sizeMap, remoteNames, state)
	return res
}

// verifyPackEntry recomputes entry's checksum(s) against the children
// currently present in statMap, reporting whether the pack can be kept
// unmodified.
func (p *Planner) verifyPackEntry(entry *metadata.PackEntry, statMap map[string]*fsutil.Metadata, basePath string) (bool, *checksum.WalkResult) {
	walkRes := checksum.NewWalkResult()
	names := decodeList(p.Log, entry.List)
	for _, f := range names {
		if _, ok := statMap[f]; !ok {
			return false, walkRes
		}
	}
	walkList := make([]checksum.NamedMeta, len(names))
	for i, f := range names {
		walkList[i] = checksum.NamedMeta{Name: []byte(f), Meta: statMap[f]}
	}

	if p.Config.UseFileChecksum {
		if entry.FileSizeChecksum == "" || entry.FileChecksum == "" {
			return false, walkRes
		}
		sizeDigest := p.Checksum.ChecksumWalk(walkList, basePath, false, walkRes)
		if sizeDigest != entry.FileSizeChecksum {
			return false, walkRes
		}
		contentDigest := p.Checksum.ChecksumWalk(walkList, basePath, true, nil)
		return contentDigest == entry.FileChecksum, walkRes
	}
	if entry.MtimeChecksum == "" {
		return false, walkRes
	}
	return p.Checksum.ChecksumWalk(walkList, basePath, false, walkRes) == entry.MtimeChecksum, walkRes
}

// included reports whether name inside dir survives the exclude/include
// lists: an excluded path (and so everything under it, since its stat is
// simply never taken) is dropped outright; once any include path has
// been set, a child survives only if it lies on the path to one of them
// (an exact entry recorded by config.SetIncludeList) or inside one (an
// ancestor prefix of full is an include root).
func (p *Planner) included(dir, name string) bool {
	full := dir + "/" + name
	if _, excluded := p.Config.ExcludeList[full]; excluded {
		return false
	}
	if len(p.Config.IncludeList) == 0 {
		return true
	}
	if _, ok := p.Config.IncludeList[full]; ok {
		return true
	}
	anc := full
	for {
		idx := strings.LastIndexByte(anc, '/')
		if idx <= 0 {
			return false
		}
		anc = anc[:idx]
		if p.Config.IncludeList[anc] {
			return true
		}
	}
}

func decodeList(log *mlog.Logger, encoded []string) []string {
	out := make([]string, 0, len(encoded))
	for _, e := range encoded {
		decoded, err := codec.DecodeChild(e)
		if err != nil {
			log.Warning("invalid encoded name %q in metadata: %v", e, err)
			continue
		}
		out = append(out, string(decoded))
	}
	return out
}

// sortedSignatures computes S(name) for every entry in names (already
// sorted by raw byte name), reusing a folded child's memoized
// first/second checksum instead of re-walking its filesystem subtree.
func (p *Planner) sortedSignatures(names []string, statMap map[string]*fsutil.Metadata, dirResultMap map[string]*WalkResult, basePath string, secondPass bool) [][]byte {
	sigs := make([][]byte, len(names))
	for i, name := range names {
		m := statMap[name]
		if m.Mode.IsDir() {
			r := dirResultMap[name]
			if secondPass && p.Config.UseFileChecksum {
				sigs[i] = r.SecondChecksum
			} else {
				sigs[i] = r.FirstChecksum
			}
			continue
		}
		sig, ok := p.Checksum.OneFileChecksum([]byte(name), filepath.Join(basePath, name), m, secondPass)
		if !ok {
			sig = nil
		}
		sigs[i] = sig
	}
	return sigs
}

// foldInto absorbs the current directory into its parent's pack:
// aggregates its children's pending pack paths and hard-link candidates,
// and computes its own first/second checksum for the parent to reuse.
func (p *Planner) foldInto(res *WalkResult, path string, meta *fsutil.Metadata, childSet map[string]struct{}, statMap map[string]*fsutil.Metadata, dirResultMap map[string]*WalkResult, sizeMap map[string]uint64, state *SyncState) {
	res.FilesToTar[path] = struct{}{}
	for child := range sizeMap {
		res.FilesToTar[filepath.Join(path, child)] = struct{}{}
	}
	for _, childRes := range dirResultMap {
		if childRes.ForceRetain {
			continue
		}
		for f := range childRes.FilesToTar {
			res.FilesToTar[f] = struct{}{}
		}
		for k, v := range childRes.HardLinkMap {
			res.HardLinkMap[k] = v
		}
	}

	sortedNames := sortedSetKeys(childSet)
	firstSigs := p.sortedSignatures(sortedNames, statMap, dirResultMap, path, false)
	res.FirstChecksum = p.Checksum.DirectoryAggregateDigest([]byte(filepath.Base(path)), uint32(meta.Mode), meta.ModTimeNs, meta.UID, meta.GID, firstSigs)
	if p.Config.UseFileChecksum {
		secondSigs := p.sortedSignatures(sortedNames, statMap, dirResultMap, path, true)
		res.SecondChecksum = p.Checksum.DirectoryAggregateDigest([]byte(filepath.Base(path)), uint32(meta.Mode), meta.ModTimeNs, meta.UID, meta.GID, secondSigs)
	}

	for child := range childSet {
		childMeta := statMap[child]
		if childMeta.Mode.IsDir() {
			continue
		}
		if childMeta.Nlink > 1 {
			res.HardLinkMap[[2]uint64{childMeta.DeviceID, childMeta.Inode}] = filepath.Join(path, child)
		}
	}
}

// emitPacks groups the pending children of a force-retained directory
// into size-bounded packs per the configured grouping order, and uploads
// each group.
func (p *Planner) emitPacks(res *WalkResult, path, remotePath string, statMap map[string]*fsutil.Metadata, dirResultMap map[string]*WalkResult, sizeMap map[string]uint64, remoteNames map[string]struct{}, state *SyncState) {
	groupList := sortedSizeMapKeys(sizeMap)
	switch p.Config.GroupingOrder {
	case "size":
		sort.Slice(groupList, func(i, j int) bool {
			a, b := groupList[i], groupList[j]
			if sizeMap[a] != sizeMap[b] {
				return sizeMap[a] < sizeMap[b]
			}
			return a < b
		})
	case "mtime":
		sort.Slice(groupList, func(i, j int) bool {
			a, b := groupList[i], groupList[j]
			if statMap[a].ModTimeNs != statMap[b].ModTimeNs {
				return statMap[a].ModTimeNs < statMap[b].ModTimeNs
			}
			return a < b
		})
	case "name":
		sort.Strings(groupList)
	case "ctime":
		// The stat snapshot carries no distinct ctime field, so ctime
		// ordering falls back to name order, which is its tie-breaker
		// anyway.
		sort.Strings(groupList)
	default:
		sort.Strings(groupList)
	}

	var currentGroup []string
	var groupSize uint64
	fileIdx := 0

	flush := func() {
		sort.Strings(currentGroup)
		var uploadName string
		for {
			uploadName = fmt.Sprintf("%s%05d.tar%s", p.Config.ReservedPrefix, fileIdx, p.Config.CompressionSuffix)
			if _, used := remoteNames[uploadName]; !used {
				break
			}
			fileIdx++
		}

		entry := &metadata.PackEntry{}
		encodedList := make([]string, len(currentGroup))
		for i, f := range currentGroup {
			encodedList[i] = codec.EncodeChild([]byte(f))
		}
		sort.Strings(encodedList)
		entry.List = encodedList

		if p.Config.UseFileChecksum {
			firstSigs := p.sortedSignatures(currentGroup, statMap, dirResultMap, path, false)
			secondSigs := p.sortedSignatures(currentGroup, statMap, dirResultMap, path, true)
			entry.FileSizeChecksum = checksum.Hex(p.Checksum.GroupDigest(firstSigs))
			entry.FileChecksum = checksum.Hex(p.Checksum.GroupDigest(secondSigs))
		} else {
			firstSigs := p.sortedSignatures(currentGroup, statMap, dirResultMap, path, false)
			entry.MtimeChecksum = checksum.Hex(p.Checksum.GroupDigest(firstSigs))
		}
		res.Metadata.Files[uploadName] = entry

		var uploadList []string
		hardlinks := make(map[[2]uint64]string)
		for _, f := range currentGroup {
			fMeta := statMap[f]
			if fMeta.Mode.IsDir() {
				fRes := dirResultMap[f]
				for tp := range fRes.FilesToTar {
					uploadList = append(uploadList, tp)
				}
				for k, v := range fRes.HardLinkMap {
					state.updateHardLinkMap(k, v, hardlinks)
				}
			} else {
				fPath := filepath.Join(path, f)
				uploadList = append(uploadList, fPath)
				if fMeta.Nlink > 1 {
					state.updateHardLinkMap([2]uint64{fMeta.DeviceID, fMeta.Inode}, fPath, hardlinks)
				}
			}
		}
		for k, v := range hardlinks {
			state.HardLinkMap[k] = v
		}

		relList := make([]string, len(uploadList))
		for i, up := range uploadList {
			rel, err := filepath.Rel(path, up)
			if err != nil {
				rel = up
			}
			relList[i] = rel
		}
		sort.Strings(relList)

		remoteName := remotePath + "/" + uploadName
		nbytes, ok := p.Transport.PackAndUpload(path, relList, remoteName, groupSize)
		if !ok {
			p.Log.Warning("failed to upload: %s", filepath.Join(path, uploadName))
			delete(res.Metadata.Files, uploadName)
			res.ErrorCount++
		} else {
			res.RealTransferSize += nbytes
			res.RealTransferFiles++
		}

		currentGroup = nil
		groupSize = 0
		fileIdx++
	}

	for i, child := range groupList {
		if p.abort != nil {
			return
		}
		if len(currentGroup) > 0 && groupSize+sizeMap[child] > p.Config.MergeThreshold {
			flush()
		}
		groupSize += sizeMap[child]
		currentGroup = append(currentGroup, child)
		if groupSize > p.Config.MergeThreshold || i == len(groupList)-1 {
			flush()
		}
	}
}

func sortedSetKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSizeMapKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

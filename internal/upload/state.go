package upload

// SyncState carries the cross-directory bookkeeping that the bottom-up
// walk cannot compute locally: the running (device, inode) to path table
// used to detect hard links, and the pairs of paths that turned out to
// share an inode. It is threaded explicitly through the recursion rather
// than stored on the Planner, which during a walk changes only its abort
// error.
type SyncState struct {
	HardLinkMap  map[[2]uint64]string
	HardLinkList [][2]string
}

// NewSyncState returns an empty SyncState ready for a single upload run.
func NewSyncState() *SyncState {
	return &SyncState{HardLinkMap: make(map[[2]uint64]string)}
}

// updateHardLinkMap records path against key in newHardlinks unless the
// global table already has a representative for key, in which case the
// pair is queued for the final union-find pass. Two members of the same
// pack group never produce a pair: the archiver stores intra-archive
// hard links itself, so only cross-pack links need reconstruction.
func (s *SyncState) updateHardLinkMap(key [2]uint64, path string, newHardlinks map[[2]uint64]string) {
	if existing, ok := s.HardLinkMap[key]; ok {
		s.HardLinkList = append(s.HardLinkList, [2]string{existing, path})
		return
	}
	newHardlinks[key] = path
}

package fchm

// logPut and logRemove record a single mutable-snapshot write.
func (s *Series[K, V]) logPut(version uint64) {
	s.logger.Debug("fchm: put", "version", version)
}

func (s *Series[K, V]) logRemove(version uint64) {
	s.logger.Debug("fchm: remove", "version", version)
}

// logCopy records promotion of the mutable snapshot to immutable and the
// allocation of its successor.
func (s *Series[K, V]) logCopy(promotedVersion, newMutableVersion uint64) {
	s.logger.Debug("fchm: copy", "promoted_version", promotedVersion, "new_mutable_version", newMutableVersion)
}

// logRelease records a snapshot release, before the event is handed to
// the GC worker.
func (s *Series[K, V]) logRelease(version uint64) {
	s.logger.Debug("fchm: release", "version", version)
}

// logGCReleaseObserved records the GC worker receiving a release event,
// and whether it advanced the strictly in-order pruning frontier.
func (s *Series[K, V]) logGCReleaseObserved(version uint64, advancedFrontier bool) {
	s.logger.Debug("fchm: gc observed release", "version", version, "advanced_frontier", advancedFrontier)
}

// logGCPrunePass records one pass of the worklist for a version that
// just became the pruning frontier.
func (s *Series[K, V]) logGCPrunePass(target uint64, candidates int) {
	s.logger.Debug("fchm: gc prune pass", "target_version", target, "candidates", candidates)
}

// logGCSplice records a chain node spliced out by the GC.
func (s *Series[K, V]) logGCSplice(version uint64) {
	s.logger.Debug("fchm: gc splice", "version", version)
}

// logGCKeyDropped records a key whose last present value was just
// reclaimed, removing it from the Core Map entirely.
func (s *Series[K, V]) logGCKeyDropped() {
	s.logger.Debug("fchm: gc key dropped")
}

// logGCDeferred records a prune candidate re-filed at a later version
// because an intervening live snapshot still needs it as its floor
// value.
func (s *Series[K, V]) logGCDeferred(from, to uint64) {
	s.logger.Debug("fchm: gc deferred prune", "from_version", from, "to_version", to)
}

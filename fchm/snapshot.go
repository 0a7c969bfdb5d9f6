package fchm

import "sync/atomic"

type snapState uint32

const (
	snapMutable snapState = iota
	snapImmutable
	snapReleased
)

// Snapshot is an immutable or mutable logical view of the map at a
// particular version. Its observable content never changes once
// published: reads walk the chain from the head and return the first
// mutation with version <= Snapshot.version.
type Snapshot[K comparable, V any] struct {
	series  *Series[K, V]
	version uint64
	state   atomic.Uint32
}

// Version returns the version this snapshot was created or promoted at.
func (sn *Snapshot[K, V]) Version() uint64 { return sn.version }

// IsMutable reports whether this snapshot is currently the series'
// mutable snapshot.
func (sn *Snapshot[K, V]) IsMutable() bool {
	return snapState(sn.state.Load()) == snapMutable
}

func (sn *Snapshot[K, V]) checkUsable() error {
	if err := sn.series.checkPoisoned(); err != nil {
		return err
	}
	if snapState(sn.state.Load()) == snapReleased {
		return ErrUseAfterRelease
	}
	return nil
}

func (sn *Snapshot[K, V]) checkMutable() error {
	if err := sn.checkUsable(); err != nil {
		return err
	}
	if snapState(sn.state.Load()) != snapMutable {
		return ErrMutableExpected
	}
	return nil
}

// Get returns the value visible to this snapshot for key k, or false if
// the key is absent or tombstoned at or before this snapshot's version.
// It is safe to call concurrently with Put/Remove on the mutable
// snapshot and with Get on any other snapshot.
func (sn *Snapshot[K, V]) Get(k K) (V, bool, error) {
	var zero V
	if err := sn.checkUsable(); err != nil {
		return zero, false, err
	}

	s := sn.series
	s.mapMu.RLock()
	slot, ok := s.coreMap[k]
	s.mapMu.RUnlock()
	if !ok {
		return zero, false, nil
	}

	m := effectiveAt(slot.head.Load(), sn.version)
	if m == nil || !m.present {
		return zero, false, nil
	}
	return m.value, true, nil
}

// ContainsKey reports whether k has a present (non-tombstone) effective
// value at the current mutable version. Mutable-snapshot only.
func (sn *Snapshot[K, V]) ContainsKey(k K) (bool, error) {
	if err := sn.checkMutable(); err != nil {
		return false, err
	}
	_, ok, err := sn.Get(k)
	return ok, err
}

// Size returns the number of keys whose effective value at the current
// version is present. Mutable-snapshot only.
func (sn *Snapshot[K, V]) Size() (int, error) {
	if err := sn.checkMutable(); err != nil {
		return 0, err
	}
	return int(sn.series.size.Load()), nil
}

// Put installs a new head mutation for k at the current version and
// returns the value it superseded, if any. Fails with
// ErrMutableExpected on an immutable snapshot.
func (sn *Snapshot[K, V]) Put(k K, v V) (V, bool, error) {
	var zero V
	if err := sn.checkMutable(); err != nil {
		return zero, false, err
	}

	s := sn.series
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	// Re-check after acquiring the writer lock: a concurrent overflow in
	// Copy could have poisoned the series between the first check and
	// now.
	if err := sn.checkMutable(); err != nil {
		return zero, false, err
	}

	version := s.currentVersion.Load()
	slot := s.slotForWrite(k)

	oldHead := slot.head.Load()
	prior := effectiveAt(oldHead, version)

	var newHead *mutation[V]
	if oldHead != nil && oldHead.version == version {
		// A second write to this key within the same still-mutable
		// version replaces the head in place rather than stacking a
		// chain node with a duplicate version: oldHead was never
		// visible to any snapshot but this one, so it needs no prune
		// bookkeeping, just dropping.
		newHead = newMutation(v, true, version, oldHead.prev.Load())
	} else {
		newHead = newMutation(v, true, version, oldHead)
	}
	slot.head.Store(newHead)
	// oldHead is filed only once newHead is published, so the GC never
	// processes it while it is still the chain head.
	if oldHead != nil && oldHead.version != version {
		s.registerPruneCandidate(k, oldHead)
	}

	if prior == nil || !prior.present {
		s.size.Add(1)
	}

	s.logPut(version)

	if prior != nil && prior.present {
		return prior.value, true, nil
	}
	return zero, false, nil
}

// Remove tombstones k's effective value if present, returning the prior
// value; it is a no-op if k is already absent or tombstoned.
func (sn *Snapshot[K, V]) Remove(k K) (V, bool, error) {
	var zero V
	if err := sn.checkMutable(); err != nil {
		return zero, false, err
	}

	s := sn.series
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if err := sn.checkMutable(); err != nil {
		return zero, false, err
	}

	version := s.currentVersion.Load()

	s.mapMu.RLock()
	slot, ok := s.coreMap[k]
	s.mapMu.RUnlock()
	if !ok {
		return zero, false, nil
	}

	oldHead := slot.head.Load()
	prior := effectiveAt(oldHead, version)
	if prior == nil || !prior.present {
		return zero, false, nil // idempotent no-op
	}

	var newHead *mutation[V]
	if oldHead.version == version {
		// Same-version overwrite: see Put for why this replaces the
		// head in place instead of chaining a duplicate version.
		newHead = newMutation(zero, false, version, oldHead.prev.Load())
	} else {
		newHead = newMutation(zero, false, version, oldHead)
	}
	slot.head.Store(newHead)
	if oldHead.version != version {
		s.registerPruneCandidate(k, oldHead)
	}
	s.size.Add(-1)

	s.logRemove(version)

	return prior.value, true, nil
}

// slotForWrite returns the headSlot for k, creating one under mapMu if
// this is the first mutation ever made for k.
func (s *Series[K, V]) slotForWrite(k K) *headSlot[V] {
	s.mapMu.RLock()
	slot, ok := s.coreMap[k]
	s.mapMu.RUnlock()
	if ok {
		return slot
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if slot, ok = s.coreMap[k]; ok {
		return slot
	}
	slot = &headSlot[V]{}
	s.coreMap[k] = slot
	return slot
}

// Copy promotes this snapshot from mutable to immutable at its current
// version, allocates the next version as the series' new mutable
// snapshot, and returns it. It does not touch any chain entries, so its
// cost is independent of map size.
func (sn *Snapshot[K, V]) Copy() (*Snapshot[K, V], error) {
	if err := sn.checkMutable(); err != nil {
		return nil, err
	}

	s := sn.series
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if err := sn.checkMutable(); err != nil {
		return nil, err
	}

	v := sn.version
	nextV, err := s.nextVersion(v)
	if err != nil {
		return nil, err
	}

	next := &Snapshot[K, V]{series: s, version: nextV}
	next.state.Store(uint32(snapMutable))

	// Promote the existing mutable snapshot to immutable before
	// publishing the new one, so no reader can observe two mutable
	// snapshots at once.
	sn.state.Store(uint32(snapImmutable))
	s.immutableAlive.Add(1)

	s.liveMu.Lock()
	s.liveSnapshots[nextV] = next
	s.liveMu.Unlock()

	s.currentVersion.Store(nextV)
	s.mutable.Store(next)

	if s.metrics != nil {
		s.metrics.currentVersion.Set(float64(nextV))
		s.metrics.liveVersions.Inc()
	}
	s.logCopy(v, nextV)

	return next, nil
}

// Release marks this snapshot as no longer reachable and notifies the
// GC. Releasing the mutable snapshot while any immutable snapshot is
// still live fails with ErrReleaseOrderViolated; releasing an
// already-released snapshot fails with ErrUseAfterRelease (not
// ErrDuplicateRelease, which is reserved for Series.Release on a version
// that is not currently live).
func (sn *Snapshot[K, V]) Release() error {
	if err := sn.series.checkPoisoned(); err != nil {
		return err
	}

	// The mutable-vs-immutable release-order check and the state
	// transition must agree on the same observed state: if this
	// snapshot is (still) mutable and an immutable snapshot is alive,
	// refuse without mutating state, so the caller can retry later.
	if snapState(sn.state.Load()) == snapMutable && sn.series.immutableAlive.Load() > 0 {
		return ErrReleaseOrderViolated
	}

	prev := snapState(sn.state.Swap(uint32(snapReleased)))
	if prev == snapReleased {
		return ErrUseAfterRelease
	}
	if prev == snapImmutable {
		sn.series.immutableAlive.Add(-1)
	}

	s := sn.series
	s.liveMu.Lock()
	delete(s.liveSnapshots, sn.version)
	s.liveMu.Unlock()

	if s.metrics != nil {
		s.metrics.liveVersions.Dec()
	}
	s.logRelease(sn.version)

	select {
	case s.gcEvents <- sn.version:
	default:
		// Queue full: run inline rather than block the releasing
		// goroutine indefinitely.
		s.handleReleaseEvent(sn.version)
	}

	return nil
}

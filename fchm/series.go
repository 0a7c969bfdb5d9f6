package fchm

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// headSlot is the Core Map's per-key entry: an atomically published
// pointer to the head of that key's mutation chain. Splitting it out of
// mutation[V] lets the GC rewrite prev links (and, on head collapse,
// leave the slot itself untouched) without taking a lock that would
// block readers walking the chain.
type headSlot[V any] struct {
	head atomic.Pointer[mutation[V]]
}

// Series is the owning context of one mutable and zero or more immutable
// snapshots sharing the same Core Map. It holds the backing map, the
// live-version set, the GC's worklists, and the single background GC
// goroutine.
type Series[K comparable, V any] struct {
	cfg config

	// mapMu guards structural changes to coreMap (inserting a headSlot
	// for a never-before-seen key, deleting a key the GC has proven
	// dead). Readers and writers hold it only for the map index lookup
	// or insert, never across a chain walk; the GC's pruneOne holds the
	// write lock for the whole of one candidate's decision, chain walk
	// included.
	mapMu   sync.RWMutex
	coreMap map[K]*headSlot[V]
	size    atomic.Int64

	// writerMu serializes put/remove/copy on the mutable snapshot: at
	// most one writer is active at a time, readers are never blocked.
	writerMu        sync.Mutex
	currentVersion  atomic.Uint64
	mutable         atomic.Pointer[Snapshot[K, V]]
	immutableAlive  atomic.Int64

	liveMu        sync.RWMutex
	liveSnapshots map[uint64]*Snapshot[K, V]

	gcMu     sync.Mutex
	pending  map[uint64][]pruneCandidate[K, V]
	released map[uint64]struct{}
	nextToGC uint64
	gcEvents chan uint64
	gcDone   chan struct{}
	stopGC   context.CancelFunc

	poisoned atomic.Bool
	poisonMu sync.Mutex
	poisonErr error

	logger  *slog.Logger
	metrics *metrics
}

type pruneCandidate[K comparable, V any] struct {
	key  K
	node *mutation[V]
}

// New creates a Series and its initial mutable snapshot at version 0,
// and starts the single background GC goroutine. Callers must release every
// snapshot they obtain, and must call Close once the series is no longer
// needed so the GC goroutine can be reaped.
func New[K comparable, V any](ctx context.Context, opts ...Option) (*Series[K, V], *Snapshot[K, V]) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	gcCtx, stopGC := context.WithCancel(ctx)

	s := &Series[K, V]{
		cfg:           cfg,
		coreMap:       make(map[K]*headSlot[V], cfg.initialCapacity),
		liveSnapshots: make(map[uint64]*Snapshot[K, V]),
		pending:       make(map[uint64][]pruneCandidate[K, V]),
		released:      make(map[uint64]struct{}),
		gcEvents:      make(chan uint64, cfg.gcQueueSize),
		gcDone:        make(chan struct{}),
		stopGC:        stopGC,
		logger:        cfg.logger,
		metrics:       newMetrics(cfg.metricsRegisterer),
	}

	initial := &Snapshot[K, V]{series: s, version: 0}
	initial.state.Store(uint32(snapMutable))
	s.mutable.Store(initial)
	s.liveSnapshots[0] = initial

	if s.metrics != nil {
		s.metrics.currentVersion.Set(0)
		s.metrics.liveVersions.Set(1)
	}

	go s.runGC(gcCtx)

	return s, initial
}

// Close stops the background GC goroutine and blocks until it drains
// whatever release events are already queued, up to WithGCDrainTimeout.
func (s *Series[K, V]) Close() {
	s.stopGC()
	select {
	case <-s.gcDone:
	case <-time.After(s.cfg.gcDrainTimeout):
		s.logger.Warn("gc drain timed out on close", "timeout", s.cfg.gcDrainTimeout)
	}
}

func (s *Series[K, V]) poison(err error) {
	s.poisonMu.Lock()
	if s.poisonErr == nil {
		s.poisonErr = err
		s.poisoned.Store(true)
		s.logger.Warn("series poisoned", "error", err)
	}
	s.poisonMu.Unlock()
}

func (s *Series[K, V]) checkPoisoned() error {
	if s.poisoned.Load() {
		s.poisonMu.Lock()
		err := s.poisonErr
		s.poisonMu.Unlock()
		return errJoinPoisoned(err)
	}
	return nil
}

func errJoinPoisoned(cause error) error {
	if cause == nil {
		return ErrSeriesPoisoned
	}
	return &poisonedError{cause: cause}
}

type poisonedError struct{ cause error }

func (e *poisonedError) Error() string { return ErrSeriesPoisoned.Error() + ": " + e.cause.Error() }
func (e *poisonedError) Unwrap() []error { return []error{ErrSeriesPoisoned, e.cause} }

// nextVersion allocates the version following the current mutable
// version, poisoning the series on overflow.
func (s *Series[K, V]) nextVersion(current uint64) (uint64, error) {
	if current == math.MaxUint64 {
		s.poison(ErrVersionOverflow)
		return 0, ErrVersionOverflow
	}
	return current + 1, nil
}

// Release releases the snapshot at the given version.
func (s *Series[K, V]) Release(version uint64) error {
	s.liveMu.RLock()
	sn, ok := s.liveSnapshots[version]
	s.liveMu.RUnlock()
	if !ok {
		return ErrDuplicateRelease
	}
	return sn.Release()
}

// ReleaseMutable releases the current mutable snapshot. It fails with
// ErrReleaseOrderViolated if any immutable snapshot is still live.
func (s *Series[K, V]) ReleaseMutable() error {
	return s.mutable.Load().Release()
}

// SnapshotInfo is the diagnostic view of one live snapshot.
type SnapshotInfo struct {
	Version uint64
	Mutable bool
}

// Snapshots returns every currently live snapshot of the series, in no
// particular order.
func (s *Series[K, V]) Snapshots() []SnapshotInfo {
	s.liveMu.RLock()
	defer s.liveMu.RUnlock()
	out := make([]SnapshotInfo, 0, len(s.liveSnapshots))
	for _, sn := range s.liveSnapshots {
		out = append(out, SnapshotInfo{Version: sn.version, Mutable: sn.IsMutable()})
	}
	return out
}

// Hasher returns the key-hashing collaborator installed via WithHasher,
// or nil if none was configured. The Core Map itself always uses Go's
// built-in map and never calls this; it exists so an external
// collaborator (e.g. a Merkle overlay indexing the same keys) can hash
// consistently with whatever scheme the caller configured here.
func (s *Series[K, V]) Hasher() func(any) uint64 {
	return s.cfg.hasher
}

// LiveSpan returns the count of versions from the lowest live version to
// the current mutable version, inclusive.
func (s *Series[K, V]) LiveSpan() int {
	s.liveMu.RLock()
	lowest, ok := s.lowestLiveLocked()
	s.liveMu.RUnlock()
	if !ok {
		return 0
	}
	current := s.currentVersion.Load()
	return int(current-lowest) + 1
}

// lowestLiveLocked returns the minimum version among currently live
// snapshots. Callers must hold liveMu (read or write).
func (s *Series[K, V]) lowestLiveLocked() (uint64, bool) {
	lowest := uint64(math.MaxUint64)
	found := false
	for v := range s.liveSnapshots {
		if !found || v < lowest {
			lowest = v
			found = true
		}
	}
	return lowest, found
}

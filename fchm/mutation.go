package fchm

import "sync/atomic"

// mutation is one versioned write (or tombstone) for a single key.
//
// Chains are singly linked through prev, strictly decreasing in version:
// if m.prev != nil then m.prev.version < m.version.
// A chain is exclusively owned by the head slot that references it; once
// a mutation is published (installed as, or linked beneath, a chain head)
// its value and version never change — only prev is ever rewritten, and
// only by the GC's splice step. prev is an atomic.Pointer rather than a
// plain field so that publish (GC's splice) happens-before any reader
// that subsequently loads it.
type mutation[V any] struct {
	value   V
	present bool // false = tombstone
	version uint64
	prev    atomic.Pointer[mutation[V]]
}

func newMutation[V any](value V, present bool, version uint64, prev *mutation[V]) *mutation[V] {
	m := &mutation[V]{value: value, present: present, version: version}
	m.prev.Store(prev)
	return m
}

// effectiveAt walks the chain from head and returns the first mutation
// with version <= at. Reads never fall through a tombstone to
// an older non-tombstone mutation — the caller interprets a tombstone
// result as absent directly.
func effectiveAt[V any](head *mutation[V], at uint64) *mutation[V] {
	for m := head; m != nil; m = m.prev.Load() {
		if m.version <= at {
			return m
		}
	}
	return nil
}

// youngerNeighbor walks from head looking for the node whose prev is
// target, returning it along with whether target is itself the head (a
// nil neighbor with isHead=false means target has already been spliced
// out of the chain by an earlier pass).
func youngerNeighbor[V any](head, target *mutation[V]) (neighbor *mutation[V], isHead bool) {
	if head == target {
		return nil, true
	}
	for m := head; m != nil; m = m.prev.Load() {
		if m.prev.Load() == target {
			return m, false
		}
	}
	return nil, false
}

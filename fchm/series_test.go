package fchm_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"fchm/fchm"
)

func newTestSeries(t *testing.T) (*fchm.Series[string, int], *fchm.Snapshot[string, int]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s, m := fchm.New[string, int](ctx)
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s, m
}

// TestScenario_S1_BasicCopyIsolation covers the basic copy-isolation
// story: writes after a copy must not leak into snapshots taken before it.
func TestScenario_S1_BasicCopyIsolation(t *testing.T) {
	_, m := newTestSeries(t)

	if _, _, err := m.Put("k", 10); err != nil {
		t.Fatalf("put: %v", err)
	}
	c1 := m
	m, err := c1.Copy()
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, _, err := m.Put("k", 20); err != nil {
		t.Fatalf("put: %v", err)
	}
	c2 := m
	m, err = c2.Copy()
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, _, err := m.Remove("k"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if v, ok, _ := c1.Get("k"); !ok || v != 10 {
		t.Errorf("c1.Get(k) = %v, %v; want 10, true", v, ok)
	}
	if v, ok, _ := c2.Get("k"); !ok || v != 20 {
		t.Errorf("c2.Get(k) = %v, %v; want 20, true", v, ok)
	}
	if _, ok, _ := m.Get("k"); ok {
		t.Errorf("m.Get(k) = present; want absent after remove")
	}

	if c1.Version() != 0 || c2.Version() != 1 || m.Version() != 2 {
		t.Errorf("versions = %d,%d,%d; want 0,1,2", c1.Version(), c2.Version(), m.Version())
	}
}

// TestScenario_S5_ReleaseMutableLast checks that the mutable snapshot
// cannot be released while an immutable snapshot is still outstanding.
func TestScenario_S5_ReleaseMutableLast(t *testing.T) {
	s, m := newTestSeries(t)

	if _, err := m.Copy(); err != nil {
		t.Fatalf("copy: %v", err)
	}

	err := s.ReleaseMutable()
	if !errors.Is(err, fchm.ErrReleaseOrderViolated) {
		t.Fatalf("ReleaseMutable = %v; want ErrReleaseOrderViolated", err)
	}
}

// TestPutReturnsPriorValue exercises Put/Remove/Get's algebraic laws:
// Put returns what it superseded, and a later Get reflects the new value.
func TestPutReturnsPriorValue(t *testing.T) {
	_, m := newTestSeries(t)

	if _, ok, _ := m.Put("x", 1); ok {
		t.Errorf("first put returned ok=true")
	}
	prior, ok, _ := m.Put("x", 2)
	if !ok || prior != 1 {
		t.Errorf("second put returned %v, %v; want 1, true", prior, ok)
	}
	if v, ok, _ := m.Get("x"); !ok || v != 2 {
		t.Errorf("get after put,put = %v, %v; want 2, true", v, ok)
	}

	prior, ok, _ = m.Remove("x")
	if !ok || prior != 2 {
		t.Errorf("remove returned %v, %v; want 2, true", prior, ok)
	}
	if _, ok, _ := m.Get("x"); ok {
		t.Errorf("get after remove: present; want absent")
	}
}

// TestRemoveIsIdempotentNoOp checks that removing an absent key is a
// no-op.
func TestRemoveIsIdempotentNoOp(t *testing.T) {
	_, m := newTestSeries(t)

	if _, ok, err := m.Remove("never-there"); ok || err != nil {
		t.Errorf("remove on absent key = %v, %v; want false, nil", ok, err)
	}

	if _, _, err := m.Put("y", 1); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := m.Remove("y"); !ok || err != nil {
		t.Fatalf("first remove = %v, %v; want true, nil", ok, err)
	}
	if _, ok, err := m.Remove("y"); ok || err != nil {
		t.Errorf("second remove = %v, %v; want false, nil (open question: double-tombstone is a no-op)", ok, err)
	}
}

// TestMutableOnlyOperationsRejectImmutable checks ErrMutableExpected.
func TestMutableOnlyOperationsRejectImmutable(t *testing.T) {
	_, m := newTestSeries(t)

	if _, _, err := m.Put("k", 1); err != nil {
		t.Fatal(err)
	}
	imm := m
	if _, err := imm.Copy(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := imm.Put("k", 2); !errors.Is(err, fchm.ErrMutableExpected) {
		t.Errorf("imm.Put = %v; want ErrMutableExpected", err)
	}
	if _, _, err := imm.Remove("k"); !errors.Is(err, fchm.ErrMutableExpected) {
		t.Errorf("imm.Remove = %v; want ErrMutableExpected", err)
	}
	if _, err := imm.Copy(); !errors.Is(err, fchm.ErrMutableExpected) {
		t.Errorf("imm.Copy = %v; want ErrMutableExpected", err)
	}

	// get/version/is_mutable remain valid on any snapshot.
	if v, ok, err := imm.Get("k"); err != nil || !ok || v != 1 {
		t.Errorf("imm.Get(k) = %v, %v, %v; want 1, true, nil", v, ok, err)
	}
	if imm.IsMutable() {
		t.Errorf("imm.IsMutable() = true; want false")
	}
}

// TestUseAfterRelease checks that Get fails once a snapshot is released,
// and that Release itself is not idempotent.
func TestUseAfterRelease(t *testing.T) {
	_, m := newTestSeries(t)

	if _, _, err := m.Put("k", 1); err != nil {
		t.Fatal(err)
	}
	imm := m
	if _, err := imm.Copy(); err != nil {
		t.Fatal(err)
	}

	if err := imm.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, _, err := imm.Get("k"); !errors.Is(err, fchm.ErrUseAfterRelease) {
		t.Errorf("get after release = %v; want ErrUseAfterRelease", err)
	}
	if err := imm.Release(); !errors.Is(err, fchm.ErrUseAfterRelease) {
		t.Errorf("double release = %v; want ErrUseAfterRelease", err)
	}
}

// TestDuplicateRelease exercises Series.Release on a version that was
// never live.
func TestDuplicateRelease(t *testing.T) {
	s, _ := newTestSeries(t)

	if err := s.Release(999); !errors.Is(err, fchm.ErrDuplicateRelease) {
		t.Errorf("release of unknown version = %v; want ErrDuplicateRelease", err)
	}
}

// TestBoundaryEmptyMap exercises an empty series: lookups, size, and
// copying an empty map.
func TestBoundaryEmptyMap(t *testing.T) {
	_, m := newTestSeries(t)

	if sz, err := m.Size(); err != nil || sz != 0 {
		t.Errorf("Size() = %d, %v; want 0, nil", sz, err)
	}
	if _, ok, err := m.Get("absent"); err != nil || ok {
		t.Errorf("Get(absent) = %v, %v; want false, nil", ok, err)
	}

	c := m
	m, err := c.Copy()
	if err != nil {
		t.Fatal(err)
	}
	if sz, _ := m.Size(); sz != 0 {
		t.Errorf("mutable Size() after copy of empty map = %d; want 0", sz)
	}
	if _, ok, _ := c.Get("absent"); ok {
		t.Errorf("copy of empty map: Get(absent) = true; want false")
	}
}

// TestScenario_S4_ReferenceMapEquivalence keeps a plain Go map in
// lockstep with the mutable snapshot and asserts every operation agrees,
// exercising both branches of the double-tombstone no-op behavior.
func TestScenario_S4_ReferenceMapEquivalence(t *testing.T) {
	_, m := newTestSeries(t)

	reference := make(map[string]int)
	rng := rand.New(rand.NewSource(1))
	keys := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 5000; i++ {
		k := keys[rng.Intn(len(keys))]
		if rng.Intn(2) == 0 {
			v := rng.Int()
			refPrior, refOK := reference[k]
			gotPrior, gotOK, err := m.Put(k, v)
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if gotOK != refOK || (gotOK && gotPrior != refPrior) {
				t.Fatalf("put(%q,%d) prior = %v,%v; want %v,%v", k, v, gotPrior, gotOK, refPrior, refOK)
			}
			reference[k] = v
		} else {
			refPrior, refOK := reference[k]
			gotPrior, gotOK, err := m.Remove(k)
			if err != nil {
				t.Fatalf("remove: %v", err)
			}
			if gotOK != refOK || (gotOK && gotPrior != refPrior) {
				t.Fatalf("remove(%q) prior = %v,%v; want %v,%v", k, gotPrior, gotOK, refPrior, refOK)
			}
			delete(reference, k)
		}

		for _, k := range keys {
			wantV, wantOK := reference[k]
			gotV, gotOK, err := m.Get(k)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if gotOK != wantOK || (gotOK && gotV != wantV) {
				t.Fatalf("get(%q) = %v,%v; want %v,%v", k, gotV, gotOK, wantV, wantOK)
			}
		}
	}
}

// TestScenario_S6_ConcurrentReaders checks that a frozen older snapshot
// never observes a value written after it was taken, even while readers
// race a writer on the mutable snapshot.
func TestScenario_S6_ConcurrentReaders(t *testing.T) {
	_, m := newTestSeries(t)

	if _, _, err := m.Put("ctr", 0); err != nil {
		t.Fatal(err)
	}
	frozen := m
	m, err := frozen.Copy()
	if err != nil {
		t.Fatal(err)
	}
	v0, ok, _ := frozen.Get("ctr")
	if !ok {
		t.Fatal("frozen.Get before writes: not found")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 10000; i++ {
			if _, _, err := m.Put("ctr", i); err != nil {
				t.Errorf("put: %v", err)
				return
			}
		}
	}()

	const readers = 8
	readerDone := make(chan struct{}, readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer func() { readerDone <- struct{}{} }()
			deadline := time.Now().Add(50 * time.Millisecond)
			for time.Now().Before(deadline) {
				v, ok, err := frozen.Get("ctr")
				if err != nil || !ok || v != v0 {
					t.Errorf("frozen.Get(ctr) = %v,%v,%v; want %v,true,nil", v, ok, err, v0)
					return
				}
			}
		}()
	}

	<-done
	for i := 0; i < readers; i++ {
		<-readerDone
	}
}

// TestSnapshotsDiagnostic exercises the unordered iteration and LiveSpan
// diagnostics.
func TestSnapshotsDiagnostic(t *testing.T) {
	s, m := newTestSeries(t)

	c1, err := m.Copy()
	if err != nil {
		t.Fatal(err)
	}
	_ = c1

	snaps := s.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("len(Snapshots()) = %d; want 2", len(snaps))
	}
	if span := s.LiveSpan(); span != 2 {
		t.Errorf("LiveSpan() = %d; want 2", span)
	}
}

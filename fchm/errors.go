package fchm

import "errors"

// Sentinel errors for typed handling on the caller side via errors.Is.
var (
	ErrMutableExpected     = errors.New("fchm: operation requires the mutable snapshot")
	ErrUseAfterRelease     = errors.New("fchm: snapshot already released")
	ErrReleaseOrderViolated = errors.New("fchm: mutable snapshot released while immutable snapshots remain")
	ErrDuplicateRelease    = errors.New("fchm: version is not currently live")
	ErrVersionOverflow     = errors.New("fchm: version counter overflowed")
	ErrSeriesPoisoned      = errors.New("fchm: series poisoned by a prior fatal error")
)

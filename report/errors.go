package report

import "errors"

var (
	// ErrConnectivity marks a position source that could not be reached at
	// all; the whole report aborts.
	ErrConnectivity = errors.New("report: position source unreachable")
	// ErrNoPositions marks an owner address that resolves but holds no
	// positions, before any eligibility filtering.
	ErrNoPositions = errors.New("report: no positions found")
	// ErrNotFound marks a requested position id that does not exist.
	ErrNotFound = errors.New("report: position not found")
)

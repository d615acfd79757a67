package risk

import "errors"

// Sentinel errors surfaced to API callers. Everything else in the engine
// degrades to "no alert/anomaly produced this cycle" with a logged warning.
var (
	// ErrNotFound indicates a referenced property or alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates a decision was attempted on an alert that is
	// no longer pending. Decisions are terminal; there is no re-decision.
	ErrInvalidState = errors.New("invalid state")
)

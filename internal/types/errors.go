package types

import "fmt"

// The four failure classes are all terminal for the current request. None is
// downgraded to a partial success: callers get a typed failure or a result,
// never a best-effort guess dressed as success.

// UnsupportedCapability means the request demands a feature the target
// provider/model cannot deliver. Detected before any network call.
type UnsupportedCapability struct {
	Provider string
	ModelID  string
	Reason   string
}

func (e *UnsupportedCapability) Error() string {
	return fmt.Sprintf("unsupported capability on %s/%s: %s", e.Provider, e.ModelID, e.Reason)
}

// ProviderUnavailable means transport-level failure persisted through the
// bounded retry budget. The last underlying error is attached.
type ProviderUnavailable struct {
	Provider string
	Attempts int
	Last     error
}

func (e *ProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}

func (e *ProviderUnavailable) Unwrap() error { return e.Last }

// GroundingRequired means the provider answered without performing the
// mandated search. Not retried: a search the provider chose to skip is
// unlikely to happen on a rerun, and the caller needs an explicit signal
// rather than a delayed one.
type GroundingRequired struct {
	Provider string
	ModelID  string
}

func (e *GroundingRequired) Error() string {
	return fmt.Sprintf("grounding required but %s/%s answered without searching", e.Provider, e.ModelID)
}

// ShapeViolation means the provider response broke the documented structured
// contract (malformed citation record, unparseable structured payload).
// Not retried; the offending fragment is kept for diagnosis.
type ShapeViolation struct {
	Reason   string
	Fragment string
}

func (e *ShapeViolation) Error() string {
	if e.Fragment == "" {
		return "shape violation: " + e.Reason
	}
	return fmt.Sprintf("shape violation: %s (fragment: %.200s)", e.Reason, e.Fragment)
}

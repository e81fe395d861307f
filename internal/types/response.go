package types

import (
	"encoding/json"
	"time"
)

// GroundingResult is the canonical, provider-independent outcome of one
// grounding call. Adapters construct it, the canonicalizer refines it in
// place, the validator sets GroundedEffective, and after that it is treated
// as immutable.
type GroundingResult struct {
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`
	ModelID   string `json:"model_id"`

	Text              string     `json:"text"`
	ToolCallCount     int        `json:"tool_call_count"`
	Citations         []Citation `json:"citations"`
	GroundedEffective bool       `json:"grounded_effective"`

	// RawProviderPayload is the untouched provider response body, kept for
	// audit and diagnosis only. Nothing downstream parses it.
	RawProviderPayload json.RawMessage `json:"raw_provider_payload,omitempty"`

	Latency time.Duration `json:"latency_ns"`
}

// Citation is a structured record of a source the provider consulted while
// grounding. Adapters populate it exclusively from typed response metadata,
// never from the answer text.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

package types

import (
	"fmt"
	"time"
)

// GroundingMode controls whether the provider must perform a live web search
// before answering.
type GroundingMode string

const (
	// ModeNone disables grounding; the result is never marked grounded.
	ModeNone GroundingMode = "NONE"
	// ModeAuto lets the provider decide; absence of grounding is accepted.
	ModeAuto GroundingMode = "AUTO"
	// ModeRequired mandates grounding; an ungrounded answer is a failure.
	ModeRequired GroundingMode = "REQUIRED"
)

// ParseGroundingMode converts the wire representation into a GroundingMode.
func ParseGroundingMode(s string) (GroundingMode, error) {
	switch GroundingMode(s) {
	case ModeNone, ModeAuto, ModeRequired:
		return GroundingMode(s), nil
	case "":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("unknown grounding mode: %q", s)
	}
}

// GroundingRequest is the canonical internal representation of one grounding
// call. All provider-specific request formats are derived from this type.
type GroundingRequest struct {
	// Identity (set by the HTTP layer)
	RequestID string `json:"request_id"`

	// Request content
	Prompt         string         `json:"prompt"`
	Locale         *LocaleContext `json:"locale_context,omitempty"`
	ModelID        string         `json:"model_id"`
	Mode           GroundingMode  `json:"grounding_mode"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`

	// Metadata
	Provider     string `json:"provider,omitempty"`
	TraceContext string `json:"trace_context,omitempty"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
}

// LocaleContext describes an inferred locale. It is only ever turned into
// style cues (date format, currency symbol, civic-portal label); the code and
// name fields are configuration inputs and must never reach the model as
// literal tokens.
type LocaleContext struct {
	CountryCode string `json:"country_code" yaml:"country_code"`
	CountryName string `json:"country_name,omitempty" yaml:"country_name"`
	City        string `json:"city,omitempty" yaml:"city"`
	UTCOffset   string `json:"utc_offset,omitempty" yaml:"utc_offset"`

	// Style cues. Optional; the injector falls back to generic phrasing
	// for any cue left empty.
	Currency    string `json:"currency,omitempty" yaml:"currency"`
	CivicPortal string `json:"civic_portal,omitempty" yaml:"civic_portal"`
	DateSample  string `json:"date_sample,omitempty" yaml:"date_sample"`
	PhonePrefix string `json:"phone_prefix,omitempty" yaml:"phone_prefix"`
}

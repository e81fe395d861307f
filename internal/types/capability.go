package types

// ProviderCapability is a static, per-model descriptor of what a provider can
// deliver. It is loaded from configuration at startup and read-only after;
// the orchestrator consults it before any network call so unsupported
// combinations fail fast instead of after a slow round trip.
type ProviderCapability struct {
	SupportsStructuredOutput   bool `yaml:"supports_structured_output" json:"supports_structured_output"`
	SupportsGrounding          bool `yaml:"supports_grounding" json:"supports_grounding"`
	SupportsToolChoiceRequired bool `yaml:"supports_tool_choice_required" json:"supports_tool_choice_required"`

	// SupportsStructuredOutputWithTools covers the provider-version-dependent
	// case where a schema and an attached search tool cannot coexist even
	// though each works alone.
	SupportsStructuredOutputWithTools bool `yaml:"supports_structured_output_with_tools" json:"supports_structured_output_with_tools"`
}

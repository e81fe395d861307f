package config

import "github.com/probelab/groundcheck/internal/types"

// CapabilitiesConfig is the injected, read-only capability table. Keys are
// "<provider>/<model>". A model absent from the table gets the zero-value
// capability, which denies everything, so untabulated models fail fast
// instead of after an expensive round trip.
type CapabilitiesConfig struct {
	Models map[string]types.ProviderCapability `yaml:"models"`
}

// Lookup returns the capability descriptor for provider/model.
func (c *CapabilitiesConfig) Lookup(provider, model string) types.ProviderCapability {
	if c == nil || c.Models == nil {
		return types.ProviderCapability{}
	}
	return c.Models[provider+"/"+model]
}

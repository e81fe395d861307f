package config

import "github.com/probelab/groundcheck/internal/types"

// LocalesConfig holds the locale descriptors available for ambient-context
// injection, keyed by ISO-3166 alpha-2 code. Each entry is validated at load
// time: a cue set that cannot be rendered without leaking the locale code or
// name rejects the whole configuration.
type LocalesConfig struct {
	Locales map[string]types.LocaleContext `yaml:"locales"`
}

// Lookup resolves a configured locale by country code.
func (c *LocalesConfig) Lookup(code string) (types.LocaleContext, bool) {
	if c == nil || c.Locales == nil {
		return types.LocaleContext{}, false
	}
	lc, ok := c.Locales[code]
	if ok && lc.CountryCode == "" {
		lc.CountryCode = code
	}
	return lc, ok
}

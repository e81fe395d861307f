package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
engine:
  max_retries: 4
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxRetries != 4 {
		t.Errorf("expected max_retries 4, got %d", cfg.Engine.MaxRetries)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func writeConfigDir(t *testing.T, locales string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"gateway.yaml": `
engine:
  system_instructions:
    - "Answer concisely in the language of the question."
`,
		"providers.yaml": `
providers:
  openai:
    type: openai
    base_url: "https://api.openai.com/v1"
    api_key: "test"
`,
		"capabilities.yaml": `
models:
  openai/gpt-5:
    supports_structured_output: true
    supports_grounding: true
`,
		"locales.yaml": locales,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoader_RejectsLeakingLocale(t *testing.T) {
	dir := writeConfigDir(t, `
locales:
  DE:
    country_name: "Germany"
    date_sample: "31.08.2026"
    civic_portal: "DE Burgerportal"
`)
	l := NewLoader(dir, testLogger())
	if err := l.Load(); err == nil {
		t.Fatal("expected load to fail: civic portal cue spells out the country code")
	}
}

func TestLoader_AcceptsCleanLocales(t *testing.T) {
	dir := writeConfigDir(t, `
locales:
  DE:
    country_name: "Germany"
    date_sample: "31.08.2026"
    currency: "12,50 EUR"
    civic_portal: "Digitales Rathaus"
`)
	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	lc, ok := l.Locales().Lookup("DE")
	if !ok {
		t.Fatal("expected DE locale to be configured")
	}
	if lc.CountryCode != "DE" {
		t.Errorf("Lookup should backfill the country code, got %q", lc.CountryCode)
	}
	caps := l.Capabilities().Lookup("openai", "gpt-5")
	if !caps.SupportsGrounding {
		t.Error("expected gpt-5 grounding capability from capabilities.yaml")
	}
	if unknown := l.Capabilities().Lookup("openai", "nope"); unknown.SupportsGrounding {
		t.Error("unknown model must get the zero-value capability")
	}
}

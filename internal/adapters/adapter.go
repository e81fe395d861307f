// Package adapters translates the canonical grounding contract into
// provider-specific API calls and back. One implementation per backend; the
// orchestrator never sees a provider wire format.
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/probelab/groundcheck/internal/config"
	"github.com/probelab/groundcheck/internal/types"
)

// Message is one conversation entry sent to the provider. The ambient locale
// block, when present, arrives as its own message preceding the user prompt;
// adapters must never merge the two.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderAdapter is the fixed per-provider contract. Execute performs
// exactly one network round trip; retries belong to the orchestrator.
type ProviderAdapter interface {
	Name() string
	Capabilities(modelID string) types.ProviderCapability
	Execute(ctx context.Context, req *types.GroundingRequest, messages []Message) (*types.GroundingResult, error)
}

// TransportError is a network-level failure: connection error, timeout, or a
// non-2xx status. The orchestrator retries the retryable subset and folds
// exhaustion into ProviderUnavailable.
type TransportError struct {
	Provider string
	Status   int // 0 when the request never completed
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether a retry has any chance of a different outcome.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// CheckCapability rejects request/capability combinations that the target
// model cannot deliver. Called by the orchestrator before any network I/O and
// re-asserted by each adapter before building its wire request.
func CheckCapability(provider, modelID string, caps types.ProviderCapability, req *types.GroundingRequest) error {
	if req.Mode != types.ModeNone && !caps.SupportsGrounding {
		return &types.UnsupportedCapability{
			Provider: provider, ModelID: modelID,
			Reason: fmt.Sprintf("grounding mode %s requested but model cannot ground", req.Mode),
		}
	}
	if req.ResponseSchema != nil && !caps.SupportsStructuredOutput {
		return &types.UnsupportedCapability{
			Provider: provider, ModelID: modelID,
			Reason: "response schema requested but model has no structured output",
		}
	}
	if req.ResponseSchema != nil && req.Mode != types.ModeNone && !caps.SupportsStructuredOutputWithTools {
		return &types.UnsupportedCapability{
			Provider: provider, ModelID: modelID,
			Reason: "response schema cannot be combined with an attached search tool on this model",
		}
	}
	return nil
}

// Registry manages provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]ProviderAdapter),
	}
}

func (r *Registry) Register(name string, adapter ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Replace swaps the adapter set for the one held by other. Safe against
// concurrent Get calls from in-flight requests; used on config reload.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	next := make(map[string]ProviderAdapter, len(other.adapters))
	for name, a := range other.adapters {
		next[name] = a
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config. The
// capability table is passed as an accessor so hot-reloaded tables take
// effect without rebuilding adapters.
func BuildFromConfig(provCfg *config.ProvidersConfig, caps func() *config.CapabilitiesConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter ProviderAdapter
		switch cfg.Type {
		case "gemini":
			adapter = NewGeminiAdapter(name, cfg, client, caps)
		default:
			// Unknown types get the OpenAI-compatible adapter.
			adapter = NewOpenAIAdapter(name, cfg, client, caps)
		}
		registry.Register(name, adapter)
	}
	return registry
}

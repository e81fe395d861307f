// Package engine sequences the grounding pipeline for one request:
// capability gate, locale injection, provider call under timeout with
// bounded transport retry, canonicalization, fail-closed validation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/probelab/groundcheck/internal/adapters"
	"github.com/probelab/groundcheck/internal/canonical"
	"github.com/probelab/groundcheck/internal/config"
	"github.com/probelab/groundcheck/internal/locale"
	"github.com/probelab/groundcheck/internal/telemetry"
	"github.com/probelab/groundcheck/internal/types"
)

// Orchestrator owns the per-request pipeline. Requests are independent; the
// only cross-request state is the counters, which are atomic.
type Orchestrator struct {
	registry     *adapters.Registry
	cfg          func() *config.Config
	capabilities func() *config.CapabilitiesConfig
	locales      func() *config.LocalesConfig
	validator    *Validator
	metrics      *telemetry.Metrics
	logger       *slog.Logger

	attempts atomic.Uint64
	failures atomic.Uint64
}

func NewOrchestrator(
	registry *adapters.Registry,
	cfg func() *config.Config,
	capabilities func() *config.CapabilitiesConfig,
	locales func() *config.LocalesConfig,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		cfg:          cfg,
		capabilities: capabilities,
		locales:      locales,
		validator:    NewValidator(logger, metrics),
		metrics:      metrics,
		logger:       logger,
	}
}

// Counters reports the process-wide attempt and failure tallies.
func (o *Orchestrator) Counters() (attempts, failures uint64) {
	return o.attempts.Load(), o.failures.Load()
}

// Run executes the pipeline for one request. All four taxonomy failures are
// terminal; only transport-level errors are retried, and only within the
// configured budget.
func (o *Orchestrator) Run(ctx context.Context, req *types.GroundingRequest) (*types.GroundingResult, error) {
	cfg := o.cfg()

	adapter, ok := o.registry.Get(req.Provider)
	if !ok {
		err := &types.UnsupportedCapability{
			Provider: req.Provider,
			ModelID:  req.ModelID,
			Reason:   "unknown provider",
		}
		o.recordFinal(req, nil, err)
		return nil, err
	}

	// Fail fast on capability mismatches, before any network I/O.
	caps := o.capabilities().Lookup(req.Provider, req.ModelID)
	if err := adapters.CheckCapability(req.Provider, req.ModelID, caps, req); err != nil {
		o.recordFinal(req, nil, err)
		return nil, err
	}

	messages, err := o.buildMessages(req, cfg.Engine.SystemInstructions)
	if err != nil {
		o.recordFinal(req, nil, err)
		return nil, err
	}

	res, err := o.callWithRetry(ctx, adapter, req, messages, cfg.Engine)
	if err != nil {
		o.recordFinal(req, nil, err)
		return nil, err
	}

	canon := &canonical.Canonicalizer{ASCIISink: cfg.Engine.ASCIISink}
	if err := canon.Canonicalize(res, req.ResponseSchema); err != nil {
		o.recordFinal(req, res, err)
		return nil, err
	}

	// Grounding failures are never retried: a search the provider chose to
	// skip will be skipped again, and the caller needs the explicit signal.
	if err := o.validator.Validate(req.Mode, res); err != nil {
		o.recordFinal(req, res, err)
		return nil, err
	}

	o.recordFinal(req, res, nil)
	return res, nil
}

// buildMessages assembles the conversation: system instructions first, then
// the ambient locale block as its own message, then the untouched prompt.
// The prompt is never mutated or merged with the ambient block.
func (o *Orchestrator) buildMessages(req *types.GroundingRequest, instructions []string) ([]adapters.Message, error) {
	var messages []adapters.Message
	for _, instr := range instructions {
		messages = append(messages, adapters.Message{Role: "system", Content: instr})
	}

	if req.Locale != nil {
		lc := *req.Locale
		if lc.DateSample == "" && lc.Currency == "" && lc.CivicPortal == "" && lc.UTCOffset == "" && lc.PhonePrefix == "" {
			// Code-only reference: resolve cues from configuration.
			configured, ok := o.locales().Lookup(lc.CountryCode)
			if !ok {
				return nil, fmt.Errorf("locale %q is not configured", lc.CountryCode)
			}
			lc = configured
		}
		block, err := locale.BuildAmbientBlock(lc)
		if err != nil {
			return nil, err
		}
		// Configured instructions were guarded at load time; re-assert here
		// so inline request locales get the same guarantee.
		if err := locale.GuardInstructions(lc, instructions...); err != nil {
			return nil, err
		}
		messages = append(messages, adapters.Message{Role: "user", Content: block})
	}

	messages = append(messages, adapters.Message{Role: "user", Content: req.Prompt})
	return messages, nil
}

// callWithRetry performs the provider call under a per-attempt timeout,
// retrying retryable transport failures with exponential backoff. Exhaustion
// folds into ProviderUnavailable with the last error attached.
func (o *Orchestrator) callWithRetry(
	ctx context.Context,
	adapter adapters.ProviderAdapter,
	req *types.GroundingRequest,
	messages []adapters.Message,
	engCfg config.EngineConfig,
) (*types.GroundingResult, error) {
	var lastTransport error

	for attempt := 0; attempt <= engCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(attempt, engCfg.BackoffBase, engCfg.BackoffCap)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &types.ProviderUnavailable{
					Provider: req.Provider,
					Attempts: attempt,
					Last:     ctx.Err(),
				}
			}
		}

		o.attempts.Add(1)
		started := time.Now()

		callCtx, cancel := context.WithTimeout(ctx, engCfg.ProviderTimeout)
		res, err := adapter.Execute(callCtx, req, messages)
		cancel()

		latencyMs := float64(time.Since(started).Milliseconds())
		if err == nil {
			o.metrics.RecordAttempt(req.Provider, req.ModelID, "success", latencyMs)
			return res, nil
		}

		var transport *adapters.TransportError
		if !errors.As(err, &transport) {
			// Capability or contract failure from the adapter; terminal.
			o.metrics.RecordAttempt(req.Provider, req.ModelID, "contract_error", latencyMs)
			return nil, err
		}

		o.metrics.RecordAttempt(req.Provider, req.ModelID, "transport_error", latencyMs)
		lastTransport = transport
		o.logger.Warn("provider call failed",
			"provider", req.Provider,
			"model", req.ModelID,
			"request_id", req.RequestID,
			"attempt", attempt+1,
			"error", transport,
		)

		if !transport.Retryable() {
			return nil, &types.ProviderUnavailable{
				Provider: req.Provider,
				Attempts: attempt + 1,
				Last:     transport,
			}
		}
	}

	return nil, &types.ProviderUnavailable{
		Provider: req.Provider,
		Attempts: engCfg.MaxRetries + 1,
		Last:     lastTransport,
	}
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base << (attempt - 1)
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// recordFinal emits the per-request observability event and bumps the
// process-wide counters. Already-emitted attempt events are never retracted.
func (o *Orchestrator) recordFinal(req *types.GroundingRequest, res *types.GroundingResult, err error) {
	status := "ok"
	grounded := false
	switch {
	case err == nil:
		grounded = res.GroundedEffective
	default:
		o.failures.Add(1)
		status = statusFor(err)
	}
	o.metrics.RecordRequest(req.Provider, req.ModelID, string(req.Mode), status, grounded)
}

func statusFor(err error) string {
	var (
		unsupported *types.UnsupportedCapability
		unavailable *types.ProviderUnavailable
		ungrounded  *types.GroundingRequired
		shape       *types.ShapeViolation
	)
	switch {
	case errors.As(err, &unsupported):
		return "unsupported_capability"
	case errors.As(err, &unavailable):
		return "provider_unavailable"
	case errors.As(err, &ungrounded):
		return "grounding_required"
	case errors.As(err, &shape):
		return "shape_violation"
	default:
		return "error"
	}
}

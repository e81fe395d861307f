package engine

import (
	"log/slog"

	"github.com/probelab/groundcheck/internal/telemetry"
	"github.com/probelab/groundcheck/internal/types"
)

// Validator applies the grounding-mode decision table to a canonical result.
// It is fail-closed: a caller that asked for verified, current information
// never receives an answer that looks grounded but is not.
type Validator struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewValidator(logger *slog.Logger, metrics *telemetry.Metrics) *Validator {
	return &Validator{logger: logger, metrics: metrics}
}

// Validate sets GroundedEffective from structured evidence and, under
// REQUIRED, fails when the provider skipped the mandated search. The decision
// never consults the answer text: a model describing a search it did not run
// changes nothing here.
func (v *Validator) Validate(mode types.GroundingMode, res *types.GroundingResult) error {
	switch mode {
	case types.ModeNone:
		res.GroundedEffective = false
		if res.ToolCallCount > 0 {
			// A warning, not a failure: the answer is still usable, but the
			// provider searched when nobody asked it to.
			v.logger.Warn("provider performed searches under mode NONE",
				"provider", res.Provider,
				"model", res.ModelID,
				"request_id", res.RequestID,
				"tool_calls", res.ToolCallCount,
			)
			if v.metrics != nil {
				v.metrics.RecordUnexpectedToolCalls(res.Provider, res.ModelID, res.ToolCallCount)
			}
		}
		return nil

	case types.ModeAuto:
		res.GroundedEffective = res.ToolCallCount > 0
		if !res.GroundedEffective {
			v.logger.Info("provider answered without grounding under mode AUTO",
				"provider", res.Provider,
				"model", res.ModelID,
				"request_id", res.RequestID,
			)
		}
		return nil

	case types.ModeRequired:
		if res.ToolCallCount == 0 {
			res.GroundedEffective = false
			return &types.GroundingRequired{Provider: res.Provider, ModelID: res.ModelID}
		}
		res.GroundedEffective = true
		return nil

	default:
		return &types.UnsupportedCapability{
			Provider: res.Provider,
			ModelID:  res.ModelID,
			Reason:   "unknown grounding mode " + string(mode),
		}
	}
}

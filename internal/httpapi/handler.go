package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/probelab/groundcheck/internal/storage"
	"github.com/probelab/groundcheck/internal/types"
)

// Runner executes a grounding request end to end. Satisfied by
// *engine.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req *types.GroundingRequest) (*types.GroundingResult, error)
}

// Handler exposes the single inbound entry point of the engine.
type Handler struct {
	orchestrator Runner
	store        storage.ResultStore
}

func NewHandler(orchestrator Runner, store storage.ResultStore) *Handler {
	if store == nil {
		store = storage.NoopStore{}
	}
	return &Handler{orchestrator: orchestrator, store: store}
}

// groundRequestBody is the wire shape of POST /v1/ground.
type groundRequestBody struct {
	Provider       string               `json:"provider"`
	ModelID        string               `json:"model_id"`
	Prompt         string               `json:"prompt"`
	GroundingMode  string               `json:"grounding_mode"`
	LocaleContext  *types.LocaleContext `json:"locale_context,omitempty"`
	ResponseSchema map[string]any       `json:"response_schema,omitempty"`
}

// Ground handles POST /v1/ground.
func (h *Handler) Ground(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var wire groundRequestBody
	if err := json.Unmarshal(body, &wire); err != nil {
		WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if provider := r.Header.Get("X-Groundcheck-Provider"); provider != "" {
		wire.Provider = provider
	}
	if wire.Provider == "" {
		WriteBadRequestError(w, reqID, "provider is required")
		return
	}
	if wire.ModelID == "" {
		WriteBadRequestError(w, reqID, "model_id is required")
		return
	}
	if wire.Prompt == "" {
		WriteBadRequestError(w, reqID, "prompt is required")
		return
	}

	mode, err := types.ParseGroundingMode(wire.GroundingMode)
	if err != nil {
		WriteBadRequestError(w, reqID, err.Error())
		return
	}

	req := &types.GroundingRequest{
		RequestID:      reqID,
		Prompt:         wire.Prompt,
		Locale:         wire.LocaleContext,
		ModelID:        wire.ModelID,
		Mode:           mode,
		ResponseSchema: wire.ResponseSchema,
		Provider:       wire.Provider,
		ReceivedAt:     time.Now(),
	}

	res, err := h.orchestrator.Run(r.Context(), req)
	if err != nil {
		h.writeTypedError(w, reqID, err)
		return
	}

	storage.SaveAsync(h.store, mode, res, func(saveErr error) {
		slog.Error("failed to persist grounding result", "request_id", reqID, "error", saveErr)
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", reqID)
	json.NewEncoder(w).Encode(res)
}

// writeTypedError maps the failure taxonomy onto HTTP statuses. Every
// failure stays distinguishable; nothing is flattened into a generic 500.
func (h *Handler) writeTypedError(w http.ResponseWriter, reqID string, err error) {
	var (
		unsupported *types.UnsupportedCapability
		unavailable *types.ProviderUnavailable
		ungrounded  *types.GroundingRequired
		shape       *types.ShapeViolation
	)
	switch {
	case errors.As(err, &unsupported):
		WriteUnsupportedCapabilityError(w, reqID, err.Error())
	case errors.As(err, &ungrounded):
		WriteGroundingRequiredError(w, reqID, err.Error())
	case errors.As(err, &shape):
		WriteShapeViolationError(w, reqID, err.Error())
	case errors.As(err, &unavailable):
		WriteProviderUnavailableError(w, reqID, err.Error())
	default:
		WriteBadRequestError(w, reqID, err.Error())
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

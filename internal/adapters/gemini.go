package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/probelab/groundcheck/internal/config"
	"github.com/probelab/groundcheck/internal/types"
)

// GeminiAdapter speaks the Gemini generateContent API. Grounding evidence
// comes from candidates[].groundingMetadata: webSearchQueries for the search
// count, groundingChunks for citations. The metadata block is the only
// accepted proof of grounding.
type GeminiAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	caps   func() *config.CapabilitiesConfig
}

func NewGeminiAdapter(name string, cfg config.ProviderConfig, client *http.Client, caps func() *config.CapabilitiesConfig) *GeminiAdapter {
	return &GeminiAdapter{name: name, cfg: cfg, client: client, caps: caps}
}

func (a *GeminiAdapter) Name() string { return a.name }

func (a *GeminiAdapter) Capabilities(modelID string) types.ProviderCapability {
	return a.caps().Lookup(a.name, modelID)
}

func (a *GeminiAdapter) Execute(ctx context.Context, req *types.GroundingRequest, messages []Message) (*types.GroundingResult, error) {
	caps := a.Capabilities(req.ModelID)
	if err := CheckCapability(a.name, req.ModelID, caps, req); err != nil {
		return nil, err
	}

	var body geminiRequestBody
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if len(system) > 0 {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: strings.Join(system, "\n")}},
		}
	}

	if req.Mode != types.ModeNone {
		body.Tools = append(body.Tools, geminiTool{GoogleSearch: &struct{}{}})
	}
	if req.ResponseSchema != nil {
		body.GenerationConfig = &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.ResponseSchema,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.cfg.BaseURL, req.ModelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	started := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: a.name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: a.name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Provider: a.name,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", raw),
		}
	}

	var gemResp geminiResponseBody
	if err := json.Unmarshal(raw, &gemResp); err != nil {
		return nil, &types.ShapeViolation{Reason: "unparseable gemini response body", Fragment: string(raw)}
	}
	if len(gemResp.Candidates) == 0 {
		return nil, &types.ShapeViolation{Reason: "gemini response has no candidates", Fragment: string(raw)}
	}

	result := &types.GroundingResult{
		RequestID:          req.RequestID,
		Provider:           a.name,
		ModelID:            req.ModelID,
		RawProviderPayload: json.RawMessage(raw),
		Latency:            time.Since(started),
	}

	cand := gemResp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	result.Text = text.String()

	if gm := cand.GroundingMetadata; gm != nil {
		result.ToolCallCount = len(gm.WebSearchQueries)
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				frag, _ := json.Marshal(chunk)
				return nil, &types.ShapeViolation{Reason: "grounding chunk without web uri", Fragment: string(frag)}
			}
			result.Citations = append(result.Citations, types.Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}

	return result, nil
}

type geminiRequestBody struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponseBody struct {
	Candidates []struct {
		Content           geminiContent            `json:"content"`
		FinishReason      string                   `json:"finishReason"`
		GroundingMetadata *geminiGroundingMetadata `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
}

type geminiGroundingMetadata struct {
	WebSearchQueries []string `json:"webSearchQueries"`
	GroundingChunks  []struct {
		Web *struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web,omitempty"`
	} `json:"groundingChunks"`
}

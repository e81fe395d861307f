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

// OpenAIAdapter speaks the OpenAI Responses API. Grounding evidence is read
// exclusively from web_search_call output items and url_citation annotations;
// the answer prose is never inspected for signs of searching.
type OpenAIAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	caps   func() *config.CapabilitiesConfig
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig, client *http.Client, caps func() *config.CapabilitiesConfig) *OpenAIAdapter {
	return &OpenAIAdapter{name: name, cfg: cfg, client: client, caps: caps}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Capabilities(modelID string) types.ProviderCapability {
	return a.caps().Lookup(a.name, modelID)
}

func (a *OpenAIAdapter) Execute(ctx context.Context, req *types.GroundingRequest, messages []Message) (*types.GroundingResult, error) {
	caps := a.Capabilities(req.ModelID)
	if err := CheckCapability(a.name, req.ModelID, caps, req); err != nil {
		return nil, err
	}

	body := openAIRequestBody{Model: req.ModelID}
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Input = append(body.Input, openAIInputMessage{Role: m.Role, Content: m.Content})
	}
	body.Instructions = strings.Join(system, "\n")

	if req.Mode != types.ModeNone {
		body.Tools = append(body.Tools, openAITool{Type: "web_search"})
		if req.Mode == types.ModeRequired && caps.SupportsToolChoiceRequired {
			body.ToolChoice = "required"
		}
	}
	if req.ResponseSchema != nil {
		body.Text = &openAIText{
			Format: openAITextFormat{
				Type:   "json_schema",
				Name:   "grounded_answer",
				Schema: req.ResponseSchema,
				Strict: true,
			},
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	url := a.cfg.BaseURL + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
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

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(raw, &oaiResp); err != nil {
		return nil, &types.ShapeViolation{Reason: "unparseable openai response body", Fragment: string(raw)}
	}

	result := &types.GroundingResult{
		RequestID:          req.RequestID,
		Provider:           a.name,
		ModelID:            req.ModelID,
		RawProviderPayload: json.RawMessage(raw),
		Latency:            time.Since(started),
	}

	var text strings.Builder
	for _, item := range oaiResp.Output {
		switch item.Type {
		case "web_search_call":
			if item.Status == "completed" {
				result.ToolCallCount++
			}
		case "message":
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}
				text.WriteString(part.Text)
				for _, ann := range part.Annotations {
					if ann.Type != "url_citation" {
						continue
					}
					if ann.URL == "" {
						frag, _ := json.Marshal(ann)
						return nil, &types.ShapeViolation{Reason: "url_citation without url", Fragment: string(frag)}
					}
					result.Citations = append(result.Citations, types.Citation{URL: ann.URL, Title: ann.Title})
				}
			}
		}
	}
	result.Text = text.String()

	return result, nil
}

type openAIRequestBody struct {
	Model        string               `json:"model"`
	Instructions string               `json:"instructions,omitempty"`
	Input        []openAIInputMessage `json:"input"`
	Tools        []openAITool         `json:"tools,omitempty"`
	ToolChoice   string               `json:"tool_choice,omitempty"`
	Text         *openAIText          `json:"text,omitempty"`
}

type openAIInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type string `json:"type"`
}

type openAIText struct {
	Format openAITextFormat `json:"format"`
}

type openAITextFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type openAIResponseBody struct {
	ID     string             `json:"id"`
	Model  string             `json:"model"`
	Status string             `json:"status"`
	Output []openAIOutputItem `json:"output"`
}

type openAIOutputItem struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
	Role    string `json:"role,omitempty"`
	Content []struct {
		Type        string             `json:"type"`
		Text        string             `json:"text"`
		Annotations []openAIAnnotation `json:"annotations,omitempty"`
	} `json:"content,omitempty"`
}

type openAIAnnotation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

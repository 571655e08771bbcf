// Package gemini implements the provider contract against the Gemini
// generateContent REST API. The API call itself is not streamed; the
// response is surfaced as a short chunk stream so the runtime sees one
// uniform protocol.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitebot/kite/internal/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini: api key not provided")

// Provider calls the Gemini generateContent API.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New creates a Gemini provider from the shared config.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini.New: %w", ErrMissingAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Stream performs one generateContent call and emits its result as chunks:
// any text as a single text_delta, any function calls as one tool_call,
// then done.
func (p *Provider) Stream(ctx context.Context, req provider.StreamRequest) (<-chan provider.Chunk, error) {
	out := make(chan provider.Chunk)

	go func() {
		defer close(out)

		resp, err := p.generate(ctx, req)
		if err != nil {
			send(ctx, out, provider.Chunk{Type: provider.ChunkError, ErrorMessage: err.Error()})
			return
		}

		if resp.text != "" {
			if !send(ctx, out, provider.Chunk{Type: provider.ChunkTextDelta, Text: resp.text}) {
				return
			}
		}
		if len(resp.toolCalls) > 0 {
			if !send(ctx, out, provider.Chunk{Type: provider.ChunkToolCall, ToolCalls: resp.toolCalls}) {
				return
			}
		}
		send(ctx, out, provider.Chunk{Type: provider.ChunkDone, FinishReason: resp.finishReason})
	}()

	return out, nil
}

type generateResult struct {
	text         string
	toolCalls    []provider.ToolCallRequest
	finishReason string
}

func (p *Provider) generate(ctx context.Context, req provider.StreamRequest) (*generateResult, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(respBody))
	}

	return parseResponse(respBody)
}

func (p *Provider) buildRequest(req provider.StreamRequest) map[string]any {
	var system string
	contents := make([]map[string]any, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			if system == "" {
				system = msg.Content
			} else {
				system += "\n\n" + msg.Content
			}
		case provider.RoleAssistant:
			contents = append(contents, map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": msg.Content}},
			})
		case provider.RoleTool:
			contents = append(contents, map[string]any{
				"role": "user",
				"parts": []map[string]any{{
					"functionResponse": map[string]any{
						"name":     msg.ToolName,
						"response": map[string]any{"output": msg.Content},
					},
				}},
			})
		default:
			contents = append(contents, map[string]any{
				"role":  "user",
				"parts": []map[string]any{{"text": msg.Content}},
			})
		}
	}

	body := map[string]any{"contents": contents}

	genConfig := map[string]any{}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}
	if system != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": system}},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]map[string]any, 0, len(req.Tools))
		for _, d := range req.Tools {
			decls = append(decls, map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.ParameterSchema,
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	return body
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func parseResponse(body []byte) (*generateResult, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gemini: parse response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: empty response")
	}

	candidate := resp.Candidates[0]
	result := &generateResult{finishReason: strings.ToLower(candidate.FinishReason)}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			result.toolCalls = append(result.toolCalls, provider.ToolCallRequest{
				// Gemini does not assign call IDs; mint one so tool
				// results can be correlated in the session log.
				ID:        "call_" + uuid.NewString(),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	result.text = text.String()

	return result, nil
}

func send(ctx context.Context, out chan<- provider.Chunk, c provider.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

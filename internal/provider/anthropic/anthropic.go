// Package anthropic implements the provider contract against the Anthropic
// Messages API with SSE streaming over plain net/http.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/provider"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("anthropic: api key not provided")

// Provider streams responses from the Anthropic Messages API.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New creates an Anthropic provider from the shared config.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic.New: %w", ErrMissingAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// Stream opens one streaming Messages API call and translates the SSE
// events to chunks. The returned channel is closed after the terminal chunk.
func (p *Provider) Stream(ctx context.Context, req provider.StreamRequest) (<-chan provider.Chunk, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic.Provider.Stream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic.Provider.Stream: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic.Provider.Stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic.Provider.Stream: status %d: %s", resp.StatusCode, string(errBody))
	}

	out := make(chan provider.Chunk)
	go p.readEvents(ctx, resp.Body, out)
	return out, nil
}

// buildRequest converts the neutral request to the Messages API shape.
// System messages travel in the top-level system field; tool calls and
// results become tool_use / tool_result content blocks.
func (p *Provider) buildRequest(req provider.StreamRequest) map[string]any {
	var system string
	messages := make([]map[string]any, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			if system == "" {
				system = msg.Content
			} else {
				system += "\n\n" + msg.Content
			}
		case provider.RoleAssistant:
			content := make([]map[string]any, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				content = append(content, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			messages = append(messages, map[string]any{"role": "assistant", "content": content})
		case provider.RoleTool:
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Content,
				}},
			})
		default:
			messages = append(messages, map[string]any{"role": "user", "content": msg.Content})
		}
	}

	body := map[string]any{
		"model":      p.model,
		"max_tokens": req.MaxTokens,
		"messages":   messages,
		"stream":     true,
	}
	if system != "" {
		body["system"] = system
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, d := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": d.ParameterSchema,
			})
		}
		body["tools"] = tools
	}
	return body
}

// sseEvent payload shapes, limited to the fields we consume.
type sseEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolUseBlock struct {
	id    string
	name  string
	input strings.Builder
}

func (p *Provider) readEvents(ctx context.Context, body io.ReadCloser, out chan<- provider.Chunk) {
	defer close(out)
	defer body.Close()

	var (
		toolBlocks = map[int]*toolUseBlock{}
		toolOrder  []int
		stopReason string
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev sseEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			log.Debug().Err(err).Msg("anthropic: skipping unparseable event")
			continue
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				toolBlocks[ev.Index] = &toolUseBlock{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				toolOrder = append(toolOrder, ev.Index)
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if !send(ctx, out, provider.Chunk{Type: provider.ChunkTextDelta, Text: ev.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if block, ok := toolBlocks[ev.Index]; ok {
					block.input.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
		case "message_stop":
			if calls := collectToolCalls(toolBlocks, toolOrder); len(calls) > 0 {
				if !send(ctx, out, provider.Chunk{Type: provider.ChunkToolCall, ToolCalls: calls}) {
					return
				}
			}
			send(ctx, out, provider.Chunk{Type: provider.ChunkDone, FinishReason: stopReason})
			return
		case "error":
			send(ctx, out, provider.Chunk{
				Type:         provider.ChunkError,
				ErrorMessage: fmt.Sprintf("%s: %s", ev.Error.Type, ev.Error.Message),
			})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(ctx, out, provider.Chunk{Type: provider.ChunkError, ErrorMessage: err.Error()})
		return
	}
	// Stream ended without message_stop.
	send(ctx, out, provider.Chunk{Type: provider.ChunkError, ErrorMessage: "anthropic: stream ended unexpectedly"})
}

func collectToolCalls(blocks map[int]*toolUseBlock, order []int) []provider.ToolCallRequest {
	calls := make([]provider.ToolCallRequest, 0, len(order))
	for _, idx := range order {
		block := blocks[idx]
		args := map[string]any{}
		if raw := block.input.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				log.Warn().Err(err).Str("tool", block.name).Msg("anthropic: unparseable tool input")
			}
		}
		calls = append(calls, provider.ToolCallRequest{ID: block.id, Name: block.name, Arguments: args})
	}
	return calls
}

func send(ctx context.Context, out chan<- provider.Chunk, c provider.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

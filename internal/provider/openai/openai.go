// Package openai adapts the OpenAI Chat Completions streaming API (and any
// OpenAI-compatible endpoint) to the neutral provider contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openailib "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/provider"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: api key not provided")

// Provider streams chat completions from an OpenAI-compatible API.
type Provider struct {
	client openailib.Client
	model  string
}

// New creates an OpenAI provider from the shared config.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai.New: %w", ErrMissingAPIKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openailib.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

// Stream opens one streaming completion and translates it to chunks. The
// returned channel is closed after the terminal chunk.
func (p *Provider) Stream(ctx context.Context, req provider.StreamRequest) (<-chan provider.Chunk, error) {
	param := openailib.ChatCompletionNewParams{
		Model:    p.model,
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		param.MaxTokens = openailib.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		param.Tools = convertTools(req.Tools)
	}

	out := make(chan provider.Chunk)

	go func() {
		defer close(out)

		stream := p.client.Chat.Completions.NewStreaming(ctx, param)
		defer func() {
			if err := stream.Close(); err != nil {
				log.Debug().Err(err).Msg("openai: stream close")
			}
		}()

		acc := openailib.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !send(ctx, out, provider.Chunk{Type: provider.ChunkTextDelta, Text: delta}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, out, provider.Chunk{Type: provider.ChunkError, ErrorMessage: err.Error()})
			return
		}
		if len(acc.Choices) == 0 {
			send(ctx, out, provider.Chunk{Type: provider.ChunkError, ErrorMessage: "openai: empty completion"})
			return
		}

		choice := acc.Choices[0]
		if calls := convertToolCalls(choice.Message.ToolCalls); len(calls) > 0 {
			if !send(ctx, out, provider.Chunk{Type: provider.ChunkToolCall, ToolCalls: calls}) {
				return
			}
		}

		send(ctx, out, provider.Chunk{Type: provider.ChunkDone, FinishReason: choice.FinishReason})
	}()

	return out, nil
}

func send(ctx context.Context, out chan<- provider.Chunk, c provider.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func convertMessages(messages []provider.Message) []openailib.ChatCompletionMessageParamUnion {
	out := make([]openailib.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case provider.RoleSystem:
			out = append(out, openailib.SystemMessage(msg.Content))
		case provider.RoleUser:
			out = append(out, openailib.UserMessage(msg.Content))
		case provider.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				out = append(out, assistantWithToolCalls(msg))
				continue
			}
			out = append(out, openailib.AssistantMessage(msg.Content))
		case provider.RoleTool:
			out = append(out, openailib.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

// assistantWithToolCalls rebuilds the assistant message that requested tool
// calls; the API rejects tool-role messages without it.
func assistantWithToolCalls(msg provider.Message) openailib.ChatCompletionMessageParamUnion {
	assistant := openailib.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content.OfString = openailib.String(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openailib.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openailib.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openailib.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(args),
				},
			},
		})
	}
	return openailib.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertTools(defs []provider.ToolDefinition) []openailib.ChatCompletionToolUnionParam {
	out := make([]openailib.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openailib.ChatCompletionToolUnionParam{
			OfFunction: &openailib.ChatCompletionFunctionToolParam{
				Function: openailib.FunctionDefinitionParam{
					Name:        d.Name,
					Description: openailib.String(d.Description),
					Parameters:  openailib.FunctionParameters(d.ParameterSchema),
				},
			},
		})
	}
	return out
}

func convertToolCalls(calls []openailib.ChatCompletionMessageToolCallUnion) []provider.ToolCallRequest {
	out := make([]provider.ToolCallRequest, 0, len(calls))
	for _, tc := range calls {
		args := map[string]any{}
		if raw := tc.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				log.Warn().Err(err).Str("tool", tc.Function.Name).Msg("openai: unparseable tool arguments")
			}
		}
		out = append(out, provider.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out
}

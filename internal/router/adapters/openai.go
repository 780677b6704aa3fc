package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/types"
)

// OpenAIAdapter streams from the Chat Completions API or any compatible
// endpoint.
type OpenAIAdapter struct {
	name   string
	client openai.Client
}

func NewOpenAIAdapter(name string, cfg config.ProviderConfig, httpClient *http.Client) *OpenAIAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		if v != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}
	return &OpenAIAdapter{name: name, client: openai.NewClient(opts...)}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Stream(ctx context.Context, req *types.CompletionRequest, emit EventFunc) (*types.CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	toolIDs := map[int64]string{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if err := emit(types.CompletionEvent{Type: types.EventTextDelta, Text: delta.Content}); err != nil {
				return nil, err
			}
		}
		for _, tc := range delta.ToolCalls {
			if tc.ID != "" {
				toolIDs[tc.Index] = tc.ID
				if err := emit(types.CompletionEvent{
					Type:       types.EventToolCallStart,
					ToolCallID: tc.ID,
					ToolName:   tc.Function.Name,
				}); err != nil {
					return nil, err
				}
			}
			if tc.Function.Arguments != "" {
				if err := emit(types.CompletionEvent{
					Type:       types.EventToolCallDelta,
					ToolCallID: toolIDs[tc.Index],
					InputDelta: tc.Function.Arguments,
				}); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: openai stream: %w", ErrUpstream, err)
	}

	resp := &types.CompletionResponse{
		FinishReason: types.FinishStop,
		Usage: types.Usage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		},
	}
	if len(acc.Choices) == 0 {
		return resp, nil
	}
	choice := acc.Choices[0]
	resp.Text = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(args),
		})
	}
	switch {
	case len(resp.ToolCalls) > 0:
		resp.FinishReason = types.FinishToolCalls
	case choice.FinishReason == "length":
		resp.FinishReason = types.FinishLength
	}
	return resp, nil
}

func toOpenAIMessages(system []types.SystemBlock, turns []types.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+len(system))
	for _, b := range system {
		if b.Text != "" {
			out = append(out, openai.SystemMessage(b.Text))
		}
	}
	for _, t := range turns {
		switch t.Role {
		case types.RoleAssistant:
			if len(t.ToolCalls) == 0 {
				if t.Text != "" {
					out = append(out, openai.AssistantMessage(t.Text))
				}
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if t.Text != "" {
				msg.Content.OfString = openai.String(t.Text)
			}
			for _, tc := range t.ToolCalls {
				args := string(tc.Input)
				if args == "" {
					args = "{}"
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: args,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case types.RoleSystem:
			if t.Text != "" {
				out = append(out, openai.SystemMessage(t.Text))
			}
		default:
			for _, tr := range t.ToolResults {
				out = append(out, openai.ToolMessage(tr.Output, tr.CallID))
			}
			if t.Text != "" {
				out = append(out, openai.UserMessage(t.Text))
			}
		}
	}
	return out
}

func toOpenAITools(tools []mcp.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(schemaMap(tool)),
		}))
	}
	return out
}

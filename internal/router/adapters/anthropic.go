package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/types"
)

const fineGrainedToolStreamingBeta = "fine-grained-tool-streaming-2025-05-14"

// AnthropicAdapter streams from the Anthropic Messages API.
type AnthropicAdapter struct {
	name   string
	client anthropic.Client
}

func NewAnthropicAdapter(name string, cfg config.ProviderConfig, httpClient *http.Client) *AnthropicAdapter {
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
	return &AnthropicAdapter{name: name, client: anthropic.NewClient(opts...)}
}

func (a *AnthropicAdapter) Name() string { return a.name }

func (a *AnthropicAdapter) Stream(ctx context.Context, req *types.CompletionRequest, emit EventFunc) (*types.CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		System:    toAnthropicSystem(req.System, req.PromptCaching),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	var reqOpts []option.RequestOption
	if req.FineGrainedToolStreaming {
		reqOpts = append(reqOpts, option.WithHeader("anthropic-beta", fineGrainedToolStreamingBeta))
	}

	stream := a.client.Messages.NewStreaming(ctx, params, reqOpts...)
	defer stream.Close()

	msg := anthropic.Message{}
	toolIDs := map[int64]string{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("%w: accumulate anthropic event: %w", ErrUpstream, err)
		}

		var out *types.CompletionEvent
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				toolIDs[ev.Index] = ev.ContentBlock.ID
				out = &types.CompletionEvent{
					Type:       types.EventToolCallStart,
					ToolCallID: ev.ContentBlock.ID,
					ToolName:   ev.ContentBlock.Name,
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					out = &types.CompletionEvent{Type: types.EventTextDelta, Text: delta.Text}
				}
			case anthropic.InputJSONDelta:
				if delta.PartialJSON != "" {
					out = &types.CompletionEvent{
						Type:       types.EventToolCallDelta,
						ToolCallID: toolIDs[ev.Index],
						InputDelta: delta.PartialJSON,
					}
				}
			}
		}
		if out != nil {
			if err := emit(*out); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: anthropic stream: %w", ErrUpstream, err)
	}

	resp := &types.CompletionResponse{
		Usage: types.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	var text []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, v.Text)
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
				ID:    v.ID,
				Name:  v.Name,
				Input: v.Input,
			})
		}
	}
	resp.Text = strings.Join(text, "")

	switch string(msg.StopReason) {
	case "max_tokens":
		resp.FinishReason = types.FinishLength
	case "tool_use":
		resp.FinishReason = types.FinishToolCalls
	default:
		resp.FinishReason = types.FinishStop
	}
	if len(resp.ToolCalls) > 0 && resp.FinishReason == types.FinishStop {
		resp.FinishReason = types.FinishToolCalls
	}
	return resp, nil
}

// toAnthropicSystem marks cacheable blocks with an ephemeral cache
// breakpoint when prompt caching is enabled for the model.
func toAnthropicSystem(blocks []types.SystemBlock, caching bool) []anthropic.TextBlockParam {
	out := make([]anthropic.TextBlockParam, 0, len(blocks))
	for _, b := range blocks {
		if b.Text == "" {
			continue
		}
		p := anthropic.TextBlockParam{Text: b.Text}
		if caching && b.Cacheable {
			p.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		out = append(out, p)
	}
	return out
}

// toAnthropicMessages folds tool results into user messages, which is how
// the Messages API expects them.
func toAnthropicMessages(turns []types.Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case types.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.ToolCalls)+1)
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			for _, tc := range t.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeInput(tc.Input), tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.ToolResults)+1)
			for _, tr := range t.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, tr.Output, tr.IsError))
			}
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(tools []mcp.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schemaProperties(tool),
				Required:   tool.InputSchema.Required,
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

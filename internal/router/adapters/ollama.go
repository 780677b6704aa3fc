package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/types"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaAdapter streams from a local Ollama server. Ollama does not stream
// tool arguments, so each call arrives whole and gets a synthesized id.
type OllamaAdapter struct {
	name   string
	client *api.Client
}

func NewOllamaAdapter(name string, cfg config.ProviderConfig, httpClient *http.Client) (*OllamaAdapter, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", base, err)
	}
	return &OllamaAdapter{name: name, client: api.NewClient(u, httpClient)}, nil
}

func (a *OllamaAdapter) Name() string { return a.name }

func (a *OllamaAdapter) Stream(ctx context.Context, req *types.CompletionRequest, emit EventFunc) (*types.CompletionResponse, error) {
	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.System, req.Messages),
		Tools:    toOllamaTools(req.Tools),
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}

	resp := &types.CompletionResponse{FinishReason: types.FinishStop}
	var text strings.Builder

	err := a.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		if r.Message.Content != "" {
			text.WriteString(r.Message.Content)
			if err := emit(types.CompletionEvent{Type: types.EventTextDelta, Text: r.Message.Content}); err != nil {
				return err
			}
		}
		for _, tc := range r.Message.ToolCalls {
			input, err := json.Marshal(map[string]any(tc.Function.Arguments))
			if err != nil {
				return fmt.Errorf("marshal ollama tool arguments: %w", err)
			}
			call := types.ToolCall{ID: "call_" + uuid.NewString(), Name: tc.Function.Name, Input: input}
			resp.ToolCalls = append(resp.ToolCalls, call)
			if err := emit(types.CompletionEvent{Type: types.EventToolCallStart, ToolCallID: call.ID, ToolName: call.Name}); err != nil {
				return err
			}
			if err := emit(types.CompletionEvent{Type: types.EventToolCallDelta, ToolCallID: call.ID, InputDelta: string(input)}); err != nil {
				return err
			}
		}
		if r.Done {
			resp.Usage = types.Usage{InputTokens: r.PromptEvalCount, OutputTokens: r.EvalCount}
			if r.DoneReason == "length" {
				resp.FinishReason = types.FinishLength
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ollama chat: %w", ErrUpstream, err)
	}

	resp.Text = text.String()
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = types.FinishToolCalls
	}
	return resp, nil
}

func toOllamaMessages(system []types.SystemBlock, turns []types.Turn) []api.Message {
	out := make([]api.Message, 0, len(turns)+1)
	var sys []string
	for _, b := range system {
		if b.Text != "" {
			sys = append(sys, b.Text)
		}
	}
	if len(sys) > 0 {
		out = append(out, api.Message{Role: "system", Content: strings.Join(sys, "\n\n")})
	}
	for _, t := range turns {
		switch t.Role {
		case types.RoleAssistant:
			msg := api.Message{Role: "assistant", Content: t.Text}
			for _, tc := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: api.ToolCallFunctionArguments(decodeInput(tc.Input)),
					},
				})
			}
			out = append(out, msg)
		default:
			for _, tr := range t.ToolResults {
				out = append(out, api.Message{Role: "tool", Content: tr.Output, ToolName: tr.Name})
			}
			if t.Text != "" {
				out = append(out, api.Message{Role: t.Role, Content: t.Text})
			}
		}
	}
	return out
}

func toOllamaTools(tools []mcp.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   tool.InputSchema.Required,
			Properties: map[string]api.ToolProperty{},
		}
		for name, raw := range schemaProperties(tool) {
			params.Properties[name] = toOllamaProperty(raw)
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func toOllamaProperty(raw any) api.ToolProperty {
	prop := api.ToolProperty{}
	m, ok := raw.(map[string]any)
	if !ok {
		return prop
	}
	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				prop.Type = append(prop.Type, s)
			}
		}
	}
	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	return prop
}

package types

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// CompletionRequest is the provider-agnostic form of one model call. The
// adapters in router/adapters translate it to each provider's SDK types.
type CompletionRequest struct {
	Model       string
	System      []SystemBlock
	Messages    []Turn
	Tools       []mcp.Tool
	MaxTokens   int
	// Temperature is nil when the provider default must be used.
	Temperature *float64
	// FineGrainedToolStreaming asks the provider to stream tool input
	// deltas as they are produced rather than buffering whole arguments.
	FineGrainedToolStreaming bool
	PromptCaching            bool
}

// SystemBlock is one system prompt segment. Cacheable blocks are identical
// across requests and may be marked for provider-side prompt caching.
type SystemBlock struct {
	Text      string
	Cacheable bool
}

// Turn is one entry of the conversation sent to a provider.
type Turn struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResult struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

type CompletionEventType int

const (
	EventTextDelta CompletionEventType = iota
	EventToolCallStart
	EventToolCallDelta
)

// CompletionEvent is emitted by adapters while a provider stream is open.
type CompletionEvent struct {
	Type       CompletionEventType
	Text       string
	ToolCallID string
	ToolName   string
	InputDelta string
}

const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool-calls"
)

// CompletionResponse is the accumulated result of one provider stream.
type CompletionResponse struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

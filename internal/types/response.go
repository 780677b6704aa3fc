package types

import "encoding/json"

// Stream event types written to the client, one JSON object per SSE frame.
const (
	StreamStart               = "start"
	StreamStartStep           = "start-step"
	StreamTextDelta           = "text-delta"
	StreamToolInputStart      = "tool-input-start"
	StreamToolInputDelta      = "tool-input-delta"
	StreamToolInputAvailable  = "tool-input-available"
	StreamToolOutputAvailable = "tool-output-available"
	StreamToolOutputError     = "tool-output-error"
	StreamFinishStep          = "finish-step"
	StreamFinish              = "finish"
	StreamError               = "error"
)

// Terminal finish reasons reported to the client.
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonStepLimit = "step-limit"
	FinishReasonTimeout   = "timeout"
)

type StreamEvent struct {
	Type           string          `json:"type"`
	MessageID      string          `json:"messageId,omitempty"`
	Step           int             `json:"step,omitempty"`
	Delta          string          `json:"delta,omitempty"`
	ToolCallID     string          `json:"toolCallId,omitempty"`
	ToolName       string          `json:"toolName,omitempty"`
	State          string          `json:"state,omitempty"`
	InputTextDelta string          `json:"inputTextDelta,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	ErrorText      string          `json:"errorText,omitempty"`
	FinishReason   string          `json:"finishReason,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
}

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the parsed body of POST /api/chat. It is not modified
// after parsing.
type ChatRequest struct {
	Messages    []Message    `json:"messages"`
	SystemState *SystemState `json:"systemState,omitempty"`
	Model       string       `json:"model,omitempty"`
}

// Validate checks the structural contract of the request body.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must be a non-empty array")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	return nil
}

// Message accepts either the plain {role, content} shape or the
// {role, parts} shape produced by UI message lists.
type Message struct {
	ID      string  `json:"id,omitempty"`
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Parts   []Part  `json:"parts,omitempty"`
}

// AllParts returns content parts followed by top-level parts.
func (m Message) AllParts() []Part {
	if len(m.Content.Parts) == 0 {
		return m.Parts
	}
	return append(append([]Part{}, m.Content.Parts...), m.Parts...)
}

// Text joins every text fragment of the message. Non-text parts are ignored.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Content.Text)
	for _, p := range m.AllParts() {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Content is either a string or an array of parts on the wire.
type Content struct {
	Text  string
	Parts []Part
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &c.Text)
	case data[0] == '[':
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

const (
	PartText           = "text"
	PartToolPrefix     = "tool-"
	PartToolInvocation = "tool-invocation"
)

// Part is one element of a structured message. Tool parts use the type
// "tool-<name>" and carry the invocation state.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

func (p Part) IsTool() bool {
	return strings.HasPrefix(p.Type, PartToolPrefix) && p.ToolCallID != ""
}

// Tool returns the tool name, taken from the type suffix when ToolName is unset.
func (p Part) Tool() string {
	if p.ToolName != "" {
		return p.ToolName
	}
	if p.Type == PartToolInvocation {
		return ""
	}
	return strings.TrimPrefix(p.Type, PartToolPrefix)
}

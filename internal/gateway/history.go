package gateway

import (
	"strings"

	"github.com/af-corp/chat-gateway/internal/tools"
	"github.com/af-corp/chat-gateway/internal/types"
)

// buildConversation converts client messages into provider turns.
// System-role messages are returned separately as extra system blocks.
// Tool parts replayed by the client become a tool call on the assistant
// turn followed by a user turn carrying the result; parts that never
// reached a terminal state are dropped because providers reject a call
// without a matching result.
func buildConversation(messages []types.Message) ([]types.Turn, []types.SystemBlock) {
	var turns []types.Turn
	var system []types.SystemBlock

	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			if text := strings.TrimSpace(m.Text()); text != "" {
				system = append(system, types.SystemBlock{Text: text})
			}
		case types.RoleUser:
			if text := m.Text(); text != "" {
				turns = append(turns, types.Turn{Role: types.RoleUser, Text: text})
			}
		case types.RoleAssistant:
			turns = append(turns, assistantTurns(m)...)
		}
	}
	return turns, system
}

func assistantTurns(m types.Message) []types.Turn {
	var out []types.Turn
	cur := types.Turn{Role: types.RoleAssistant, Text: m.Content.Text}
	var results []types.ToolResult

	flush := func() {
		if cur.Text != "" || len(cur.ToolCalls) > 0 {
			out = append(out, cur)
		}
		if len(results) > 0 {
			out = append(out, types.Turn{Role: types.RoleUser, ToolResults: results})
		}
		cur = types.Turn{Role: types.RoleAssistant}
		results = nil
	}

	for _, p := range m.AllParts() {
		switch {
		case p.Type == types.PartText:
			if len(results) > 0 {
				flush()
			}
			if cur.Text != "" && p.Text != "" {
				cur.Text += "\n"
			}
			cur.Text += p.Text
		case p.IsTool():
			call, result, ok := replayedTool(p)
			if !ok {
				continue
			}
			cur.ToolCalls = append(cur.ToolCalls, call)
			results = append(results, result)
		}
	}
	flush()
	return out
}

func replayedTool(p types.Part) (types.ToolCall, types.ToolResult, bool) {
	name := p.Tool()
	if name == "" {
		return types.ToolCall{}, types.ToolResult{}, false
	}
	input := p.Input
	if len(input) == 0 {
		input = []byte("{}")
	}
	call := types.ToolCall{ID: p.ToolCallID, Name: name, Input: input}

	switch tools.State(p.State) {
	case tools.StateOutputAvailable:
		out := string(p.Output)
		if out == "" {
			out = "{}"
		}
		return call, types.ToolResult{CallID: p.ToolCallID, Name: name, Output: out}, true
	case tools.StateOutputError:
		return call, types.ToolResult{CallID: p.ToolCallID, Name: name, Output: p.ErrorText, IsError: true}, true
	default:
		return types.ToolCall{}, types.ToolResult{}, false
	}
}

package gateway

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/router/adapters"
	"github.com/af-corp/chat-gateway/internal/types"
)

func TestChat_OriginRejectedBeforeAnythingElse(t *testing.T) {
	for _, origin := range []string{"", "https://evil.example.com", "null"} {
		t.Run("origin="+origin, func(t *testing.T) {
			env := newTestEnv(t, nil, textStep("hi"))
			w := env.do("POST", "/api/chat", helloBody, map[string]string{
				"Origin":        origin,
				"X-Username":    "ryo",
				"Authorization": "Bearer wrong",
			})

			if w.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", w.Code)
			}
			if got := decodeError(t, w)["error"]; got != "origin_not_allowed" {
				t.Errorf("error = %v", got)
			}
			if env.counter.calls != 0 || env.adapter.calls() != 0 {
				t.Error("rejected origin must not reach the rate limiter or the provider")
			}
		})
	}
}

func TestChat_Preflight(t *testing.T) {
	env := newTestEnv(t, nil, textStep("hi"))
	w := env.do("OPTIONS", "/api/chat", "", map[string]string{"Access-Control-Request-Method": "POST"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestChat_AuthFailureLeavesCounterUntouched(t *testing.T) {
	env := newTestEnv(t, nil, textStep("hi"))

	for _, header := range []string{"", "Bearer chat-prod-wrong"} {
		w := env.do("POST", "/api/chat", helloBody, map[string]string{
			"X-Username":    "ryo",
			"Authorization": header,
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if got := decodeError(t, w)["error"]; got != "authentication_failed" {
			t.Errorf("error = %v", got)
		}
	}
	if env.counter.get("ryo") != 0 || env.counter.calls != 0 {
		t.Error("failed auth must not touch the counter")
	}
	if env.adapter.calls() != 0 {
		t.Error("failed auth must not reach the provider")
	}
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		code   string
	}{
		{"invalid json", "/api/chat", `{"messages":`, "invalid_json"},
		{"empty messages", "/api/chat", `{"messages":[]}`, "invalid_messages"},
		{"bad role", "/api/chat", `{"messages":[{"role":"tool","content":"x"}]}`, "invalid_messages"},
		{"unknown model", "/api/chat", `{"model":"gpt-9000","messages":[{"role":"user","content":"x"}]}`, "unsupported_model"},
		{"unknown model in query", "/api/chat?model=llama", helloBody, "unsupported_model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, textStep("hi"))
			w := env.do("POST", tt.target, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := decodeError(t, w)["error"]; got != tt.code {
				t.Errorf("error = %v, want %s", got, tt.code)
			}
			if env.counter.calls != 0 {
				t.Error("invalid requests must not be charged")
			}
		})
	}
}

func TestChat_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Chat.MaxBodyBytes = 64 }, textStep("hi"))
	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`
	w := env.do("POST", "/api/chat", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil, textStep("hi"))
	w := env.do("GET", "/api/chat", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if got := decodeError(t, w)["error"]; got != "method_not_allowed" {
		t.Errorf("error = %v", got)
	}
}

func TestChat_StreamsText(t *testing.T) {
	env := newTestEnv(t, nil, textStep("Hello there", ", friend!"))
	w := env.do("POST", "/api/chat", helloBody, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	events, done := parseSSE(t, w.Body.String())
	if !done {
		t.Error("expected [DONE] terminator")
	}

	kinds := eventTypes(events)
	want := []string{"start", "start-step"}
	if !slices.Equal(kinds[:2], want) {
		t.Errorf("stream starts with %v", kinds[:2])
	}
	if kinds[len(kinds)-1] != "finish" || kinds[len(kinds)-2] != "finish-step" {
		t.Errorf("stream ends with %v", kinds[len(kinds)-2:])
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == types.StreamTextDelta {
			text.WriteString(ev.Delta)
		}
	}
	if text.String() != "Hello there, friend!" {
		t.Errorf("text = %q", text.String())
	}
	last := events[len(events)-1]
	if last.FinishReason != types.FinishReasonStop {
		t.Errorf("finishReason = %q", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.InputTokens != 5 {
		t.Errorf("usage = %+v", last.Usage)
	}
	if events[0].MessageID == "" {
		t.Error("start event should carry a message id")
	}
}

func TestChat_PromptAndModelSelection(t *testing.T) {
	env := newTestEnv(t, nil, textStep("ok"))
	body := `{"model":"claude-3.7","messages":[
		{"role":"system","content":"be brief"},
		{"role":"user","content":"hi"}
	],"systemState":{"media":{"title":"Song","artist":"Band","isPlaying":true}}}`
	w := env.do("POST", "/api/chat", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req := env.adapter.reqs[0]
	if req.Model != "claude-sonnet-4-5" {
		t.Errorf("provider model = %q", req.Model)
	}
	if !req.FineGrainedToolStreaming || !req.PromptCaching {
		t.Error("expected anthropic capabilities to be forwarded")
	}
	if len(req.System) != 3 || !req.System[0].Cacheable {
		t.Fatalf("system blocks = %+v", req.System)
	}
	if !strings.Contains(req.System[1].Text, "Song by Band") {
		t.Errorf("dynamic block missing media: %q", req.System[1].Text)
	}
	if req.System[2].Text != "be brief" {
		t.Errorf("client system message = %q", req.System[2].Text)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != types.RoleUser {
		t.Errorf("turns = %+v", req.Messages)
	}
	if len(req.Tools) == 0 {
		t.Error("expected tool definitions")
	}
}

func TestChat_TemperatureByModel(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  *float64
	}{
		{"anthropic gets configured temperature", "claude-sonnet", ptr(0.7)},
		{"gpt-5 keeps its default", "gpt-5", nil},
		{"legacy alias to gpt-5 keeps its default", "gpt-4o", nil},
		{"gpt-5-mini keeps its default", "gpt-5-mini", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.Chat.Temperature = 0.7 }, textStep("ok"))
			body := `{"model":"` + tt.model + `","messages":[{"role":"user","content":"hi"}]}`
			w := env.do("POST", "/api/chat", body, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}

			adapter := env.adapter
			if tt.want == nil {
				adapter = env.openai
			}
			if adapter.calls() != 1 {
				t.Fatalf("expected one call to %s, got %d", adapter.name, adapter.calls())
			}
			got := adapter.reqs[0].Temperature
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("temperature = %v, want none", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("temperature = %v, want %v", got, *tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestChat_ToolValidationFailureReturnedToModel(t *testing.T) {
	env := newTestEnv(t, nil,
		toolStep("call_1", "launchApp", `{"id":"internet-explorer","url":"example.com"}`),
		textStep("sorry"),
	)
	w := env.do("POST", "/api/chat", helloBody, nil)
	events, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("expected [DONE]")
	}

	var toolErr *types.StreamEvent
	for i := range events {
		if events[i].Type == types.StreamToolOutputError {
			toolErr = &events[i]
		}
	}
	if toolErr == nil {
		t.Fatalf("expected tool-output-error, got %v", eventTypes(events))
	}
	if !strings.Contains(toolErr.ErrorText, "url and year must be provided together") {
		t.Errorf("errorText = %s", toolErr.ErrorText)
	}

	if env.adapter.calls() != 2 {
		t.Fatalf("expected a second step with the tool error, got %d calls", env.adapter.calls())
	}
	second := env.adapter.reqs[1].Messages
	results := second[len(second)-1].ToolResults
	if len(results) != 1 || !results[0].IsError || results[0].CallID != "call_1" {
		t.Errorf("tool results fed back = %+v", results)
	}
}

func TestChat_RejectedCallsNeverInputAvailable(t *testing.T) {
	tests := []struct {
		name      string
		tool      string
		input     string
		available bool
	}{
		{"unknown tool", "formatDisk", `{"drive":"C"}`, false},
		{"truncated input", "launchApp", `{"id":`, false},
		{"input that is not an object", "launchApp", `["paint"]`, false},
		{"known tool failing validation", "launchApp", `{"id":"doom"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, toolStep("call_1", tt.tool, tt.input), textStep("done"))
			w := env.do("POST", "/api/chat", helloBody, nil)
			events, done := parseSSE(t, w.Body.String())
			if !done {
				t.Fatal("expected [DONE]")
			}

			var available, outputErr bool
			for _, ev := range events {
				if ev.ToolCallID != "call_1" {
					continue
				}
				switch ev.Type {
				case types.StreamToolInputAvailable:
					available = true
				case types.StreamToolOutputError:
					outputErr = true
				}
			}
			if available != tt.available {
				t.Errorf("tool-input-available sent = %v, want %v (%v)", available, tt.available, eventTypes(events))
			}
			if !outputErr {
				t.Errorf("expected tool-output-error, got %v", eventTypes(events))
			}
		})
	}
}

func TestChat_StepLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Chat.MaxSteps = 3 },
		toolStep("call_x", "listApps", `{}`),
	)
	w := env.do("POST", "/api/chat", helloBody, nil)
	events, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("expected [DONE]")
	}
	if env.adapter.calls() != 3 {
		t.Errorf("expected 3 provider calls, got %d", env.adapter.calls())
	}
	last := events[len(events)-1]
	if last.Type != types.StreamFinish || last.FinishReason != types.FinishReasonStepLimit {
		t.Errorf("last event = %+v", last)
	}

	var steps, outputs int
	for _, ev := range events {
		switch ev.Type {
		case types.StreamStartStep:
			steps++
		case types.StreamToolOutputAvailable:
			outputs++
		}
	}
	if steps != 3 || outputs != 3 {
		t.Errorf("steps=%d outputs=%d", steps, outputs)
	}
}

func TestChat_ProviderFailsBeforeFirstByte(t *testing.T) {
	env := newTestEnv(t, nil, func(context.Context, *types.CompletionRequest, adapters.EventFunc) (*types.CompletionResponse, error) {
		return nil, errors.New("connection refused")
	})
	w := env.do("POST", "/api/chat", helloBody, nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decodeError(t, w)["error"]; got != "internal_error" {
		t.Errorf("error = %v", got)
	}
}

func TestChat_ProviderFailsMidStream(t *testing.T) {
	env := newTestEnv(t, nil, func(_ context.Context, _ *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error) {
		if err := emit(types.CompletionEvent{Type: types.EventTextDelta, Text: "partial "}); err != nil {
			return nil, err
		}
		return nil, errors.New("stream reset")
	})
	w := env.do("POST", "/api/chat", helloBody, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected committed 200, got %d", w.Code)
	}
	events, done := parseSSE(t, w.Body.String())
	if done {
		t.Error("errored stream must not end with [DONE]")
	}
	if events[len(events)-1].Type != types.StreamError {
		t.Errorf("last event = %v", eventTypes(events))
	}
}

func TestChat_Timeout(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Chat.RequestTimeout = 50 * time.Millisecond },
		func(ctx context.Context, _ *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	w := env.do("POST", "/api/chat", helloBody, nil)

	events, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("timed out stream should still end with [DONE]")
	}
	last := events[len(events)-1]
	if last.Type != types.StreamFinish || last.FinishReason != types.FinishReasonTimeout {
		t.Errorf("last event = %+v", last)
	}
}

func TestChat_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RateLimit.AnonymousQuota = 10 }, textStep("ok"))
	env.counter.counts["anon:203.0.113.7"] = 10

	body := `{"messages":[
		{"role":"user","content":"one"},
		{"role":"assistant","content":"reply"},
		{"role":"user","content":"two"}
	]}`
	w := env.do("POST", "/api/chat", body, nil)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	got := decodeError(t, w)
	if got["error"] != "rate_limit_exceeded" || got["count"] != float64(11) || got["limit"] != float64(10) {
		t.Errorf("body = %v", got)
	}
	if got["identity_type"] != "anonymous" {
		t.Errorf("identity_type = %v", got["identity_type"])
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if env.adapter.calls() != 0 {
		t.Error("rate limited request must not reach the provider")
	}
}

func TestChat_AuthenticatedUsesUsernameKey(t *testing.T) {
	env := newTestEnv(t, nil, textStep("ok"))
	w := env.do("POST", "/api/chat", helloBody, map[string]string{
		"X-Username":    "Ryo",
		"Authorization": "Bearer " + testToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.counter.get("ryo") != 1 {
		t.Errorf("ryo counter = %d", env.counter.get("ryo"))
	}
	if w.Header().Get("X-RateLimit-Limit") != "25" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestChat_AssistantTailQuota(t *testing.T) {
	tests := []struct {
		name     string
		stored   int64
		wantCode int
		wantCall bool
	}{
		{"within quota", 3, http.StatusOK, true},
		{"quota used up", 10, http.StatusTooManyRequests, false},
		{"over quota", 50, http.StatusTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.RateLimit.AnonymousQuota = 10 }, textStep("ok"))
			env.counter.counts["anon:203.0.113.7"] = tt.stored

			body := `{"messages":[{"role":"user","content":"tell me a story"},{"role":"assistant","content":""}]}`
			w := env.do("POST", "/api/chat", body, nil)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if got := env.adapter.calls() > 0; got != tt.wantCall {
				t.Errorf("provider called = %v, want %v", got, tt.wantCall)
			}
			if got := env.counter.get("anon:203.0.113.7"); got != tt.stored {
				t.Errorf("no new user message must not be charged, counter = %d", got)
			}
		})
	}
}

func TestChat_OpenCircuitStillAttempted(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Routing.CircuitBreaker.FailureThreshold = 1 }, textStep("back"))
	env.health.RecordFailure("anthropic")
	if env.health.IsAvailable("anthropic") {
		t.Fatal("expected the anthropic circuit to be open")
	}

	w := env.do("POST", "/api/chat", helloBody, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.adapter.calls() != 1 {
		t.Fatalf("an open circuit must not block the provider, got %d calls", env.adapter.calls())
	}
	if got := env.health.Snapshot()["anthropic"].State; got != "closed" {
		t.Errorf("expected the success to close the circuit, got %s", got)
	}
}

func TestModels(t *testing.T) {
	env := newTestEnv(t, nil, textStep("ok"))
	w := env.do("GET", "/api/chat/models", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"default":"claude-sonnet"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, textStep("ok"))
	w := env.do("GET", "/health", "", map[string]string{"Origin": ""})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body["status"] != "healthy" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["providers"].(map[string]any)["anthropic"]; !ok {
		t.Errorf("expected anthropic provider status in %v", body["providers"])
	}
}

const gptSignedInOnly = `package chat.policy

import rego.v1

default allow := true

default reason := ""

allow := false if {
	not input.user.authenticated
	input.request.model == "gpt-5"
}

reason := "gpt-5 is for signed-in users" if {
	not allow
}
`

func TestChat_PolicyDenied(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Policy.Enabled = true }, textStep("ok"))
	if err := env.policy.LoadFromModules(context.Background(), map[string]string{"gpt.rego": gptSignedInOnly}); err != nil {
		t.Fatalf("load policy: %v", err)
	}

	w := env.do("POST", "/api/chat?model=gpt-4o", helloBody, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body["error"] != "model_not_permitted" || body["message"] != "gpt-5 is for signed-in users" {
		t.Errorf("body = %v", body)
	}
	if env.counter.calls != 0 {
		t.Error("denied request must not be charged")
	}

	w = env.do("POST", "/api/chat?model=claude-haiku", helloBody, nil)
	if w.Code != http.StatusOK {
		t.Errorf("other models stay allowed, got %d", w.Code)
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/origin"
	"github.com/af-corp/chat-gateway/internal/policy"
	"github.com/af-corp/chat-gateway/internal/prompt"
	"github.com/af-corp/chat-gateway/internal/ratelimit"
	"github.com/af-corp/chat-gateway/internal/router"
	"github.com/af-corp/chat-gateway/internal/router/adapters"
	"github.com/af-corp/chat-gateway/internal/telemetry"
	"github.com/af-corp/chat-gateway/internal/tools"
	"github.com/af-corp/chat-gateway/internal/types"
)

const (
	testOrigin = "https://os.example.com"
	testToken  = "chat-prod-testtoken1234567890123456789"
)

// stepFunc scripts one provider call.
type stepFunc func(ctx context.Context, req *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error)

// scriptedAdapter replays steps in order; the last step repeats.
type scriptedAdapter struct {
	name  string
	mu    sync.Mutex
	steps []stepFunc
	reqs  []*types.CompletionRequest
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Stream(ctx context.Context, req *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error) {
	a.mu.Lock()
	i := len(a.reqs)
	a.reqs = append(a.reqs, req)
	step := a.steps[min(i, len(a.steps)-1)]
	a.mu.Unlock()
	return step(ctx, req, emit)
}

func (a *scriptedAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reqs)
}

func textStep(parts ...string) stepFunc {
	return func(_ context.Context, _ *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error) {
		for _, p := range parts {
			if err := emit(types.CompletionEvent{Type: types.EventTextDelta, Text: p}); err != nil {
				return nil, err
			}
		}
		return &types.CompletionResponse{
			Text:         strings.Join(parts, ""),
			FinishReason: types.FinishStop,
			Usage:        types.Usage{InputTokens: 5, OutputTokens: 3},
		}, nil
	}
}

func toolStep(id, name, input string) stepFunc {
	return func(_ context.Context, _ *types.CompletionRequest, emit adapters.EventFunc) (*types.CompletionResponse, error) {
		if err := emit(types.CompletionEvent{Type: types.EventToolCallStart, ToolCallID: id, ToolName: name}); err != nil {
			return nil, err
		}
		if err := emit(types.CompletionEvent{Type: types.EventToolCallDelta, ToolCallID: id, InputDelta: input}); err != nil {
			return nil, err
		}
		return &types.CompletionResponse{
			ToolCalls:    []types.ToolCall{{ID: id, Name: name, Input: json.RawMessage(input)}},
			FinishReason: types.FinishToolCalls,
		}, nil
	}
}

// memCounter is an in-memory ratelimit.Counter.
type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	calls  int
}

func newMemCounter() *memCounter { return &memCounter{counts: map[string]int64{}} }

func (c *memCounter) Incr(_ context.Context, key string, n int64, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.counts[key] += n
	return c.counts[key], window, nil
}

func (c *memCounter) get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

type memCredentialStore struct {
	creds map[string]*auth.Credential
}

func (s *memCredentialStore) Lookup(_ context.Context, username string) (*auth.Credential, error) {
	return s.creds[username], nil
}

type testEnv struct {
	handler http.Handler
	adapter *scriptedAdapter
	openai  *scriptedAdapter
	counter *memCounter
	health  *router.HealthTracker
	policy  *policy.Evaluator
	cfg     *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config), steps ...stepFunc) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.CORS.AllowedOrigins = []string{testOrigin}
	cfg.Routing.StreamFirstChunkTimeout = 0
	if mutate != nil {
		mutate(cfg)
	}

	adapter := &scriptedAdapter{name: "anthropic", steps: steps}
	openaiAdapter := &scriptedAdapter{name: "openai", steps: steps}
	resolver, err := router.NewResolver(config.DefaultModels(), router.NewRegistry(adapter, openaiAdapter))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	registry, err := tools.NewDefaultRegistry(time.Now)
	if err != nil {
		t.Fatalf("tool registry: %v", err)
	}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	health := router.NewHealthTracker(cfg.Routing.CircuitBreaker)
	counter := newMemCounter()
	evaluator := policy.NewEvaluator(func() config.PolicyConfig { return cfg.Policy })

	store := &memCredentialStore{creds: map[string]*auth.Credential{
		"ryo": {Username: "ryo", TokenHash: auth.HashToken(testToken), ExpiresAt: time.Now().Add(time.Hour)},
	}}

	h := NewHandler(Deps{
		Config:     func() *config.Config { return cfg },
		Resolvers:  router.NewTable(resolver),
		Health:     health,
		Limiter:    ratelimit.NewLimiter(counter, cfg.RateLimit),
		Policy:     evaluator,
		Prompts:    prompt.NewAssembler(),
		Dispatcher: tools.NewDispatcher(registry, metrics),
		Metrics:    metrics,
		Version:    "test",
	})
	gk := origin.NewGatekeeper(cfg.CORS).WithMetrics(metrics)
	return &testEnv{
		handler: NewRouter(h, gk, auth.NewValidator(store, cfg.Auth.GracePeriod)),
		adapter: adapter,
		openai:  openaiAdapter,
		counter: counter,
		health:  health,
		policy:  evaluator,
		cfg:     cfg,
	}
}

func (e *testEnv) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

const helloBody = `{"messages":[{"role":"user","content":"hello"}]}`

// parseSSE returns the decoded events and whether the stream ended with [DONE].
func parseSSE(t *testing.T, body string) ([]types.StreamEvent, bool) {
	t.Helper()
	var events []types.StreamEvent
	done := false
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		data, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("malformed frame %q", frame)
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		if done {
			t.Fatalf("event after [DONE]: %s", data)
		}
		var ev types.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	return events, done
}

func eventTypes(events []types.StreamEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

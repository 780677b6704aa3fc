package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/httputil"
	"github.com/af-corp/chat-gateway/internal/policy"
	"github.com/af-corp/chat-gateway/internal/prompt"
	"github.com/af-corp/chat-gateway/internal/ratelimit"
	"github.com/af-corp/chat-gateway/internal/router"
	"github.com/af-corp/chat-gateway/internal/telemetry"
	"github.com/af-corp/chat-gateway/internal/tools"
	"github.com/af-corp/chat-gateway/internal/types"
)

// Handler holds dependencies for the chat HTTP handlers.
type Handler struct {
	cfg        func() *config.Config
	resolvers  *router.Table
	health     *router.HealthTracker
	limiter    *ratelimit.Limiter
	policy     *policy.Evaluator
	prompts    *prompt.Assembler
	dispatcher *tools.Dispatcher
	metrics    *telemetry.Metrics
	version    string
}

// Deps is everything NewHandler needs. Policy and Metrics may be nil.
type Deps struct {
	Config     func() *config.Config
	Resolvers  *router.Table
	Health     *router.HealthTracker
	Limiter    *ratelimit.Limiter
	Policy     *policy.Evaluator
	Prompts    *prompt.Assembler
	Dispatcher *tools.Dispatcher
	Metrics    *telemetry.Metrics
	Version    string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:        d.Config,
		resolvers:  d.Resolvers,
		health:     d.Health,
		limiter:    d.Limiter,
		policy:     d.Policy,
		prompts:    d.Prompts,
		dispatcher: d.Dispatcher,
		metrics:    d.Metrics,
		version:    d.Version,
	}
}

// Chat handles POST /api/chat. Origin and auth middleware have already run.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()
	cfg := h.cfg()
	id, _ := auth.IdentityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Chat.MaxBodyBytes)
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "request body is not valid JSON"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"
		}
		httputil.WriteBadRequestError(w, reqID, httputil.CodeInvalidJSON, msg)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteBadRequestError(w, reqID, httputil.CodeInvalidMessages, err.Error())
		return
	}
	if m := r.URL.Query().Get("model"); m != "" {
		req.Model = m
	}

	resolver := h.resolvers.Load()
	if !resolver.Supported(req.Model) {
		httputil.WriteBadRequestError(w, reqID, httputil.CodeUnsupportedModel, "unsupported model: "+req.Model)
		return
	}
	handle := resolver.Resolve(req.Model)

	if h.policy != nil && h.policy.Enabled() {
		decision := h.policy.Check(r.Context(), policy.Input{
			User: policy.User{Username: id.Username, Authenticated: id.Authenticated, IdentityType: id.Type()},
			Request: policy.Request{
				RequestedModel: req.Model,
				Model:          handle.Logical,
				Provider:       handle.Provider,
				Origin:         r.Header.Get("Origin"),
			},
			Time: policy.NewTime(receivedAt),
		})
		if !decision.Allowed {
			slog.Warn("model access denied by policy",
				"request_id", reqID,
				"model", handle.Logical,
				"identity_type", id.Type(),
				"reason", decision.Reason,
			)
			h.recordRequest(handle, id, "403", Result{}, receivedAt)
			httputil.WritePolicyError(w, reqID, decision.Reason)
			return
		}
	}

	limit, _ := h.limiter.Check(r.Context(), id, r.RemoteAddr, ratelimit.NewUserTurns(req.Messages))
	ratelimit.WriteHeaders(w, limit)
	if !limit.Allowed {
		slog.Warn("rate limit exceeded",
			"request_id", reqID,
			"key", limit.Key,
			"count", limit.Count,
			"limit", limit.Limit,
		)
		if h.metrics != nil {
			h.metrics.RecordRateLimitHit(limit.IdentityType)
		}
		h.recordRequest(handle, id, "429", Result{}, receivedAt)
		httputil.WriteRateLimitError(w, reqID, httputil.RateLimitError{
			Count:        limit.Count,
			Limit:        limit.Limit,
			IdentityType: limit.IdentityType,
			ResetSeconds: int64(limit.ResetAfter.Seconds()),
		})
		return
	}

	turns, clientSystem := buildConversation(req.Messages)
	bundle := h.prompts.Build(prompt.Input{
		State:    req.SystemState,
		Geo:      prompt.GeoFromHeaders(r.Header),
		Username: id.Username,
		Now:      receivedAt,
	})

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Chat.RequestTimeout)
	defer cancel()

	out := newSSEWriter(w)
	out.onCommit = func() {
		if h.metrics != nil {
			h.metrics.RecordFirstByte(handle.Provider, float64(time.Since(receivedAt).Milliseconds()))
		}
	}

	loop := &Loop{
		Handle:            handle,
		Dispatcher:        h.dispatcher,
		Health:            h.health,
		System:            append(bundle.Blocks(), clientSystem...),
		MaxSteps:          cfg.Chat.MaxSteps,
		MaxTokens:         cfg.Chat.MaxOutputTokens,
		Temperature:       cfg.Chat.Temperature,
		FirstChunkTimeout: cfg.Routing.StreamFirstChunkTimeout,
		RequestID:         reqID,
	}
	res := loop.Run(r.Context(), ctx, turns, out, "msg_"+uuid.NewString())

	status := "200"
	if res.Err != nil && !out.Committed() {
		status = "500"
		slog.Error("provider failed before streaming started",
			"request_id", reqID,
			"provider", handle.Provider,
			"error", res.Err,
		)
		httputil.WriteInternalError(w, reqID, "the model provider is unavailable")
	}
	h.recordRequest(handle, id, status, res, receivedAt)

	slog.Info("chat completed",
		"request_id", reqID,
		"model_requested", req.Model,
		"model", handle.Logical,
		"provider", handle.Provider,
		"identity_type", id.Type(),
		"steps", res.Steps,
		"finish_reason", res.FinishReason,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
	)
}

func (h *Handler) recordRequest(handle router.Handle, id auth.Identity, status string, res Result, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(telemetry.RequestLabels{
		Model:        handle.Logical,
		Provider:     handle.Provider,
		Status:       status,
		IdentityType: id.Type(),
		FinishReason: res.FinishReason,
		Steps:        res.Steps,
		DurationMs:   float64(time.Since(start).Milliseconds()),
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
	})
}

type modelListResponse struct {
	Default string             `json:"default"`
	Models  []router.ModelInfo `json:"models"`
}

// Models handles GET /api/chat/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	resolver := h.resolvers.Load()
	httputil.WriteJSON(w, w.Header().Get("X-Request-ID"), http.StatusOK, modelListResponse{
		Default: resolver.Default(),
		Models:  resolver.Models(),
	})
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Providers map[string]router.Status `json:"providers"`
}

// Health handles GET /health. It reports "degraded" when any provider
// circuit is open but still answers 200; the gateway itself is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.health.Snapshot(h.resolvers.Load().Providers()...)
	status := "healthy"
	for _, s := range snap {
		if s.State == router.StateOpen.String() {
			status = "degraded"
		}
	}
	httputil.WriteJSON(w, "", http.StatusOK, healthResponse{
		Status:    status,
		Version:   h.version,
		Providers: snap,
	})
}

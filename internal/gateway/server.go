package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/httputil"
	"github.com/af-corp/chat-gateway/internal/origin"
)

// NewRouter wires the public HTTP surface. Every /api/chat route passes
// the origin gatekeeper first; only POST /api/chat needs an identity.
func NewRouter(h *Handler, gk *origin.Gatekeeper, validator *auth.Validator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", h.Health)

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(gk.Middleware)
		r.NotFound(notFound)
		r.MethodNotAllowed(methodNotAllowed)

		r.With(auth.Middleware(validator)).Post("/", h.Chat)
		r.Options("/", func(http.ResponseWriter, *http.Request) {})
		r.Get("/models", h.Models)
		r.Options("/models", func(http.ResponseWriter, *http.Request) {})
	})
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteMethodNotAllowedError(w, w.Header().Get("X-Request-ID"))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, w.Header().Get("X-Request-ID"), http.StatusNotFound, httputil.CodeNotFound, "no route for "+r.URL.Path)
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID propagates or assigns X-Request-ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// Package origin rejects cross-origin callers that are not on the
// configured allow-list before any other request processing happens.
package origin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/httputil"
	"github.com/af-corp/chat-gateway/internal/telemetry"
)

type policy struct {
	origins map[string]struct{}
	methods string
	headers string
	maxAge  string
}

// Gatekeeper holds the active allow-list. Update swaps it atomically so a
// config reload never exposes a half-built list.
type Gatekeeper struct {
	p       atomic.Pointer[policy]
	metrics *telemetry.Metrics
}

func NewGatekeeper(cfg config.CORSConfig) *Gatekeeper {
	g := &Gatekeeper{}
	g.Update(cfg)
	return g
}

// WithMetrics counts rejected requests in m.
func (g *Gatekeeper) WithMetrics(m *telemetry.Metrics) *Gatekeeper {
	g.metrics = m
	return g
}

func (g *Gatekeeper) Update(cfg config.CORSConfig) {
	p := &policy{
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
	}
	for _, o := range cfg.AllowedOrigins {
		p.origins[o] = struct{}{}
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}
	g.p.Store(p)
}

// Allowed reports whether origin exactly matches an allow-list entry.
// There is no wildcard, subdomain or scheme-insensitive matching.
func (g *Gatekeeper) Allowed(origin string) bool {
	if origin == "" || origin == "null" {
		return false
	}
	_, ok := g.p.Load().origins[origin]
	return ok
}

// Middleware answers preflight requests and rejects disallowed origins with
// 403. It must run before auth, rate limiting and body parsing.
func (g *Gatekeeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := w.Header().Get("X-Request-ID")
		origin := r.Header.Get("Origin")

		if !g.Allowed(origin) {
			slog.Warn("origin rejected",
				"request_id", reqID,
				"origin", origin,
				"method", r.Method,
				"path", r.URL.Path,
			)
			if g.metrics != nil {
				g.metrics.OriginRejected.Inc()
			}
			httputil.WriteOriginError(w, reqID)
			return
		}

		p := g.p.Load()
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", p.methods)
			h.Set("Access-Control-Allow-Headers", p.headers)
			if p.maxAge != "" {
				h.Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

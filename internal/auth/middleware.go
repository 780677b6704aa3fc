package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/af-corp/chat-gateway/internal/httputil"
)

// Middleware returns a chi middleware that resolves the caller identity from
// the X-Username and Authorization headers and stores it in the context.
func Middleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")
			username := r.Header.Get("X-Username")

			id, err := v.Validate(r.Context(), username, r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, ErrAuthenticationFailed) {
					slog.Warn("auth failed",
						"request_id", reqID,
						"username", NormalizeUsername(username),
					)
					httputil.WriteAuthError(w, reqID)
					return
				}
				slog.Error("credential lookup failed", "request_id", reqID, "error", err)
				httputil.WriteInternalError(w, reqID, "internal error during authentication")
				return
			}

			ctx := ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

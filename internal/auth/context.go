package auth

import "context"

type contextKey string

const identityContextKey contextKey = "chat_identity"

// Identity is the resolved caller. Username is normalized and empty for
// anonymous callers.
type Identity struct {
	Username      string
	Authenticated bool
}

func (i Identity) Type() string {
	if i.Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity set by Middleware. Callers that
// bypass the middleware get an anonymous identity and ok=false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAuthenticationFailed covers every way a supplied (username, token)
// pair can be rejected. Callers must not distinguish between them.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Validator resolves request credentials into an Identity.
type Validator struct {
	store       CredentialStore
	gracePeriod time.Duration
	now         func() time.Time
}

func NewValidator(store CredentialStore, gracePeriod time.Duration) *Validator {
	return &Validator{store: store, gracePeriod: gracePeriod, now: time.Now}
}

// Validate checks the X-Username and Authorization header values. An empty
// username yields the anonymous identity regardless of the token. Expired
// tokens are accepted until expires_at + grace period; nothing is refreshed.
func (v *Validator) Validate(ctx context.Context, username, authHeader string) (Identity, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return Identity{}, nil
	}

	token, ok := bearerToken(authHeader)
	if !ok {
		return Identity{}, ErrAuthenticationFailed
	}

	cred, err := v.store.Lookup(ctx, username)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup credential: %w", err)
	}
	if cred == nil {
		return Identity{}, ErrAuthenticationFailed
	}

	if subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(cred.TokenHash)) != 1 {
		return Identity{}, ErrAuthenticationFailed
	}
	if !cred.ExpiresAt.IsZero() && !v.now().Before(cred.ExpiresAt.Add(v.gracePeriod)) {
		return Identity{}, ErrAuthenticationFailed
	}

	return Identity{Username: username, Authenticated: true}, nil
}

func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

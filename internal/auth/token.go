package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken creates a new user auth token with the format: chat-{env}-{32 random alphanumeric chars}
func GenerateToken(env string) (string, error) {
	random, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("chat-%s-%s", env, random), nil
}

// HashToken returns the SHA-256 hex digest of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

// TokenPrefix extracts a log-safe prefix: chat-{env}-{first 8 chars}.
func TokenPrefix(token string) string {
	if len(token) < 16 {
		return token
	}
	dashes := 0
	for i, c := range token {
		if c == '-' {
			dashes++
			if dashes == 2 {
				end := min(i+9, len(token))
				return token[:end]
			}
		}
	}
	return token[:16]
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// Credential is the stored half of a (username, token) pair. Only the token
// hash is ever persisted.
type Credential struct {
	Username  string    `json:"username"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NormalizeUsername is the canonical form used for storage keys and
// rate-limit identities.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ParseDuration parses a duration string like "90d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	if s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chat:cred:"

// CredentialStore looks up the stored credential for a normalized username.
// A nil credential with a nil error means the user has no token.
type CredentialStore interface {
	Lookup(ctx context.Context, username string) (*Credential, error)
}

// CachedCredentialStore reads credentials from PostgreSQL through a Redis
// cache. With no database configured Redis is the source of truth.
type CachedCredentialStore struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewCachedCredentialStore(db *pgxpool.Pool, rdb *redis.Client, cacheTTL time.Duration) *CachedCredentialStore {
	return &CachedCredentialStore{db: db, redis: rdb, cacheTTL: cacheTTL}
}

func (s *CachedCredentialStore) Lookup(ctx context.Context, username string) (*Credential, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+username).Bytes()
		switch {
		case err == nil:
			var cred Credential
			if err := json.Unmarshal(cached, &cred); err == nil {
				return &cred, nil
			}
		case !errors.Is(err, redis.Nil) && s.db == nil:
			return nil, fmt.Errorf("redis get credential: %w", err)
		}
	}

	if s.db == nil {
		return nil, nil
	}

	cred, err := s.lookupDB(ctx, username)
	if err != nil || cred == nil {
		return cred, err
	}

	if s.redis != nil && s.cacheTTL > 0 {
		if data, err := json.Marshal(cred); err == nil {
			s.redis.Set(ctx, redisKeyPrefix+username, data, s.cacheTTL)
		}
	}
	return cred, nil
}

func (s *CachedCredentialStore) lookupDB(ctx context.Context, username string) (*Credential, error) {
	var cred Credential
	err := s.db.QueryRow(ctx, `
		SELECT username, token_hash, expires_at
		FROM auth_tokens
		WHERE username = $1
		  AND revoked_at IS NULL
		ORDER BY expires_at DESC
		LIMIT 1
	`, username).Scan(&cred.Username, &cred.TokenHash, &cred.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query auth_tokens: %w", err)
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE auth_tokens SET last_used_at = NOW() WHERE username = $1 AND token_hash = $2`,
			cred.Username, cred.TokenHash)
	}()

	return &cred, nil
}

// Store persists a credential. In Redis-only mode the entry lives until the
// end of the grace period after expiry.
func (s *CachedCredentialStore) Store(ctx context.Context, cred Credential, grace time.Duration) error {
	if s.db != nil {
		_, err := s.db.Exec(ctx, `
			INSERT INTO auth_tokens (username, token_hash, expires_at)
			VALUES ($1, $2, $3)
		`, cred.Username, cred.TokenHash, cred.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert auth_token: %w", err)
		}
	}
	if s.redis == nil {
		if s.db == nil {
			return fmt.Errorf("no credential backend configured")
		}
		return nil
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	ttl := s.cacheTTL
	if s.db == nil {
		ttl = time.Until(cred.ExpiresAt.Add(grace))
		if ttl <= 0 {
			return fmt.Errorf("credential for %s is already past its grace period", cred.Username)
		}
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+cred.Username, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

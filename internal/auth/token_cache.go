package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// RevokedSessionPrefix prefixes the Redis keys of revoked table-session tokens
	RevokedSessionPrefix = "revoked_session:"
	// RevocationBuffer outlives the token a little to absorb clock skew
	RevocationBuffer = 60 * time.Second
)

var ErrTokenRevoked = errors.New("session token revoked")

// RedisRevocations remembers table sessions whose tokens must no longer be accepted.
type RedisRevocations struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisRevocations creates a revocation list whose entries live for the token lifetime.
func NewRedisRevocations(client *redis.Client, tokenTTL time.Duration) *RedisRevocations {
	return &RedisRevocations{
		Client: client,
		TTL:    tokenTTL + RevocationBuffer,
	}
}

// Revoke marks the session's token as revoked.
func (c *RedisRevocations) Revoke(ctx context.Context, sessionID string) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := c.Client.Set(ctx, RevokedSessionPrefix+sessionID, time.Now().Unix(), c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke session token: %w", err)
	}
	return nil
}

// IsRevoked reports whether Revoke was called for the session.
func (c *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if c.Client == nil {
		return false, fmt.Errorf("redis client not initialized")
	}
	n, err := c.Client.Exists(ctx, RevokedSessionPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked session: %w", err)
	}
	return n > 0, nil
}

// Revocations is the read side used when verifying tokens.
type Revocations interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionVerifier verifies table-session tokens and refuses revoked ones.
// A revocation lookup failure does not reject the token: session status is
// checked again by every operation that depends on it.
type SessionVerifier struct {
	Tokens  *SessionTokens
	Revoked Revocations
}

func (v *SessionVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	id, err := v.Tokens.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	if v.Revoked != nil {
		revoked, err := v.Revoked.IsRevoked(ctx, id.SessionID)
		if err == nil && revoked {
			return Identity{}, ErrTokenRevoked
		}
	}
	return id, nil
}

// Package session stores customer login sessions. The cookie value never
// reaches storage: rows are keyed by its SHA-256 digest.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Session struct {
	Digest     string
	CustomerID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Digest returns the storage key for a raw session token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type Repository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, digest string) (*Session, error)
	Touch(ctx context.Context, digest string, at time.Time) error
	Delete(ctx context.Context, digest string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

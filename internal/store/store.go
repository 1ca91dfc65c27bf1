package store

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// RateLimitRecord is the per-session rate-limit state.
type RateLimitRecord struct {
	SessionID      string    `json:"session_id"`
	LastAcceptedAt time.Time `json:"last_accepted_at"`
}

// Store holds one RateLimitRecord per session. Get returns (nil, nil) when the
// session has no record. Put overwrites any previous record.
type Store interface {
	Get(ctx context.Context, sessionID string) (*RateLimitRecord, error)
	Put(ctx context.Context, rec RateLimitRecord) error
	Ping(ctx context.Context) error
}

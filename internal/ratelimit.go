package form_mailer

import (
	"context"
	"math"
	"time"

	"github.com/contactgate/contactgate/internal/store"
)

// Decision is the answer of RateLimiter.Check. RetryAfter is in whole
// seconds and is at least 1 when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter int
}

// RateLimiter enforces a minimum interval between accepted submissions of
// one session. Check runs before any other work on the request; Commit runs
// only once the notification went out.
type RateLimiter struct {
	store  store.Store
	window time.Duration
}

func NewRateLimiter(s store.Store, window time.Duration) *RateLimiter {
	return &RateLimiter{store: s, window: window}
}

func (l *RateLimiter) Window() time.Duration {
	return l.window
}

func (l *RateLimiter) Check(ctx context.Context, sessionID string, now time.Time) (Decision, error) {
	rec, err := l.store.Get(ctx, sessionID)
	if err != nil {
		return Decision{}, err
	}
	if rec == nil {
		return Decision{Allowed: true}, nil
	}

	elapsed := now.Sub(rec.LastAcceptedAt)
	if elapsed >= l.window {
		return Decision{Allowed: true}, nil
	}

	// a record from the future (clock skew) never blocks longer than one window
	wait := min(l.window-elapsed, l.window)
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return Decision{RetryAfter: secs}, nil
}

func (l *RateLimiter) Commit(ctx context.Context, sessionID string, now time.Time) error {
	return l.store.Put(ctx, store.RateLimitRecord{
		SessionID:      sessionID,
		LastAcceptedAt: now,
	})
}

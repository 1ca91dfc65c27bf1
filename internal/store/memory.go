package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records idle longer than ttl
// are treated as expired, mirroring a session that timed out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]RateLimitRecord
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. ttl == 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]RateLimitRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*RateLimitRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok || s.expired(rec, s.now()) {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec RateLimitRecord) error {
	s.mu.Lock()
	s.records[rec.SessionID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Cleanup drops expired records and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	if s.ttl == 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if s.expired(rec, now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// StartBackgroundCleanup runs Cleanup every interval until the returned
// function is called.
func (s *MemoryStore) StartBackgroundCleanup(interval time.Duration) func() {
	if s.ttl == 0 || interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Len returns the number of records held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) expired(rec RateLimitRecord, now time.Time) bool {
	return s.ttl > 0 && now.Sub(rec.LastAcceptedAt) > s.ttl
}

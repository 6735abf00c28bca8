package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/valora-sleep/internal/repository"
)

// MemoryStateLedger is an in-process StateLedger with lazy expiry.
type MemoryStateLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ repository.StateLedger = (*MemoryStateLedger)(nil)

// NewMemoryStateLedger returns an empty ledger.
func NewMemoryStateLedger() *MemoryStateLedger {
	return &MemoryStateLedger{entries: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryStateLedger) Remember(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[buildStateKey(state)] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStateLedger) Consume(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := buildStateKey(state)
	expiry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return s.now().Before(expiry), nil
}

// sweep drops expired entries. Caller holds mu.
func (s *MemoryStateLedger) sweep() {
	now := s.now()
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
}

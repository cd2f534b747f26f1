package presence

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long an unrefreshed presence entry stays alive. An
// abruptly dropped connection that never ran its teardown converges to
// offline within one TTL window.
const DefaultTTL = 300 * time.Second

// Entry is the cached presence state for one user.
type Entry struct {
	Online     bool      `json:"online"`
	LastUpdate time.Time `json:"last_update"`
}

// Store records user online/offline state in a TTL-bounded cache. Callers
// must treat a missing or expired entry as offline.
type Store interface {
	SetOnline(ctx context.Context, userID int) error
	SetOffline(ctx context.Context, userID int) error
	Refresh(ctx context.Context, userID int) error
	IsOnline(ctx context.Context, userID int) (bool, error)
	LastUpdate(ctx context.Context, userID int) (time.Time, bool, error)
}

// MemoryStore is a process-local Store used when Redis is not configured and
// by tests. Entries expire lazily on read.
type MemoryStore struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[int]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore builds a MemoryStore. ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[int]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) set(userID int, online bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{
		entry:     Entry{Online: online, LastUpdate: now},
		expiresAt: now.Add(s.ttl),
	}
}

// SetOnline marks the user online and arms the TTL.
func (s *MemoryStore) SetOnline(ctx context.Context, userID int) error {
	s.set(userID, true)
	return nil
}

// SetOffline overwrites the entry as offline. It still carries a TTL so stale
// offline markers eventually vanish too.
func (s *MemoryStore) SetOffline(ctx context.Context, userID int) error {
	s.set(userID, false)
	return nil
}

// Refresh re-arms the TTL and bumps the last-update timestamp.
func (s *MemoryStore) Refresh(ctx context.Context, userID int) error {
	s.set(userID, true)
	return nil
}

func (s *MemoryStore) get(userID int) (Entry, bool) {
	s.mu.RLock()
	me, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if s.now().After(me.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent refresh may have won.
		if cur, ok := s.entries[userID]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, userID)
		}
		s.mu.Unlock()
		return Entry{}, false
	}
	return me.entry, true
}

// IsOnline reports whether a live entry marks the user online.
func (s *MemoryStore) IsOnline(ctx context.Context, userID int) (bool, error) {
	e, ok := s.get(userID)
	return ok && e.Online, nil
}

// LastUpdate returns the entry's timestamp, or false when none survives.
func (s *MemoryStore) LastUpdate(ctx context.Context, userID int) (time.Time, bool, error) {
	e, ok := s.get(userID)
	if !ok {
		return time.Time{}, false, nil
	}
	return e.LastUpdate, true, nil
}

var _ Store = (*MemoryStore)(nil)

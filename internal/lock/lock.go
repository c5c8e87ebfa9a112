package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLocked = errors.New("scope is locked")

// ScopeLocker grants exclusive generation rights over a scope. TryLock never waits: it fails with ErrLocked when the
// scope is held. The lock expires after ttl if the holder never releases it.
type ScopeLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// MemoryLocker is a ScopeLocker for a single process
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]uint64
	now   func() time.Time
	until map[string]time.Time
	next  uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok && l.now().Before(l.until[key]) {
		return nil, ErrLocked
	}
	l.next++
	token := l.next
	l.held[key] = token
	l.until[key] = l.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// An expired lock may belong to someone else by now
			if l.held[key] == token {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}, nil
}

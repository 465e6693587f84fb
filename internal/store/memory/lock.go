package memory

import (
	"context"
	"sync"
	"time"

	"github.com/poolwise/poolmarket/internal/domain"
)

// LockManager is an in-process mutual exclusion provider used when no Redis
// is configured. Locks expire after their TTL so a crashed holder cannot
// wedge a key forever.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]time.Time)}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld if another
// holder owns it and the TTL has not elapsed. The returned func releases the
// lock and is safe to call more than once.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.locks[key]; ok && time.Now().Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	m.locks[key] = time.Now().Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locks, key)
			m.mu.Unlock()
		})
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)

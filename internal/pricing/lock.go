package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
)

func refreshLockName(tier domain.Tier) string {
	return "pricing_refresh:" + string(tier)
}

// LocalLocker is an in-process Locker for single-replica deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) AcquireLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.held[name]; ok && l.now().Before(until) {
		return false, nil
	}
	l.held[name] = l.now().Add(ttl)
	return true, nil
}

func (l *LocalLocker) ReleaseLock(_ context.Context, name string) error {
	l.mu.Lock()
	delete(l.held, name)
	l.mu.Unlock()
	return nil
}

package redis

import (
	"context"
	"sync"
	"time"
)

// LocalCooldown is an in-process stand-in for AcquireCooldown used when no
// Redis endpoint is configured. It only guards a single instance.
type LocalCooldown struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewLocalCooldown returns an empty in-process cooldown table.
func NewLocalCooldown() *LocalCooldown {
	return &LocalCooldown{expires: make(map[string]time.Time), now: time.Now}
}

func (l *LocalCooldown) CooldownKey(scope string, parts ...string) string {
	return CooldownKey(scope, parts...)
}

// AcquireCooldown claims key for ttl.
func (l *LocalCooldown) AcquireCooldown(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, ok := l.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	for k, until := range l.expires {
		if !now.Before(until) && k != key {
			delete(l.expires, k)
		}
	}
	return true, nil
}

// LocalCounter is the in-process stand-in for Client.IncrWithTTL.
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]localWindow
	now     func() time.Time
}

type localWindow struct {
	count int64
	until time.Time
}

// NewLocalCounter returns an empty fixed-window counter table.
func NewLocalCounter() *LocalCounter {
	return &LocalCounter{windows: make(map[string]localWindow), now: time.Now}
}

func (l *LocalCounter) RateLimitKey(scope string, parts ...string) string {
	return RateLimitKey(scope, parts...)
}

// IncrWithTTL bumps the counter for key, starting a new window once the old one lapses.
func (l *LocalCounter) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.until) {
		w = localWindow{until: now.Add(ttl)}
	}
	w.count++
	l.windows[key] = w
	return w.count, nil
}

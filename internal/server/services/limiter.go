package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
)

type attemptWindow struct {
	count       int
	windowStart time.Time
}

// AttemptLimiter counts failures per key inside a fixed window.
// Expired windows are dropped lazily on access and by Run's periodic sweep,
// so the map only holds keys that failed recently.
type AttemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*attemptWindow
	now     func() time.Time
}

func NewAttemptLimiter(max int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		max:     max,
		window:  window,
		entries: make(map[string]*attemptWindow),
		now:     time.Now,
	}
}

// Allow fails with common.ErrorTooManyAttempts while key is locked out.
// A non-positive max disables limiting.
func (l *AttemptLimiter) Allow(key string) error {
	if l.max <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[key]
	if !ok {
		return nil
	}
	now := l.now()
	if now.Sub(w.windowStart) >= l.window {
		delete(l.entries, key)
		return nil
	}
	if w.count >= l.max {
		retry := w.windowStart.Add(l.window).Sub(now).Round(time.Second)
		return fmt.Errorf("%w: retry in %s", common.ErrorTooManyAttempts, retry)
	}
	return nil
}

// Fail records one failed attempt for key.
func (l *AttemptLimiter) Fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[key]
	if !ok || now.Sub(w.windowStart) >= l.window {
		l.entries[key] = &attemptWindow{count: 1, windowStart: now}
		return
	}
	w.count++
}

// Reset forgets key, typically after a successful attempt.
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *AttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *AttemptLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, w := range l.entries {
		if now.Sub(w.windowStart) >= l.window {
			delete(l.entries, k)
		}
	}
}

// Run sweeps expired windows every interval until ctx is done.
func (l *AttemptLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.prune()
		}
	}
}

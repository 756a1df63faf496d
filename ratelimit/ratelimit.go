// Package ratelimit provides fixed-window request limiting keyed by caller.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults match the per-user budget of the HTTP endpoints.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	count int
	reset time.Time
}

// FixedWindow is an in-process fixed-window counter. It is only accurate for
// a single instance; use Redis when the service scales out.
type FixedWindow struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewFixedWindow creates a limiter allowing limit requests per window.
// A nil clock uses time.Now.
func NewFixedWindow(limit int, w time.Duration, now func() time.Time) *FixedWindow {
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{
		clients: make(map[string]*window),
		limit:   limit,
		window:  w,
		now:     now,
	}
}

// Allow records a request for key and reports whether it is within budget.
func (l *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.After(w.reset) {
		l.sweep(now)
		l.clients[key] = &window{count: 1, reset: now.Add(l.window)}
		return true, nil
	}

	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweep drops expired windows so idle callers do not accumulate.
func (l *FixedWindow) sweep(now time.Time) {
	for k, w := range l.clients {
		if now.After(w.reset) {
			delete(l.clients, k)
		}
	}
}

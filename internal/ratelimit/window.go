// Package ratelimit bounds requests per user per time window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether userID may make another request now.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type windowState struct {
	start time.Time
	count int
}

// Window is an in-process fixed-window counter. State is lost on restart,
// which is acceptable for abuse mitigation but not for billing.
type Window struct {
	mu     sync.Mutex
	size   time.Duration
	max    int
	now    func() time.Time
	states map[string]*windowState
}

func NewWindow(size time.Duration, max int) *Window {
	return &Window{
		size:   size,
		max:    max,
		now:    time.Now,
		states: make(map[string]*windowState),
	}
}

var _ Limiter = (*Window)(nil)

func (w *Window) Allow(_ context.Context, userID string) (bool, error) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.states[userID]
	if !ok || now.Sub(st.start) >= w.size {
		w.states[userID] = &windowState{start: now, count: 1}
		return true, nil
	}
	if st.count >= w.max {
		return false, nil
	}
	st.count++
	return true, nil
}

// Sweep drops windows that have elapsed and returns how many were removed.
func (w *Window) Sweep() int {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, st := range w.states {
		if now.Sub(st.start) >= w.size {
			delete(w.states, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (w *Window) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Sweep()
		}
	}
}

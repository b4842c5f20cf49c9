package scheduler

import (
	"context"
	"sync"
)

// Watermarks holds the last date key each action fired on. The zero value is
// not usable; call NewWatermarks.
type Watermarks struct {
	mu   sync.Mutex
	last map[string]DateKey
}

// NewWatermarks returns an empty set where every action has never fired.
func NewWatermarks() *Watermarks {
	return &Watermarks{last: make(map[string]DateKey)}
}

// Last returns the date key action last fired on.
func (w *Watermarks) Last(action string) (DateKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k, ok := w.last[action]
	return k, ok
}

// Seed records a fire that happened before this process started.
func (w *Watermarks) Seed(action string, key DateKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last[action] = key
}

// CompareAndSet sets action's watermark to today unless it already is today.
// It returns true when the watermark moved, i.e. the caller owns today's fire.
func (w *Watermarks) CompareAndSet(action string, today DateKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if k, ok := w.last[action]; ok && k == today {
		return false
	}
	w.last[action] = today
	return true
}

// Snapshot returns a copy of all watermarks.
func (w *Watermarks) Snapshot() map[string]DateKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]DateKey, len(w.last))
	for k, v := range w.last {
		out[k] = v
	}
	return out
}

// WatermarkStore persists watermarks so a restart on the same day does not
// fire an action again.
type WatermarkStore interface {
	LoadWatermarks(ctx context.Context) (map[string]string, error)
	SaveWatermark(ctx context.Context, action, dateKey string) error
}

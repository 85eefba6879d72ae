// Package clock provides the single source of "now" used by the store.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time as epoch milliseconds.
type Clock interface {
	NowMillis() int64
}

// System reads the wall clock.
type System struct{}

// NowMillis implements Clock.
func (System) NowMillis() int64 { return time.Now().UnixMilli() }

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual returns a Manual clock set to now.
func NewManual(now int64) *Manual { return &Manual{now: now} }

// NowMillis implements Clock.
func (m *Manual) NowMillis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to now.
func (m *Manual) Set(now int64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by d milliseconds.
func (m *Manual) Advance(d int64) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

package mock

import (
	"context"
	"sync"
	"time"

	"releasetest/internal/clock"
)

var _ clock.Clock = (*MockClock)(nil)

// MockClock implements clock.Clock with a controllable time value.
// Sleep advances the clock instead of blocking, so poll loops that run
// against a deadline finish immediately in tests.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
	sleeps  []time.Duration
	onSleep func(time.Duration)
}

// NewMockClock creates a new mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Sleep advances the clock by d. It returns the context error without
// advancing if ctx is already done.
func (m *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.sleeps = append(m.sleeps, d)
	hook := m.onSleep
	m.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

// OnSleep registers a callback invoked after every Sleep. Tests use it to
// change fake backend state between polls.
func (m *MockClock) OnSleep(fn func(time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSleep = fn
}

// Sleeps returns the durations passed to Sleep so far.
func (m *MockClock) Sleeps() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.sleeps...)
}

// Advance moves the clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

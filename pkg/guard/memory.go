package guard

import (
	"context"
	"sync"
	"time"
)

type rateWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

type failureLog struct {
	failures    []time.Time
	window      time.Duration
	bannedUntil time.Time
}

// Memory is an in-process Limiter. State is lost on restart and not shared
// between replicas; use Redis for that.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	rates    map[string]*rateWindow
	lockouts map[string]*failureLog
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:      time.Now,
		rates:    make(map[string]*rateWindow),
		lockouts: make(map[string]*failureLog),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Limiter = (*Memory)(nil)

func (m *Memory) CheckRateLimit(_ context.Context, key string, window time.Duration, max int) (RateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	start := windowStart(now, window)

	w, ok := m.rates[key]
	if !ok || !w.start.Equal(start) {
		w = &rateWindow{start: start, window: window}
		m.rates[key] = w
	}
	w.count++

	if w.count > max {
		return RateResult{OK: false, RetryAfter: start.Add(window).Sub(now)}, nil
	}
	return RateResult{OK: true, Remaining: max - w.count}, nil
}

func (m *Memory) CheckLockout(_ context.Context, key string, p LockoutPolicy) (LockoutStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	fl, ok := m.lockouts[key]
	if !ok {
		return LockoutStatus{}, nil
	}
	if now.Before(fl.bannedUntil) {
		return LockoutStatus{Locked: true, RetryAfter: fl.bannedUntil.Sub(now)}, nil
	}
	fl.prune(now, p.Window)
	return LockoutStatus{Failures: len(fl.failures)}, nil
}

func (m *Memory) RecordFailure(_ context.Context, key string, p LockoutPolicy) (LockoutStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	fl, ok := m.lockouts[key]
	if !ok {
		fl = &failureLog{}
		m.lockouts[key] = fl
	}
	fl.window = p.Window

	if now.Before(fl.bannedUntil) {
		return LockoutStatus{Locked: true, RetryAfter: fl.bannedUntil.Sub(now)}, nil
	}

	fl.prune(now, p.Window)
	fl.failures = append(fl.failures, now)

	if len(fl.failures) >= p.Max {
		fl.bannedUntil = now.Add(p.Ban)
		fl.failures = nil
		return LockoutStatus{Locked: true, Failures: p.Max, RetryAfter: p.Ban}, nil
	}
	return LockoutStatus{Failures: len(fl.failures)}, nil
}

func (m *Memory) ClearFailures(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fl, ok := m.lockouts[key]; ok {
		fl.failures = nil
	}
	return nil
}

// Sweep drops keys with no live window, failures or ban. The housekeeping
// worker calls it on its interval.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, w := range m.rates {
		if !now.Before(w.start.Add(w.window)) {
			delete(m.rates, k)
			removed++
		}
	}
	for k, fl := range m.lockouts {
		fl.prune(now, fl.window)
		if len(fl.failures) == 0 && !now.Before(fl.bannedUntil) {
			delete(m.lockouts, k)
			removed++
		}
	}
	return removed
}

// prune drops failures older than window. The slice is ordered by time.
func (fl *failureLog) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(fl.failures) && !fl.failures[i].After(cutoff) {
		i++
	}
	fl.failures = fl.failures[i:]
}

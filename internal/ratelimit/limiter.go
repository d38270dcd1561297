// Package ratelimit throttles login and password-reset attempts per network
// origin. Allow reserves an attempt inside the window before the caller does
// any work, and the caller releases the reservation when the attempt turns
// out to be a success. A success never clears failures already counted.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/ids"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	// Reservation identifies the attempt counted by an allowed decision.
	Reservation string
}

// RetryAfterSeconds rounds up so clients never retry too early.
func (d Decision) RetryAfterSeconds() string {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return strconv.Itoa(secs)
}

// SetHeaders writes Retry-After for a rejected decision.
func (d Decision) SetHeaders(h http.Header) {
	if !d.Allowed {
		h.Set("Retry-After", d.RetryAfterSeconds())
	}
}

type Limiter interface {
	// Allow counts one attempt against key and reports whether it may
	// proceed. The check and the count happen atomically.
	Allow(ctx context.Context, key string) (Decision, error)
	// Release uncounts a reservation, for attempts that succeeded.
	Release(ctx context.Context, key, reservation string) error
}

type attempt struct {
	id string
	at time.Time
}

type Memory struct {
	mu       sync.Mutex
	attempts map[string][]attempt
	max      int
	window   time.Duration
	clock    clock.Clock
}

func NewMemory(max int, window time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{
		attempts: make(map[string][]attempt),
		max:      max,
		window:   window,
		clock:    clk,
	}
}

// prune drops attempts older than the window. Caller holds mu.
func (m *Memory) prune(key string, now time.Time) []attempt {
	cutoff := now.Add(-m.window)
	kept := m.attempts[key][:0]
	for _, a := range m.attempts[key] {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(m.attempts, key)
		return nil
	}
	m.attempts[key] = kept
	return kept
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.prune(key, now)
	if len(recent) < m.max {
		id := ids.New()
		m.attempts[key] = append(recent, attempt{id: id, at: now})
		return Decision{Allowed: true, Remaining: m.max - len(recent) - 1, Reservation: id}, nil
	}
	// The window frees a slot once the oldest counted attempt ages out.
	oldest := recent[len(recent)-m.max]
	return Decision{
		Allowed:    false,
		RetryAfter: oldest.at.Add(m.window).Sub(now),
	}, nil
}

func (m *Memory) Release(_ context.Context, key, reservation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.attempts[key]
	for i, a := range list {
		if a.id == reservation {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.attempts, key)
	} else {
		m.attempts[key] = list
	}
	return nil
}

// Sweep drops keys whose attempts have all aged out.
func (m *Memory) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.attempts)
	for key := range m.attempts {
		m.prune(key, now)
	}
	return before - len(m.attempts)
}

// Package power handles low-power sleep requests and battery monitoring.
package power

import (
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// Sleeper accepts requests to enter low-power sleep.
type Sleeper interface {
	// RequestSleep asks for sleep of the given length. It never blocks.
	RequestSleep(d time.Duration)
}

// Manager tracks the current sleep window. The process does not suspend;
// other components consult Asleep to skip non-essential work.
type Manager struct {
	now      func() time.Time
	until    atomic.Int64 // unix nanos
	requests atomic.Uint64
}

// NewManager creates a Manager. now may be nil to use time.Now.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

func (m *Manager) RequestSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	until := m.now().Add(d)
	m.until.Store(until.UnixNano())
	m.requests.Inc()
	log.Debug().Dur("duration", d).Msg("power: sleep requested")
}

// Asleep reports whether a sleep window is open.
func (m *Manager) Asleep() bool {
	return m.now().UnixNano() < m.until.Load()
}

// Until returns the end of the last sleep window, or zero if none.
func (m *Manager) Until() time.Time {
	n := m.until.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Requests returns how many sleep requests have been made.
func (m *Manager) Requests() uint64 {
	return m.requests.Load()
}

// Wake closes any open sleep window.
func (m *Manager) Wake() {
	m.until.Store(0)
}

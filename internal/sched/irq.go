package sched

import (
	"time"

	"go.uber.org/atomic"
)

// Armer is everything an interrupt handler may do: arm timers.
type Armer interface {
	StartTimer(task TaskID, ev Event, d time.Duration) error
	StartReloadTimer(task TaskID, ev Event, d time.Duration) error
}

type armer struct{ s *Scheduler }

func (a armer) StartTimer(task TaskID, ev Event, d time.Duration) error {
	return a.s.StartTimer(task, ev, d)
}

func (a armer) StartReloadTimer(task TaskID, ev Event, d time.Duration) error {
	return a.s.StartReloadTimer(task, ev, d)
}

// IRQ is a bounded line from interrupt context into the scheduler. Raise may
// be called from any goroutine; the handler runs on the scheduler goroutine
// with only an Armer. Raises that arrive while one is pending are coalesced.
type IRQ struct {
	s       *Scheduler
	name    string
	pending chan struct{}
	handler func(Armer)
	raised  atomic.Uint64
	dropped atomic.Uint64
}

// NewIRQ attaches an interrupt line whose handler arms timers.
func (s *Scheduler) NewIRQ(name string, handler func(Armer)) *IRQ {
	q := &IRQ{
		s:       s,
		name:    name,
		pending: make(chan struct{}, 1),
		handler: handler,
	}
	s.mu.Lock()
	s.irqs = append(s.irqs, q)
	s.mu.Unlock()
	return q
}

// Name returns the line's name.
func (q *IRQ) Name() string { return q.name }

// Raise signals the line. It never blocks and reports whether the raise was
// queued (false when coalesced into one already pending).
func (q *IRQ) Raise() bool {
	q.raised.Inc()
	select {
	case q.pending <- struct{}{}:
		q.s.nudge()
		return true
	default:
		q.dropped.Inc()
		return false
	}
}

// Raised returns how many times Raise was called.
func (q *IRQ) Raised() uint64 { return q.raised.Load() }

// Coalesced returns how many raises were folded into a pending one.
func (q *IRQ) Coalesced() uint64 { return q.dropped.Load() }

func (s *Scheduler) serviceIRQs() {
	s.mu.Lock()
	irqs := append([]*IRQ(nil), s.irqs...)
	s.mu.Unlock()
	for _, q := range irqs {
		select {
		case <-q.pending:
			q.handler(armer{s})
		default:
		}
	}
}

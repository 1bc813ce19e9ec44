// Package sched is a cooperative, run-to-completion task scheduler.
//
// A task is a handler that receives the set of event bits pending for it and
// returns the bits it did not consume. Timers, messages and interrupt lines
// only ever set event bits; every handler runs on the goroutine that calls Run
// (or RunOnce in tests), so task state needs no locking.
package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// TaskID identifies a registered task. It addresses all timer, event and
// message operations.
type TaskID uint8

// Event is a set of event bits for one task.
type Event uint16

// SysEventMsg is set whenever a task has queued messages.
const SysEventMsg Event = 0x8000

// DefaultQueueCapacity bounds the number of message envelopes that may be
// outstanding (queued or being processed) across all tasks.
const DefaultQueueCapacity = 32

// Handler processes pending events for a task and returns the unprocessed ones.
type Handler func(task TaskID, events Event) Event

var (
	ErrUnknownTask     = errors.New("sched: unknown task")
	ErrQueueFull       = errors.New("sched: message queue full")
	ErrAlreadyReleased = errors.New("sched: message already released")
	ErrInvalidDuration = errors.New("sched: timer duration must be positive")
)

// Envelope carries one queued message. It must be handed back with Release
// exactly once after the receiver is done with it.
type Envelope struct {
	Msg      any
	task     TaskID
	released bool
}

type task struct {
	id      TaskID
	name    string
	handler Handler
	events  atomic.Uint32
	queue   []*Envelope
}

func (t *task) set(ev Event) {
	for {
		old := t.events.Load()
		if t.events.CompareAndSwap(old, old|uint32(ev)) {
			return
		}
	}
}

func (t *task) clear(ev Event) {
	for {
		old := t.events.Load()
		if t.events.CompareAndSwap(old, old&^uint32(ev)) {
			return
		}
	}
}

type timerKey struct {
	task TaskID
	ev   Event
}

type timer struct {
	deadline time.Time
	period   time.Duration // zero for one-shot
}

// Scheduler owns tasks, their event bits, timers and message queues.
type Scheduler struct {
	clock    Clock
	queueCap int
	wake     chan struct{}

	mu          sync.Mutex
	tasks       []*task
	timers      map[timerKey]*timer
	outstanding int
	irqs        []*IRQ
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for timer deadlines.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithQueueCapacity bounds outstanding message envelopes.
func WithQueueCapacity(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueCap = n
		}
	}
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    RealClock(),
		queueCap: DefaultQueueCapacity,
		wake:     make(chan struct{}, 1),
		timers:   make(map[timerKey]*timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// Register adds a task and returns its identity.
func (s *Scheduler) Register(name string, h Handler) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := TaskID(len(s.tasks))
	s.tasks = append(s.tasks, &task{id: id, name: name, handler: h})
	return id
}

func (s *Scheduler) lookup(id TaskID) (*task, error) {
	if int(id) >= len(s.tasks) {
		return nil, ErrUnknownTask
	}
	return s.tasks[id], nil
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SetEvent marks ev pending for the task.
func (s *Scheduler) SetEvent(id TaskID, ev Event) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	t.set(ev)
	s.nudge()
	return nil
}

// ClearEvent removes ev from the task's pending set.
func (s *Scheduler) ClearEvent(id TaskID, ev Event) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	t.clear(ev)
	return nil
}

// Pending returns the task's pending event bits.
func (s *Scheduler) Pending(id TaskID) Event {
	s.mu.Lock()
	t, err := s.lookup(id)
	s.mu.Unlock()
	if err != nil {
		return 0
	}
	return Event(t.events.Load())
}

// StartTimer arms a one-shot timer that sets ev after d. An already armed
// timer for the same task and event is replaced.
func (s *Scheduler) StartTimer(id TaskID, ev Event, d time.Duration) error {
	return s.startTimer(id, ev, d, 0)
}

// StartReloadTimer arms a timer that sets ev every d until stopped. An already
// armed timer for the same task and event is replaced.
func (s *Scheduler) StartReloadTimer(id TaskID, ev Event, d time.Duration) error {
	return s.startTimer(id, ev, d, d)
}

func (s *Scheduler) startTimer(id TaskID, ev Event, d, period time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(id); err != nil {
		return err
	}
	s.timers[timerKey{id, ev}] = &timer{
		deadline: s.clock.Now().Add(d),
		period:   period,
	}
	s.nudge()
	return nil
}

// StopTimer cancels the timer for the task and event. It reports whether a
// timer was armed. Bits already set by an earlier expiry are not touched.
func (s *Scheduler) StopTimer(id TaskID, ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := timerKey{id, ev}
	_, ok := s.timers[key]
	delete(s.timers, key)
	return ok
}

// TimerArmed reports whether a timer is armed for the task and event.
func (s *Scheduler) TimerArmed(id TaskID, ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[timerKey{id, ev}]
	return ok
}

// Remaining returns the time left on an armed timer.
func (s *Scheduler) Remaining(id TaskID, ev Event) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.timers[timerKey{id, ev}]
	if !ok {
		return 0, false
	}
	return tm.deadline.Sub(s.clock.Now()), true
}

// NextDeadline returns the earliest armed timer deadline.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	found := false
	for _, tm := range s.timers {
		if !found || tm.deadline.Before(next) {
			next = tm.deadline
			found = true
		}
	}
	return next, found
}

func (s *Scheduler) expireTimers(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, tm := range s.timers {
		if now.Before(tm.deadline) {
			continue
		}
		s.tasks[key.task].set(key.ev)
		if tm.period == 0 {
			delete(s.timers, key)
			continue
		}
		tm.deadline = tm.deadline.Add(tm.period)
		if !tm.deadline.After(now) {
			tm.deadline = now.Add(tm.period)
		}
	}
}

// Send queues msg for the task and sets its SysEventMsg bit. Messages are
// received in arrival order.
func (s *Scheduler) Send(id TaskID, msg any) error {
	s.mu.Lock()
	t, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.outstanding >= s.queueCap {
		s.mu.Unlock()
		return ErrQueueFull
	}
	s.outstanding++
	t.queue = append(t.queue, &Envelope{Msg: msg, task: id})
	s.mu.Unlock()

	t.set(SysEventMsg)
	s.nudge()
	return nil
}

// Receive dequeues the oldest message for the task.
func (s *Scheduler) Receive(id TaskID) (*Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(id)
	if err != nil || len(t.queue) == 0 {
		return nil, false
	}
	env := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return env, true
}

// Release returns a received envelope's storage to the scheduler.
func (s *Scheduler) Release(env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if env.released {
		return ErrAlreadyReleased
	}
	env.released = true
	env.Msg = nil
	s.outstanding--
	return nil
}

// Outstanding returns the number of envelopes sent but not yet released.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// RunOnce services interrupt lines, expires due timers and invokes every task
// with pending events once. It reports whether any handler ran.
func (s *Scheduler) RunOnce() bool {
	s.serviceIRQs()
	s.expireTimers(s.clock.Now())

	s.mu.Lock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	ran := false
	for _, t := range tasks {
		ev := Event(t.events.Swap(0))
		if ev == 0 {
			continue
		}
		ran = true
		if rest := t.handler(t.id, ev); rest != 0 {
			t.set(rest)
		}
	}
	return ran
}

// maxIdleRounds stops RunUntilIdle from spinning on a task that never
// consumes its events.
const maxIdleRounds = 1024

// RunUntilIdle calls RunOnce until no handler runs.
func (s *Scheduler) RunUntilIdle() {
	for i := 0; i < maxIdleRounds && s.RunOnce(); i++ {
	}
}

// Run drives the scheduler with its clock until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunUntilIdle()

		var fire <-chan time.Time
		var t *time.Timer
		if next, ok := s.NextDeadline(); ok {
			wait := next.Sub(s.clock.Now())
			if wait < 0 {
				wait = 0
			}
			t = time.NewTimer(wait)
			fire = t.C
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return ctx.Err()
		case <-s.wake:
		case <-fire:
		}
		if t != nil {
			t.Stop()
		}
	}
}

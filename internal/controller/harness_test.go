package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/nv"
	"github.com/sweeney/switch-node/internal/nwk"
	"github.com/sweeney/switch-node/internal/power"
	"github.com/sweeney/switch-node/internal/sched"
	"github.com/sweeney/switch-node/internal/status"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	clock   *sched.ManualClock
	s       *sched.Scheduler
	stack   *nwk.FakeStack
	keys    *gpio.FakeKeys
	led     *gpio.FakeLED
	power   *power.Manager
	store   *nv.MemStore
	tracker *status.Tracker
	c       *Controller
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	h := &harness{
		t:       t,
		clock:   sched.NewManualClock(t0),
		stack:   nwk.NewFakeStack(),
		keys:    gpio.NewFakeKeys(),
		led:     gpio.NewFakeLED(),
		store:   &nv.MemStore{},
		tracker: status.NewTracker(t0, status.Config{}),
	}
	h.s = sched.New(sched.WithClock(h.clock))
	h.power = power.NewManager(h.clock.Now)
	h.c = New(cfg, Deps{
		Scheduler: h.s,
		Stack:     h.stack,
		Keys:      h.keys,
		LED:       h.led,
		Sleeper:   h.power,
		Store:     h.store,
		Observer:  h.tracker,
	})
	require.NoError(t, h.c.Start())
	h.s.RunUntilIdle()
	return h
}

func (h *harness) advance(d time.Duration) {
	sched.Advance(h.s, h.clock, d)
}

// at advances to t0+d.
func (h *harness) at(d time.Duration) {
	h.advance(t0.Add(d).Sub(h.clock.Now()))
}

// poll samples the keys now, as the key poll timer would.
func (h *harness) poll() {
	require.NoError(h.t, h.s.SetEvent(h.c.Task(), EventKeyPoll))
	h.s.RunUntilIdle()
}

// press sets mask with an edge and waits for the first poll to see it.
func (h *harness) press(mask gpio.KeyMask) {
	h.keys.Set(mask)
	h.s.RunUntilIdle()
	h.advance(h.c.cfg.KeyPoll)
}

func (h *harness) release() {
	h.press(0)
}

func (h *harness) joined() {
	h.stack.Notifier.StateChange(nwk.StateEndDevice)
	h.s.RunUntilIdle()
}

func (h *harness) armed(ev sched.Event) bool {
	return h.s.TimerArmed(h.c.Task(), ev)
}

func (h *harness) remaining(ev sched.Event) time.Duration {
	d, _ := h.s.Remaining(h.c.Task(), ev)
	return d
}

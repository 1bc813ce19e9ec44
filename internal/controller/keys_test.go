package controller

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/nv"
	"github.com/sweeney/switch-node/internal/zcl"
)

func TestSamplerEmitsOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	masks := []gpio.KeyMask{0, 0, 1, 1, 1, 3, 3, 0, 0, 2, 0}

	prev := gpio.KeyMask(0)
	changes := 0
	for i, m := range masks {
		h.keys.SetQuiet(m)
		got, changed, err := h.c.sampler.Poll()
		require.NoError(t, err)
		assert.Equal(t, m, got, "poll %d", i)
		assert.Equal(t, m != prev, changed, "poll %d", i)
		if changed {
			changes++
		}
		prev = m
	}
	assert.Equal(t, changes, h.s.Outstanding(), "one queued KeyChange per change")
}

func TestSamplerReadError(t *testing.T) {
	h := newHarness(t)
	h.keys.ReadError = errors.New("line gone")

	_, changed, err := h.c.sampler.Poll()
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Zero(t, h.s.Outstanding())
}

// Masks 0x00, 0x01, 0x01, 0x00 sampled at 0, 50, 120 and 4000ms: one change
// to 0x01 at 50ms, one to 0x00 at 4000ms and no long press.
func TestShortPressScenario(t *testing.T) {
	h := newHarness(t)

	h.poll()
	assert.Equal(t, PressIdle, h.c.classifier.State())
	assert.False(t, h.armed(EventLongPress))

	h.at(50 * time.Millisecond)
	h.keys.SetQuiet(gpio.KeySW1)
	h.poll()
	assert.Equal(t, PressPressed, h.c.classifier.State())
	assert.Equal(t, 5000*time.Millisecond, h.remaining(EventLongPress))
	assert.True(t, h.armed(EventKeyPoll))
	assert.Equal(t, 1, h.c.counts.Presses)

	h.at(120 * time.Millisecond)
	h.poll()
	assert.Equal(t, 1, h.c.counts.Presses)
	assert.Equal(t, 4930*time.Millisecond, h.remaining(EventLongPress))

	h.at(4000 * time.Millisecond)
	h.keys.SetQuiet(0)
	h.poll()
	assert.Equal(t, PressIdle, h.c.classifier.State())
	assert.False(t, h.armed(EventLongPress))
	assert.False(t, h.armed(EventKeyPoll))

	h.at(20 * time.Second)
	assert.Zero(t, h.c.counts.LongPresses)
	assert.Len(t, h.stack.Commissioning, 1, "only the startup request")
	assert.Empty(t, h.stack.Leaves)
}

func TestLongPressOffNetworkJoins(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	require.Equal(t, PressPressed, h.c.classifier.State())

	h.advance(4999 * time.Millisecond)
	assert.Zero(t, h.c.counts.LongPresses)

	h.advance(time.Millisecond)
	assert.Equal(t, 1, h.c.counts.LongPresses)
	assert.Equal(t, PressLongArmed, h.c.classifier.State())
	require.Len(t, h.stack.Commissioning, 2)
	assert.Equal(t, JoinMode, h.stack.Commissioning[1])
	assert.True(t, h.c.classifier.Blinking())

	h.advance(30 * time.Second)
	assert.Equal(t, 1, h.c.counts.LongPresses, "held key fires once")
	assert.Len(t, h.stack.Commissioning, 2)
}

func TestLongPressOnNetworkLeaves(t *testing.T) {
	h := newHarness(t)
	h.joined()

	h.press(gpio.KeySW1)
	assert.True(t, h.c.Attributes().OnOff)
	h.advance(5 * time.Second)

	require.Len(t, h.stack.Leaves, 1)
	assert.False(t, h.stack.Leaves[0].Rejoin)
	assert.Equal(t, [8]byte{}, h.stack.Leaves[0].ExtAddr)
	assert.Equal(t, []nv.StartupOptions{nv.StartupDefaultNetworkState}, h.store.Writes)
	assert.Equal(t, DefaultAttributes(), h.c.Attributes())
	assert.Empty(t, h.stack.Resets)
	assert.Len(t, h.stack.Commissioning, 1)
}

func TestLeaveFailureForcesReset(t *testing.T) {
	h := newHarness(t)
	h.joined()
	h.stack.LeaveError = errors.New("no route")

	h.press(gpio.KeySW1)
	h.advance(5 * time.Second)
	h.advance(30 * time.Second)

	assert.Len(t, h.stack.Leaves, 1, "leave is not retried")
	assert.Equal(t, []bool{false}, h.stack.Resets)
}

func TestReleaseCancelsLongPress(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	h.advance(4800 * time.Millisecond)
	h.release()

	assert.Equal(t, PressIdle, h.c.classifier.State())
	assert.Zero(t, h.c.sampler.Last())
	assert.False(t, h.armed(EventLongPress))
	assert.False(t, h.armed(EventKeyPoll))

	h.advance(time.Minute)
	assert.Zero(t, h.c.counts.LongPresses)
}

func TestHeldKeyChangesDoNotRearm(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	h.advance(1900 * time.Millisecond)
	h.keys.Set(gpio.KeySW1 | gpio.KeySW2)
	h.advance(100 * time.Millisecond)

	assert.Equal(t, gpio.KeySW1|gpio.KeySW2, h.c.sampler.Last())
	assert.Equal(t, 3000*time.Millisecond, h.remaining(EventLongPress))

	h.advance(3 * time.Second)
	assert.Equal(t, 1, h.c.counts.LongPresses)
	assert.Equal(t, 1, h.c.counts.Presses)
	assert.Equal(t, 1, h.c.counts.Reports)
}

func TestNoisySecondKeyDoesNotStarveLongPress(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	for i := 0; i < 5; i++ {
		h.advance(4 * time.Second)
		if i%2 == 0 {
			h.keys.Set(gpio.KeySW1 | gpio.KeySW2)
		} else {
			h.keys.Set(gpio.KeySW1)
		}
	}
	h.advance(time.Second)

	assert.Equal(t, 1, h.c.counts.LongPresses)
	assert.Equal(t, 1, h.c.counts.Presses)
	assert.Len(t, h.stack.Commissioning, 2)
}

func TestBouncingEdgesFireOneLongPress(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		h.keys.Set(gpio.KeySW1)
		h.s.RunUntilIdle()
		h.advance(10 * time.Millisecond)
	}
	h.advance(10 * time.Second)

	assert.Equal(t, 1, h.c.counts.LongPresses)
	assert.Len(t, h.stack.Commissioning, 2)
}

func TestSpuriousEdgeStopsTimers(t *testing.T) {
	h := newHarness(t)

	h.keys.Set(0)
	h.s.RunUntilIdle()
	assert.True(t, h.armed(EventKeyPoll), "edge starts polling")
	assert.False(t, h.armed(EventLongPress))

	h.advance(100 * time.Millisecond)
	assert.False(t, h.armed(EventLongPress))
	assert.False(t, h.armed(EventKeyPoll))

	h.advance(10 * time.Second)
	assert.Zero(t, h.c.counts.LongPresses)
	assert.Zero(t, h.c.counts.Presses)
}

func TestPrimaryButtonReportsAndTogglesBlink(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	assert.True(t, h.c.classifier.Blinking())
	assert.True(t, h.led.Level())
	h.release()

	h.press(gpio.KeySW1)
	assert.False(t, h.c.classifier.Blinking())
	assert.False(t, h.led.Level())
	assert.False(t, h.armed(EventLEDBlink))
	h.release()

	require.Len(t, h.stack.Reports, 2)
	first, second := h.stack.Reports[0], h.stack.Reports[1]
	assert.Equal(t, zcl.ClusterOnOff, first.Cluster)
	assert.Equal(t, []zcl.Attribute{{ID: zcl.AttrOnOff, Type: zcl.TypeBoolean, Value: true}}, first.Attrs)
	assert.Equal(t, false, second.Attrs[0].Value)
	assert.Equal(t, first.Seq+1, second.Seq)
	assert.Equal(t, zcl.CoordinatorAddress, first.Dst)
	assert.Equal(t, uint8(1), first.SrcEndpoint)
}

func TestBlinkUsesReloadTimer(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW1)
	writes := h.led.Writes()

	h.advance(2 * time.Second)
	assert.Equal(t, writes+4, h.led.Writes(), "one toggle per 500ms")
	assert.True(t, h.armed(EventLEDBlink))
}

func TestSecondaryButtonOnlyLogs(t *testing.T) {
	h := newHarness(t)

	h.press(gpio.KeySW2)
	assert.Equal(t, PressPressed, h.c.classifier.State())
	assert.Empty(t, h.stack.Reports)
	assert.False(t, h.c.classifier.Blinking())
}

func TestReportFailureCounted(t *testing.T) {
	h := newHarness(t)
	h.stack.SendReportError = errors.New("offline")

	h.press(gpio.KeySW1)
	assert.Equal(t, 1, h.c.counts.ReportErrors)
	assert.Zero(t, h.c.counts.Reports)
	assert.Equal(t, PressPressed, h.c.classifier.State())
}

func TestIdleSleepAfterRelease(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.IdleSleep = 10 * time.Second })

	h.press(gpio.KeySW2)
	h.release()
	assert.True(t, h.armed(EventSleep))

	h.advance(10 * time.Second)
	assert.Equal(t, uint64(1), h.power.Requests())
	assert.True(t, h.power.Asleep())
}

func TestPressStateString(t *testing.T) {
	assert.Equal(t, "LONG_PRESS", PressLongArmed.String())
	assert.Equal(t, "PRESS(7)", PressState(7).String())
}

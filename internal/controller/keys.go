package controller

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/switch-node/internal/gpio"
)

// Sampler compares each key read with the previous one and queues a
// KeyChange only when they differ.
type Sampler struct {
	c    *Controller
	last gpio.KeyMask
}

// Poll reads the keys. It reports whether a KeyChange was queued. If the
// message cannot be queued the previous mask is kept so the next poll
// retries.
func (p *Sampler) Poll() (gpio.KeyMask, bool, error) {
	keys, err := p.c.keys.ReadKeys()
	if err != nil {
		return p.last, false, fmt.Errorf("read keys: %w", err)
	}
	if keys == p.last {
		return keys, false, nil
	}
	if err := p.c.send(KeyChange{State: KeyStateNormal, Keys: keys}); err != nil {
		return keys, false, err
	}
	p.last = keys
	return keys, true, nil
}

// Last returns the mask seen by the previous poll.
func (p *Sampler) Last() gpio.KeyMask { return p.last }

// PressState is the classifier's gesture state.
type PressState uint8

const (
	PressIdle PressState = iota
	PressPressed
	PressLongArmed
)

func (s PressState) String() string {
	switch s {
	case PressIdle:
		return "IDLE"
	case PressPressed:
		return "PRESSED"
	case PressLongArmed:
		return "LONG_PRESS"
	default:
		return fmt.Sprintf("PRESS(%d)", uint8(s))
	}
}

// Classifier turns key changes and the long-press timer into press,
// release and long-press gestures. It owns the LED blink state.
type Classifier struct {
	c        *Controller
	state    PressState
	blinking bool
}

// State returns the current gesture state.
func (k *Classifier) State() PressState { return k.state }

// Blinking reports whether the LED blink timer is running.
func (k *Classifier) Blinking() bool { return k.blinking }

// HandleKeys applies a key change. Only a change from no keys to some keys
// arms the timers; further changes while held are ignored.
func (k *Classifier) HandleKeys(shift bool, keys gpio.KeyMask) {
	c := k.c
	if keys == 0 {
		log.Debug().Stringer("from", k.state).Msg("button released")
		c.stopTimer(EventLongPress)
		c.stopTimer(EventKeyPoll)
		k.state = PressIdle
		if c.cfg.IdleSleep > 0 {
			c.startTimer(EventSleep, c.cfg.IdleSleep)
		}
		return
	}

	if k.state != PressIdle {
		log.Debug().Stringer("keys", keys).Msg("keys changed while held")
		return
	}

	k.state = PressPressed
	c.counts.Presses++
	c.stopTimer(EventLongPress)
	c.startTimer(EventLongPress, c.cfg.LongPress)
	c.startReloadTimer(EventKeyPoll, c.cfg.KeyPoll)

	if keys&gpio.KeySW1 != 0 {
		log.Info().Bool("shift", shift).Msg("pressed button 1")
		c.attrs.OnOff = !c.attrs.OnOff
		c.reportOnOff()
		if k.blinking {
			k.stopBlink()
		} else {
			k.startBlink()
		}
	}
	if keys&gpio.KeySW2 != 0 {
		log.Info().Msg("pressed button 2")
	}
}

// LongPress runs when the long-press timer fires. A timer left over from a
// press that has already been released is ignored.
func (k *Classifier) LongPress() {
	if k.state != PressPressed {
		log.Debug().Stringer("state", k.state).Msg("stale long press ignored")
		return
	}
	k.state = PressLongArmed
	k.c.counts.LongPresses++

	if k.c.state.OnNetwork() {
		log.Info().Msg("long press: leaving network")
		k.c.coord.Leave()
		return
	}
	log.Info().Msg("long press: joining network")
	k.c.coord.Join()
	k.startBlink()
}

func (k *Classifier) startBlink() {
	k.blinking = true
	if err := k.c.led.Set(true); err != nil {
		log.Warn().Err(err).Msg("led write failed")
	}
	k.c.startReloadTimer(EventLEDBlink, k.c.cfg.BlinkPeriod)
}

// stopBlink cancels blinking and leaves the LED off.
func (k *Classifier) stopBlink() {
	if !k.blinking {
		return
	}
	k.blinking = false
	k.c.stopTimer(EventLEDBlink)
	if err := k.c.led.Set(false); err != nil {
		log.Warn().Err(err).Msg("led write failed")
	}
}

func (k *Classifier) blinkTick() {
	if !k.blinking {
		return
	}
	if err := k.c.led.Toggle(); err != nil {
		log.Warn().Err(err).Msg("led write failed")
	}
}

func (c *Controller) reportOnOff() {
	if err := c.gw.ReportOnOff(c.cfg.Endpoint, c.attrs.OnOff); err != nil {
		c.counts.ReportErrors++
		log.Warn().Err(err).Msg("on/off report failed")
		return
	}
	c.counts.Reports++
}

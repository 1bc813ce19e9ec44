//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/atomic"
)

// RealKeys reads buttons wired active-low with the internal pull-up enabled.
type RealKeys struct {
	chip *gpiocdev.Chip
	sw1  *gpiocdev.Line
	sw2  *gpiocdev.Line
	edge atomic.Pointer[func()]
}

// NewRealKeys requests both key lines as inputs with edge detection.
func NewRealKeys(p Pins) (*RealKeys, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	k := &RealKeys{chip: chip}
	handler := gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
		if fn := k.edge.Load(); fn != nil {
			(*fn)()
		}
	})

	k.sw1, err = chip.RequestLine(p.SW1, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithBothEdges, handler)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request SW1 pin %d: %w", p.SW1, err)
	}

	k.sw2, err = chip.RequestLine(p.SW2, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithBothEdges, handler)
	if err != nil {
		k.sw1.Close()
		chip.Close()
		return nil, fmt.Errorf("request SW2 pin %d: %w", p.SW2, err)
	}

	return k, nil
}

// ReadKeys returns the pressed keys. A raw low level means pressed.
func (k *RealKeys) ReadKeys() (KeyMask, error) {
	var mask KeyMask

	v, err := k.sw1.Value()
	if err != nil {
		return 0, fmt.Errorf("read SW1 pin: %w", err)
	}
	if v == 0 {
		mask |= KeySW1
	}

	v, err = k.sw2.Value()
	if err != nil {
		return 0, fmt.Errorf("read SW2 pin: %w", err)
	}
	if v == 0 {
		mask |= KeySW2
	}

	return mask, nil
}

func (k *RealKeys) OnEdge(fn func()) {
	k.edge.Store(&fn)
}

// Close releases the key lines. Edge callbacks stop before the lines close.
func (k *RealKeys) Close() error {
	k.edge.Store(nil)

	var errs []error
	for name, l := range map[string]*gpiocdev.Line{"SW1": k.sw1, "SW2": k.sw2} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if k.chip != nil {
		if err := k.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ledLine is the part of a requested output line the LED uses.
type ledLine interface {
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

// RealLED drives an active-high LED.
type RealLED struct {
	chip *gpiocdev.Chip
	line ledLine
	on   bool
}

// NewRealLED requests the LED line as an output, initially off.
func NewRealLED(p Pins) (*RealLED, error) {
	chip, err := gpiocdev.NewChip(p.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(p.LED, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", p.LED, err)
	}
	return &RealLED{chip: chip, line: line}, nil
}

func (l *RealLED) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	l.on = on
	return nil
}

func (l *RealLED) Toggle() error {
	return l.Set(!l.on)
}

// Close turns the LED off and returns the line to an input so the pin is
// left floating for the next boot.
func (l *RealLED) Close() error {
	var errs []error
	if l.line != nil {
		if err := l.Set(false); err != nil {
			errs = append(errs, err)
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure LED pin: %w", err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

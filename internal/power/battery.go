package power

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// VoltLevel classifies battery voltage.
type VoltLevel uint8

const (
	VoltNormal VoltLevel = iota
	VoltCautious
	VoltBad
)

func (v VoltLevel) String() string {
	switch v {
	case VoltNormal:
		return "NORMAL"
	case VoltCautious:
		return "CAUTIOUS"
	case VoltBad:
		return "BAD"
	default:
		return fmt.Sprintf("LEVEL(%d)", uint8(v))
	}
}

// VoltageSource reads the battery voltage in millivolts.
type VoltageSource interface {
	Millivolts() (int, error)
}

// Thresholds are the millivolt levels at or below which the battery is
// Cautious or Bad.
type Thresholds struct {
	CautiousMV int
	BadMV      int
}

// DefaultThresholds suit two alkaline AA cells.
func DefaultThresholds() Thresholds {
	return Thresholds{CautiousMV: 2400, BadMV: 2200}
}

// Classify maps a voltage to a level.
func (t Thresholds) Classify(mv int) VoltLevel {
	switch {
	case mv <= t.BadMV:
		return VoltBad
	case mv <= t.CautiousMV:
		return VoltCautious
	default:
		return VoltNormal
	}
}

// Monitor polls a VoltageSource and reports level changes.
type Monitor struct {
	src    VoltageSource
	th     Thresholds
	notify func(VoltLevel)

	mu    sync.Mutex
	level VoltLevel
	mv    int
}

// NewMonitor creates a Monitor starting at VoltNormal. notify runs on the
// polling goroutine for every change of level.
func NewMonitor(src VoltageSource, th Thresholds, notify func(VoltLevel)) *Monitor {
	return &Monitor{src: src, th: th, notify: notify}
}

// Poll reads the source once. It returns the current level and whether it
// changed.
func (m *Monitor) Poll() (VoltLevel, bool, error) {
	mv, err := m.src.Millivolts()
	if err != nil {
		return m.Level(), false, fmt.Errorf("read battery voltage: %w", err)
	}

	lvl := m.th.Classify(mv)
	m.mu.Lock()
	changed := lvl != m.level
	m.level = lvl
	m.mv = mv
	m.mu.Unlock()

	if changed {
		log.Info().Int("mv", mv).Stringer("level", lvl).Msg("power: battery level changed")
		if m.notify != nil {
			m.notify(lvl)
		}
	}
	return lvl, changed, nil
}

// Run polls on every tick until ctx is done. Read errors are logged.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, _, err := m.Poll(); err != nil {
				log.Warn().Err(err).Msg("power: battery poll failed")
			}
		}
	}
}

// Level returns the last classified level.
func (m *Monitor) Level() VoltLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Millivolts returns the last reading.
func (m *Monitor) Millivolts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mv
}

// SysfsSource reads a power_supply voltage_now file, which holds microvolts.
type SysfsSource struct {
	Path string
}

// DefaultSysfsPath is the usual battery voltage attribute.
const DefaultSysfsPath = "/sys/class/power_supply/battery/voltage_now"

func (s SysfsSource) Millivolts() (int, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, err
	}
	uv, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return uv / 1000, nil
}

// FakeSource returns a settable voltage.
type FakeSource struct {
	mu  sync.Mutex
	MV  int
	Err error
}

func (f *FakeSource) Set(mv int) {
	f.mu.Lock()
	f.MV = mv
	f.mu.Unlock()
}

func (f *FakeSource) Millivolts() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MV, f.Err
}

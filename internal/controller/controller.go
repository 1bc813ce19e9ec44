// Package controller is the application task of the switch: it turns key
// edges, battery warnings and network notifications into LED feedback,
// on/off reports and commissioning requests.
package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/nv"
	"github.com/sweeney/switch-node/internal/nwk"
	"github.com/sweeney/switch-node/internal/power"
	"github.com/sweeney/switch-node/internal/sched"
	"github.com/sweeney/switch-node/internal/status"
	"github.com/sweeney/switch-node/internal/zcl"
)

// Task events, in dispatch priority order.
const (
	EventRejoin    sched.Event = 0x0001
	EventLEDBlink  sched.Event = 0x0002
	EventSleep     sched.Event = 0x0004
	EventLongPress sched.Event = 0x0008
	EventKeyPoll   sched.Event = 0x0010
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("controller: already started")

// DeviceType is the role this build joins the network as.
type DeviceType uint8

const (
	EndDevice DeviceType = iota
	Router
)

func (d DeviceType) String() string {
	if d == Router {
		return "ROUTER"
	}
	return "END_DEVICE"
}

// Config holds controller timings and identity.
type Config struct {
	DeviceType DeviceType
	Endpoint   uint8
	Endpoints  []nwk.Endpoint // declared at registration; derived from Endpoint when empty

	LongPress   time.Duration
	KeyPoll     time.Duration
	BlinkPeriod time.Duration
	SleepFor    time.Duration
	RejoinDelay time.Duration

	// IdleSleep arms the go-to-sleep event this long after the keys are
	// released. Zero disables it.
	IdleSleep time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		DeviceType:  EndDevice,
		Endpoint:    1,
		LongPress:   5000 * time.Millisecond,
		KeyPoll:     100 * time.Millisecond,
		BlinkPeriod: 500 * time.Millisecond,
		SleepFor:    10 * time.Second,
		RejoinDelay: 10 * time.Second,
	}
}

// DefaultEndpoints describes an on/off switch on endpoint ep.
func DefaultEndpoints(ep uint8) []nwk.Endpoint {
	return []nwk.Endpoint{{
		ID:          ep,
		ProfileID:   0x0104, // home automation
		DeviceID:    0x0000, // on/off switch
		InClusters:  []uint16{zcl.ClusterBasic, zcl.ClusterPowerConfig, zcl.ClusterIdentify},
		OutClusters: []uint16{zcl.ClusterOnOff},
	}}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Scheduler *sched.Scheduler
	Stack     nwk.Stack
	Keys      gpio.Keys
	LED       gpio.LED
	Sleeper   power.Sleeper
	Store     nv.Store

	// Gateway options, e.g. a custom destination.
	GatewayOptions []zcl.GatewayOption

	// Observer, if set, receives the device state after every invocation.
	Observer Observer
}

// Observer receives controller state for display.
type Observer interface {
	UpdateDevice(status.Device)
}

// Controller is the context shared by every handler of the task. All of its
// state is touched only from the scheduler goroutine, except where noted.
type Controller struct {
	cfg      Config
	s        *sched.Scheduler
	stack    nwk.Stack
	keys     gpio.Keys
	led      gpio.LED
	sleeper  power.Sleeper
	store    nv.Store
	gw       *zcl.Gateway
	observer Observer

	task    sched.TaskID
	irq     *sched.IRQ
	started bool

	state      nwk.State
	attrs      Attributes
	sampler    Sampler
	classifier Classifier
	coord      Coordinator
	battery    power.VoltLevel
	counts     status.Counts
	lastStatus *status.Commissioning

	// cancelled collects timers stopped during the current invocation.
	cancelled sched.Event
}

// New creates a Controller and registers its task with the scheduler.
func New(cfg Config, d Deps) *Controller {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints(cfg.Endpoint)
	}
	c := &Controller{
		cfg:      cfg,
		s:        d.Scheduler,
		stack:    d.Stack,
		keys:     d.Keys,
		led:      d.LED,
		sleeper:  d.Sleeper,
		store:    d.Store,
		gw:       zcl.NewGateway(d.Stack, d.GatewayOptions...),
		observer: d.Observer,
		state:    nwk.StateHold,
		attrs:    DefaultAttributes(),
	}
	c.sampler = Sampler{c: c}
	c.classifier = Classifier{c: c}
	c.coord = Coordinator{c: c}
	c.task = c.s.Register("switch", c.HandleEvents)
	return c
}

// Task returns the controller's task identity.
func (c *Controller) Task() sched.TaskID { return c.task }

// Start runs the registration sequence: key interrupts, endpoint list and
// notification receiver, then initial commissioning. It may be called once.
func (c *Controller) Start() error {
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	c.irq = c.s.NewIRQ("keys", c.keyInterrupt)
	c.keys.OnEdge(func() { c.irq.Raise() })

	if err := c.stack.Register(c.cfg.Endpoints, notifier{c}); err != nil {
		return fmt.Errorf("register endpoints: %w", err)
	}

	mode := nwk.ModeFormation | nwk.ModeSteering | nwk.ModeFindingBinding
	if err := c.stack.StartCommissioning(mode); err != nil {
		log.Error().Err(err).Stringer("mode", mode).Msg("initial commissioning request failed")
	}
	log.Info().Uint8("endpoint", c.cfg.Endpoint).Stringer("type", c.cfg.DeviceType).Msg("controller started")
	c.publish()
	return nil
}

// keyInterrupt runs for every key edge. It only starts key polling; the
// long-press timer belongs to the classifier, which arms it once per press.
func (c *Controller) keyInterrupt(a sched.Armer) {
	if err := a.StartReloadTimer(c.task, EventKeyPoll, c.cfg.KeyPoll); err != nil {
		log.Error().Err(err).Msg("arm key poll")
	}
}

// HandleEvents is the task's event loop. Queued messages are drained first
// and returned alone; otherwise exactly one event bit is handled, highest
// priority first, and the rest are returned for the next invocation.
func (c *Controller) HandleEvents(task sched.TaskID, events sched.Event) sched.Event {
	c.cancelled = 0
	defer c.publish()

	if events&sched.SysEventMsg != 0 {
		for {
			env, ok := c.s.Receive(task)
			if !ok {
				break
			}
			c.dispatch(env.Msg)
			if err := c.s.Release(env); err != nil {
				log.Error().Err(err).Msg("release message")
			}
		}
		return (events ^ sched.SysEventMsg) &^ c.cancelled
	}

	var handled sched.Event
	switch {
	case events&EventRejoin != 0:
		handled = EventRejoin
		if c.cfg.DeviceType == EndDevice {
			c.coord.Recover()
		}
	case events&EventLEDBlink != 0:
		handled = EventLEDBlink
		c.classifier.blinkTick()
	case events&EventSleep != 0:
		handled = EventSleep
		log.Info().Dur("duration", c.cfg.SleepFor).Msg("going to sleep")
		c.sleeper.RequestSleep(c.cfg.SleepFor)
	case events&EventLongPress != 0:
		handled = EventLongPress
		c.classifier.LongPress()
	case events&EventKeyPoll != 0:
		handled = EventKeyPoll
		c.pollKeys()
	default:
		log.Debug().Uint16("events", uint16(events)).Msg("discarding unknown events")
		return 0
	}
	return (events ^ handled) &^ c.cancelled
}

// dispatch routes one message by kind.
func (c *Controller) dispatch(msg any) {
	switch m := msg.(type) {
	case IncomingCommand:
		c.handleCommand(m.Command)
	case KeyChange:
		c.classifier.HandleKeys(m.State == KeyStateShift, m.Keys)
	case StateChange:
		c.setState(m.State)
	case CommissioningStatus:
		c.coord.HandleStatus(m.CommissioningStatus)
	case BindNotification:
		log.Info().
			Uint16("cluster", m.ClusterID).
			Uint16("dst", m.DstAddr).
			Uint8("dst_ep", m.DstEndpoint).
			Msg("bind notification")
	case VoltageWarning:
		c.handleVoltage(m.Level)
	default:
		log.Debug().Type("kind", msg).Msg("discarding unknown message")
	}
}

func (c *Controller) setState(s nwk.State) {
	if s == c.state {
		return
	}
	log.Info().Stringer("from", c.state).Stringer("to", s).Msg("network state changed")
	c.state = s
	if s.OnNetwork() {
		c.classifier.stopBlink()
	}
}

func (c *Controller) pollKeys() {
	keys, changed, err := c.sampler.Poll()
	if err != nil {
		log.Warn().Err(err).Msg("key read error")
		return
	}
	if !changed && keys == 0 && c.classifier.State() == PressIdle {
		// edge without a press: nothing to wait for
		c.stopTimer(EventKeyPoll)
	}
}

// Battery alarm state bits of the power configuration cluster.
const (
	AlarmVoltageMin uint32 = 0x00000001
	AlarmVoltageLow uint32 = 0x00000002
)

func (c *Controller) handleVoltage(level power.VoltLevel) {
	prev := c.battery
	c.battery = level
	log.Warn().Stringer("from", prev).Stringer("to", level).Msg("battery level")

	switch level {
	case power.VoltCautious:
		c.attrs.BatteryAlarm = AlarmVoltageLow
		if err := c.gw.ReportBatteryAlarm(c.cfg.Endpoint, c.attrs.BatteryAlarm); err != nil {
			log.Warn().Err(err).Msg("battery alarm report failed")
		}
		c.classifier.startBlink()
	case power.VoltBad:
		c.attrs.BatteryAlarm = AlarmVoltageMin
		if err := c.s.SetEvent(c.task, EventSleep); err != nil {
			log.Error().Err(err).Msg("set sleep event")
		}
	default:
		c.attrs.BatteryAlarm = 0
	}
}

func (c *Controller) handleCommand(cmd nwk.Command) {
	c.counts.Commands++
	l := log.With().
		Uint8("endpoint", cmd.Endpoint).
		Uint16("cluster", cmd.ClusterID).
		Uint8("command", cmd.CommandID).
		Uint8("seq", cmd.Seq).
		Logger()

	if cmd.ClusterScope {
		if cmd.ClusterID == zcl.ClusterBasic && cmd.CommandID == zcl.CmdBasicResetFactoryDefaults {
			l.Info().Msg("reset to factory defaults")
			c.attrs.Reset()
			return
		}
		l.Debug().Msg("cluster command ignored")
		return
	}

	switch cmd.CommandID {
	case zcl.CmdReadRsp, zcl.CmdWriteRsp, zcl.CmdDefaultRsp,
		zcl.CmdConfigReport, zcl.CmdConfigReportRsp,
		zcl.CmdReadReportCfg, zcl.CmdReadReportCfgRsp, zcl.CmdReport,
		zcl.CmdDiscoverAttrsRsp, zcl.CmdDiscoverAttrsExtRsp,
		zcl.CmdDiscoverCmdsReceivedRsp, zcl.CmdDiscoverCmdsGenRsp:
		l.Debug().Msg("foundation command acknowledged")
	default:
		l.Debug().Msg("foundation command ignored")
	}
}

func (c *Controller) startTimer(ev sched.Event, d time.Duration) {
	if err := c.s.StartTimer(c.task, ev, d); err != nil {
		log.Error().Err(err).Uint16("event", uint16(ev)).Msg("start timer")
	}
}

func (c *Controller) startReloadTimer(ev sched.Event, d time.Duration) {
	if err := c.s.StartReloadTimer(c.task, ev, d); err != nil {
		log.Error().Err(err).Uint16("event", uint16(ev)).Msg("start reload timer")
	}
}

// stopTimer cancels a timer and any event it already raised, including one
// waiting in the set this invocation will return.
func (c *Controller) stopTimer(ev sched.Event) {
	c.s.StopTimer(c.task, ev)
	if err := c.s.ClearEvent(c.task, ev); err != nil {
		log.Error().Err(err).Uint16("event", uint16(ev)).Msg("clear event")
	}
	c.cancelled |= ev
}

func (c *Controller) send(m Message) error {
	if err := c.s.Send(c.task, m); err != nil {
		log.Warn().Err(err).Type("kind", m).Msg("dropping message")
		return err
	}
	return nil
}

// Device returns the state shown on the status page.
func (c *Controller) Device() status.Device {
	return status.Device{
		NetworkState:  c.state.String(),
		Keys:          uint8(c.sampler.Last()),
		Press:         c.classifier.State().String(),
		Blinking:      c.classifier.Blinking(),
		OnOff:         c.attrs.OnOff,
		NextSeq:       c.gw.NextSeq(),
		Battery:       c.battery.String(),
		Commissioning: c.lastStatus,
		Counts:        c.counts,
	}
}

func (c *Controller) publish() {
	if c.observer != nil {
		c.observer.UpdateDevice(c.Device())
	}
}

// State returns the last network state reported by the stack.
func (c *Controller) State() nwk.State { return c.state }

// Attributes returns a copy of the cached attributes.
func (c *Controller) Attributes() Attributes { return c.attrs }

// notifier turns stack notifications into task messages. Its methods run on
// the stack's goroutine and only touch the scheduler queue.
type notifier struct{ c *Controller }

func (n notifier) CommissioningStatus(s nwk.CommissioningStatus) {
	_ = n.c.send(CommissioningStatus{s})
}

func (n notifier) StateChange(s nwk.State) { _ = n.c.send(StateChange{State: s}) }

func (n notifier) Bind(b nwk.BindNotification) { _ = n.c.send(BindNotification{b}) }

func (n notifier) Command(cmd nwk.Command) { _ = n.c.send(IncomingCommand{cmd}) }

// VoltageChanged posts a battery warning to the task. Safe to call from any
// goroutine.
func (c *Controller) VoltageChanged(level power.VoltLevel) {
	_ = c.send(VoltageWarning{Level: level})
}

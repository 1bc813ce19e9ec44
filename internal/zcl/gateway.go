package zcl

import (
	"errors"
	"fmt"
)

// ErrNoFrame is returned when no report frame can be allocated. Nothing is
// sent and the sequence number is not consumed.
var ErrNoFrame = errors.New("zcl: no report frame available")

// DefaultFramePool is the number of report frames a Gateway can have in
// flight at once.
const DefaultFramePool = 2

// Sender submits a report to the network. The report is only valid for the
// duration of the call.
type Sender interface {
	SendReport(r *Report) error
}

// framePool is a fixed set of reusable report frames.
type framePool struct {
	free chan *Report
}

func newFramePool(n int) *framePool {
	p := &framePool{free: make(chan *Report, n)}
	for i := 0; i < n; i++ {
		p.free <- &Report{Attrs: make([]Attribute, 0, 1)}
	}
	return p
}

func (p *framePool) take() *Report {
	select {
	case r := <-p.free:
		return r
	default:
		return nil
	}
}

func (p *framePool) give(r *Report) {
	attrs := r.Attrs[:0]
	*r = Report{Attrs: attrs}
	select {
	case p.free <- r:
	default:
	}
}

// Stats counts gateway activity.
type Stats struct {
	Sent    int
	Failed  int
	NoFrame int
	LastSeq uint8
	AnySent bool
}

// Gateway packages device state into outbound reports. Not safe for
// concurrent use; the controller calls it from its task only.
type Gateway struct {
	sender Sender
	dst    Address
	frames *framePool
	seq    uint8
	stats  Stats
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithDestination overrides the default coordinator destination.
func WithDestination(a Address) GatewayOption {
	return func(g *Gateway) { g.dst = a }
}

// WithFramePool sets how many frames may be allocated at once.
func WithFramePool(n int) GatewayOption {
	return func(g *Gateway) {
		if n >= 0 {
			g.frames = newFramePool(n)
		}
	}
}

// WithInitialSeq sets the next sequence number.
func WithInitialSeq(seq uint8) GatewayOption {
	return func(g *Gateway) { g.seq = seq }
}

// NewGateway creates a Gateway that submits reports through sender.
func NewGateway(sender Sender, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		sender: sender,
		dst:    CoordinatorAddress,
		frames: newFramePool(DefaultFramePool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReportOnOff sends the on/off attribute of endpoint. Every call sends a new
// report with the next sequence number.
func (g *Gateway) ReportOnOff(endpoint uint8, state bool) error {
	return g.report(endpoint, ClusterOnOff, Attribute{ID: AttrOnOff, Type: TypeBoolean, Value: state})
}

// ReportBatteryAlarm sends the power configuration alarm state bitmap.
func (g *Gateway) ReportBatteryAlarm(endpoint uint8, alarms uint32) error {
	return g.report(endpoint, ClusterPowerConfig, Attribute{ID: AttrBatteryAlarmState, Type: TypeBitmap32, Value: alarms})
}

func (g *Gateway) report(endpoint uint8, cluster uint16, attr Attribute) error {
	r := g.frames.take()
	if r == nil {
		g.stats.NoFrame++
		return ErrNoFrame
	}
	defer g.frames.give(r)

	r.SrcEndpoint = endpoint
	r.Dst = g.dst
	r.Cluster = cluster
	r.Direction = ClientToServer
	r.Attrs = append(r.Attrs, attr)
	r.Seq = g.seq
	g.seq++

	g.stats.LastSeq = r.Seq
	g.stats.AnySent = true
	if err := g.sender.SendReport(r); err != nil {
		g.stats.Failed++
		return fmt.Errorf("send report seq %d: %w", r.Seq, err)
	}
	g.stats.Sent++
	return nil
}

// NextSeq returns the sequence number the next report will carry.
func (g *Gateway) NextSeq() uint8 { return g.seq }

// Stats returns a copy of the gateway counters.
func (g *Gateway) Stats() Stats { return g.stats }

// FreeFrames returns how many frames are available for allocation.
func (g *Gateway) FreeFrames() int { return len(g.frames.free) }

package nwk

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/switch-node/internal/mqtt"
	"github.com/sweeney/switch-node/internal/zcl"
)

// Topic suffixes under the device prefix.
const (
	TopicCommissioningRequest = "request/commissioning"
	TopicLeaveRequest         = "request/leave"
	TopicRecoverRequest       = "request/recover"
	TopicResetRequest         = "request/reset"
	TopicEndpoints            = "endpoints"
	TopicReport               = "report"

	TopicNotifyCommissioning = "notify/commissioning"
	TopicNotifyState         = "notify/state"
	TopicNotifyBind          = "notify/bind"
	TopicNotifyCommand       = "notify/command"
)

type commissioningRequest struct {
	Mode  uint8  `json:"mode"`
	Modes string `json:"modes"`
}

type leaveRequest struct {
	ExtAddr        string `json:"ext_addr,omitempty"`
	RemoveChildren bool   `json:"remove_children"`
	Rejoin         bool   `json:"rejoin"`
	Silent         bool   `json:"silent"`
}

type resetRequest struct {
	Rejoin bool `json:"rejoin"`
}

type commissioningNotify struct {
	Stage     uint8 `json:"stage"`
	Status    uint8 `json:"status"`
	Remaining uint8 `json:"remaining"`
}

type stateNotify struct {
	State string `json:"state"`
}

type bindNotify struct {
	Cluster     uint16 `json:"cluster"`
	DstAddr     uint16 `json:"dst_addr"`
	DstEndpoint uint8  `json:"dst_endpoint"`
}

type commandNotify struct {
	Endpoint        uint8  `json:"endpoint"`
	Cluster         uint16 `json:"cluster"`
	Command         uint8  `json:"command"`
	ClusterSpecific bool   `json:"cluster_specific"`
	SrcAddr         uint16 `json:"src_addr"`
	Seq             uint8  `json:"seq"`
	Payload         []byte `json:"payload,omitempty"`
}

// Bridge is a Stack that talks to a radio bridge over MQTT. Requests are
// JSON documents published under prefix/request; reports are CBOR frames on
// prefix/report; notifications arrive on prefix/notify/*.
type Bridge struct {
	client  mqtt.Client
	prefix  string
	onReset func(rejoin bool)

	mu       sync.Mutex
	notifier Notifier
}

// NewBridge creates a Bridge. onReset, if non-nil, runs after a reset
// request has been published so the process can restart itself.
func NewBridge(client mqtt.Client, prefix string, onReset func(rejoin bool)) *Bridge {
	return &Bridge{client: client, prefix: prefix, onReset: onReset}
}

func (b *Bridge) topic(suffix string) string {
	return b.prefix + "/" + suffix
}

// Register publishes the endpoint list (retained) and subscribes to
// notifications.
func (b *Bridge) Register(endpoints []Endpoint, n Notifier) error {
	b.mu.Lock()
	b.notifier = n
	b.mu.Unlock()

	if err := b.client.Subscribe(b.topic("notify/+"), 1, b.handle); err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	if err := b.publishJSON(TopicEndpoints, endpoints, true); err != nil {
		return fmt.Errorf("publish endpoints: %w", err)
	}
	return nil
}

func (b *Bridge) StartCommissioning(m Mode) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.publishJSON(TopicCommissioningRequest, commissioningRequest{Mode: uint8(m), Modes: m.String()}, false)
}

func (b *Bridge) Leave(req LeaveRequest) error {
	if err := b.ready(); err != nil {
		return err
	}
	wire := leaveRequest{
		RemoveChildren: req.RemoveChildren,
		Rejoin:         req.Rejoin,
		Silent:         req.Silent,
	}
	if req.ExtAddr != ([8]byte{}) {
		wire.ExtAddr = hex.EncodeToString(req.ExtAddr[:])
	}
	return b.publishJSON(TopicLeaveRequest, wire, false)
}

func (b *Bridge) AttemptRecovery() error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.publishJSON(TopicRecoverRequest, struct{}{}, false)
}

// ForceReset publishes a reset request and hands over to the reset hook.
// Publishing errors are logged; a reset always proceeds.
func (b *Bridge) ForceReset(rejoin bool) {
	if err := b.publishJSON(TopicResetRequest, resetRequest{Rejoin: rejoin}, false); err != nil {
		log.Error().Err(err).Msg("nwk: reset request not delivered")
	}
	if b.onReset != nil {
		b.onReset(rejoin)
	}
}

// SendReport encodes r before returning, so r may be reused afterwards.
func (b *Bridge) SendReport(r *zcl.Report) error {
	if err := b.ready(); err != nil {
		return err
	}
	frame, err := zcl.EncodeReport(r)
	if err != nil {
		return err
	}
	return b.client.Publish(mqtt.Message{Topic: b.topic(TopicReport), Payload: frame, QoS: 1})
}

func (b *Bridge) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notifier == nil {
		return ErrNotRegistered
	}
	return nil
}

func (b *Bridge) publishJSON(suffix string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", suffix, err)
	}
	return b.client.Publish(mqtt.Message{Topic: b.topic(suffix), Payload: payload, QoS: 1, Retained: retained})
}

// handle decodes one notification. Malformed payloads are logged and dropped.
func (b *Bridge) handle(topic string, payload []byte) {
	b.mu.Lock()
	n := b.notifier
	b.mu.Unlock()
	if n == nil {
		return
	}

	suffix := strings.TrimPrefix(topic, b.prefix+"/")
	if err := dispatch(n, suffix, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("nwk: dropping notification")
	}
}

func dispatch(n Notifier, suffix string, payload []byte) error {
	switch suffix {
	case TopicNotifyCommissioning:
		var w commissioningNotify
		if err := json.Unmarshal(payload, &w); err != nil {
			return err
		}
		n.CommissioningStatus(CommissioningStatus{
			Stage:     Stage(w.Stage),
			Status:    Status(w.Status),
			Remaining: Mode(w.Remaining),
		})
	case TopicNotifyState:
		var w stateNotify
		if err := json.Unmarshal(payload, &w); err != nil {
			return err
		}
		s, err := ParseState(w.State)
		if err != nil {
			return err
		}
		n.StateChange(s)
	case TopicNotifyBind:
		var w bindNotify
		if err := json.Unmarshal(payload, &w); err != nil {
			return err
		}
		n.Bind(BindNotification{ClusterID: w.Cluster, DstAddr: w.DstAddr, DstEndpoint: w.DstEndpoint})
	case TopicNotifyCommand:
		var w commandNotify
		if err := json.Unmarshal(payload, &w); err != nil {
			return err
		}
		n.Command(Command{
			Endpoint:     w.Endpoint,
			ClusterID:    w.Cluster,
			CommandID:    w.Command,
			ClusterScope: w.ClusterSpecific,
			SrcAddr:      w.SrcAddr,
			Seq:          w.Seq,
			Payload:      w.Payload,
		})
	default:
		return fmt.Errorf("unknown notification %q", suffix)
	}
	return nil
}

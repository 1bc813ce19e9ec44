package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	NetworkState  string             `json:"network_state"`
	OnNetwork     bool               `json:"on_network"`
	Keys          string             `json:"keys"`
	Press         string             `json:"press"`
	Blinking      bool               `json:"blinking"`
	OnOff         bool               `json:"on_off"`
	NextSeq       uint8              `json:"next_seq"`
	Ready         bool               `json:"ready"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Power         PowerJSON          `json:"power"`
	Commissioning *CommissioningJSON `json:"commissioning,omitempty"`
	Counts        CountsJSON         `json:"counts"`
	Network       *NetworkJSON       `json:"network,omitempty"`
	Config        ConfigJSON         `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix"`
}

// PowerJSON reports battery and sleep state.
type PowerJSON struct {
	Battery   string `json:"battery"`
	BatteryMV int    `json:"battery_mv"`
	Asleep    bool   `json:"asleep"`
}

// CommissioningJSON is the last commissioning notification.
type CommissioningJSON struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Remaining string `json:"remaining"`
	At        string `json:"at"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	Presses      int `json:"presses"`
	LongPresses  int `json:"long_presses"`
	Reports      int `json:"reports"`
	ReportErrors int `json:"report_errors"`
	Rejoins      int `json:"rejoins"`
	Leaves       int `json:"leaves"`
	Commands     int `json:"commands"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID    string `json:"device_id"`
	DeviceType  string `json:"device_type"`
	Endpoint    uint8  `json:"endpoint"`
	LongPressMs int64  `json:"long_press_ms"`
	KeyPollMs   int64  `json:"key_poll_ms"`
	RejoinMs    int64  `json:"rejoin_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	WSBroker    string `json:"ws_broker,omitempty"`
}

// OnNetwork reports whether the device state names a joined role.
func (d Device) OnNetwork() bool {
	switch d.NetworkState {
	case "END_DEVICE", "ROUTER", "COORDINATOR":
		return true
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Device
	inner := StatusInner{
		NetworkState:  orUnknown(d.NetworkState),
		OnNetwork:     d.OnNetwork(),
		Keys:          fmt.Sprintf("0x%02x", d.Keys),
		Press:         orUnknown(d.Press),
		Blinking:      d.Blinking,
		OnOff:         d.OnOff,
		NextSeq:       d.NextSeq,
		Ready:         snap.Started,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker, Prefix: snap.Config.Prefix},
		Power: PowerJSON{
			Battery:   orUnknown(d.Battery),
			BatteryMV: snap.BatteryMV,
			Asleep:    snap.Asleep,
		},
		Counts: CountsJSON{
			Presses:      d.Counts.Presses,
			LongPresses:  d.Counts.LongPresses,
			Reports:      d.Counts.Reports,
			ReportErrors: d.Counts.ReportErrors,
			Rejoins:      d.Counts.Rejoins,
			Leaves:       d.Counts.Leaves,
			Commands:     d.Counts.Commands,
		},
		Config: ConfigJSON{
			DeviceID:    snap.Config.DeviceID,
			DeviceType:  snap.Config.DeviceType,
			Endpoint:    snap.Config.Endpoint,
			LongPressMs: snap.Config.LongPressMs,
			KeyPollMs:   snap.Config.KeyPollMs,
			RejoinMs:    snap.Config.RejoinMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			WSBroker:    snap.Config.WSBroker,
		},
	}
	if c := d.Commissioning; c != nil {
		inner.Commissioning = &CommissioningJSON{
			Stage:     c.Stage,
			Status:    c.Status,
			Remaining: c.Remaining,
			At:        c.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

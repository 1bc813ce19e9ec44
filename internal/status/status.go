// Package status provides a thread-safe status tracker for the switch-node daemon.
// It is read by HTTP handlers and MQTT heartbeats.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains host network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID    string
	DeviceType  string
	Endpoint    uint8
	LongPressMs int64
	KeyPollMs   int64
	RejoinMs    int64
	HeartbeatMs int64
	Broker      string
	Prefix      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Commissioning is the last commissioning notification seen.
type Commissioning struct {
	Stage     string
	Status    string
	Remaining string
	At        time.Time
}

// Counts are cumulative controller activity counters.
type Counts struct {
	Presses      int
	LongPresses  int
	Reports      int
	ReportErrors int
	Rejoins      int
	Leaves       int
	Commands     int
}

// Device is the controller's state as last published by its task.
type Device struct {
	NetworkState  string
	Keys          uint8
	Press         string
	Blinking      bool
	OnOff         bool
	NextSeq       uint8
	Battery       string
	Commissioning *Commissioning
	Counts        Counts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Device        Device
	Started       bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Asleep        bool
	BatteryMV     int
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateDevice replaces the controller state. Called from the scheduler
// goroutine after every task invocation.
func (t *Tracker) UpdateDevice(d Device) {
	if d.Commissioning != nil {
		c := *d.Commissioning
		d.Commissioning = &c
	}
	t.mu.Lock()
	t.snap.Device = d
	t.snap.Started = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetPower records the sleep window and last battery reading.
func (t *Tracker) SetPower(asleep bool, mv int) {
	t.mu.Lock()
	t.snap.Asleep = asleep
	t.snap.BatteryMV = mv
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

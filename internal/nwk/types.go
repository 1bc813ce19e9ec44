// Package nwk describes the network and commissioning stack the controller
// talks to: the requests it can make, the notifications it receives, and an
// adapter that carries both over MQTT to a radio bridge.
package nwk

import (
	"fmt"
	"strings"
)

// Mode is a set of commissioning mode flags. A request names the stages to
// run; a notification reports the stages still remaining.
type Mode uint8

const (
	ModeInitiatorTL    Mode = 0x01
	ModeSteering       Mode = 0x02
	ModeFormation      Mode = 0x04
	ModeFindingBinding Mode = 0x08
	ModeInitialization Mode = 0x10
	ModeParentLost     Mode = 0x20
)

var modeNames = []struct {
	m    Mode
	name string
}{
	{ModeInitiatorTL, "INITIATOR_TL"},
	{ModeSteering, "STEERING"},
	{ModeFormation, "FORMATION"},
	{ModeFindingBinding, "FINDING_BINDING"},
	{ModeInitialization, "INITIALIZATION"},
	{ModeParentLost, "PARENT_LOST"},
}

func (m Mode) String() string {
	if m == 0 {
		return "NONE"
	}
	var parts []string
	rest := m
	for _, n := range modeNames {
		if m&n.m != 0 {
			parts = append(parts, n.name)
			rest &^= n.m
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// Stage identifies which commissioning stage a notification is about.
type Stage uint8

const (
	StageInitialization Stage = iota
	StageSteering
	StageFormation
	StageFindingBinding
	StageTouchlink
	StageParentLost
)

func (s Stage) String() string {
	switch s {
	case StageInitialization:
		return "INITIALIZATION"
	case StageSteering:
		return "STEERING"
	case StageFormation:
		return "FORMATION"
	case StageFindingBinding:
		return "FINDING_BINDING"
	case StageTouchlink:
		return "TOUCHLINK"
	case StageParentLost:
		return "PARENT_LOST"
	default:
		return fmt.Sprintf("STAGE(%d)", uint8(s))
	}
}

// Status is the outcome carried by a commissioning notification.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusInProgress
	StatusNoNetwork
	StatusTLTargetFailure
	StatusTLNotAACapable
	StatusTLNoScanResponse
	StatusTLNotPermitted
	StatusTCLKExFailure
	StatusFormationFailure
	StatusFBTargetInProgress
	StatusFBInitiatorInProgress
	StatusFBNoIdentifyQueryResponse
	StatusFBBindingTableFull
	StatusNetworkRestored
	StatusFailure
)

var statusNames = [...]string{
	"SUCCESS",
	"IN_PROGRESS",
	"NO_NETWORK",
	"TL_TARGET_FAILURE",
	"TL_NOT_AA_CAPABLE",
	"TL_NO_SCAN_RESPONSE",
	"TL_NOT_PERMITTED",
	"TCLK_EX_FAILURE",
	"FORMATION_FAILURE",
	"FB_TARGET_IN_PROGRESS",
	"FB_INITIATOR_IN_PROGRESS",
	"FB_NO_IDENTIFY_QUERY_RESPONSE",
	"FB_BINDING_TABLE_FULL",
	"NETWORK_RESTORED",
	"FAILURE",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

// CommissioningStatus is one commissioning notification.
type CommissioningStatus struct {
	Stage     Stage
	Status    Status
	Remaining Mode
}

// State is the device's network state as reported by the stack.
type State uint8

const (
	StateHold State = iota
	StateInitializing
	StateDiscovering
	StateJoining
	StateRejoining
	StateUnauthenticated
	StateEndDevice
	StateRouter
	StateCoordinatorStarting
	StateCoordinator
	StateOrphan
)

var stateNames = [...]string{
	"HOLD",
	"INITIALIZING",
	"DISCOVERING",
	"JOINING",
	"REJOINING",
	"UNAUTHENTICATED",
	"END_DEVICE",
	"ROUTER",
	"COORDINATOR_STARTING",
	"COORDINATOR",
	"ORPHAN",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// OnNetwork reports whether the state means the device is joined.
func (s State) OnNetwork() bool {
	switch s {
	case StateEndDevice, StateRouter, StateCoordinator:
		return true
	}
	return false
}

// ParseState maps a state name back to a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown network state %q", name)
}

// LeaveRequest asks the stack to leave the current network.
type LeaveRequest struct {
	ExtAddr        [8]byte // zero means this device
	RemoveChildren bool
	Rejoin         bool
	Silent         bool
}

// Endpoint describes one application endpoint declared at registration.
type Endpoint struct {
	ID          uint8    `json:"endpoint"`
	ProfileID   uint16   `json:"profile_id"`
	DeviceID    uint16   `json:"device_id"`
	InClusters  []uint16 `json:"in_clusters"`
	OutClusters []uint16 `json:"out_clusters"`
}

// BindNotification reports a new binding created during finding and binding.
type BindNotification struct {
	ClusterID   uint16
	DstAddr     uint16
	DstEndpoint uint8
}

// Command is an inbound application command addressed to one of our
// endpoints.
type Command struct {
	Endpoint     uint8
	ClusterID    uint16
	CommandID    uint8
	ClusterScope bool // true for cluster-specific, false for foundation
	SrcAddr      uint16
	Seq          uint8
	Payload      []byte
}

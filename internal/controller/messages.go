package controller

import (
	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/nwk"
	"github.com/sweeney/switch-node/internal/power"
)

// Message is anything queued to the controller task. The set of kinds is
// closed; the dispatcher discards anything else.
type Message interface {
	message()
}

// KeyState qualifies a key change.
type KeyState uint8

const (
	KeyStateNormal KeyState = iota
	KeyStateShift
)

// KeyChange reports a new key mask from the sampler.
type KeyChange struct {
	State KeyState
	Keys  gpio.KeyMask
}

// StateChange reports a new network state.
type StateChange struct {
	State nwk.State
}

// IncomingCommand carries an application command addressed to us.
type IncomingCommand struct {
	nwk.Command
}

// CommissioningStatus carries one commissioning notification.
type CommissioningStatus struct {
	nwk.CommissioningStatus
}

// BindNotification reports a new binding.
type BindNotification struct {
	nwk.BindNotification
}

// VoltageWarning reports a change of battery level.
type VoltageWarning struct {
	Level power.VoltLevel
}

func (KeyChange) message()           {}
func (StateChange) message()         {}
func (IncomingCommand) message()     {}
func (CommissioningStatus) message() {}
func (BindNotification) message()    {}
func (VoltageWarning) message()      {}

package nwk

import (
	"errors"

	"github.com/sweeney/switch-node/internal/zcl"
)

// ErrNotRegistered is returned when a request is made before Register.
var ErrNotRegistered = errors.New("nwk: endpoints not registered")

// Notifier receives asynchronous notifications from the stack. Calls may
// arrive on any goroutine; implementations hand them to their own loop.
type Notifier interface {
	CommissioningStatus(CommissioningStatus)
	StateChange(State)
	Bind(BindNotification)
	Command(Command)
}

// Stack is the network and commissioning stack as seen by the application.
type Stack interface {
	// Register declares the application endpoints and the receiver of
	// notifications. It must be called once before any other request.
	Register(endpoints []Endpoint, n Notifier) error

	// StartCommissioning runs the commissioning stages named in m.
	StartCommissioning(m Mode) error

	// Leave sends a leave request.
	Leave(req LeaveRequest) error

	// AttemptRecovery tries to restore a lost parent connection.
	AttemptRecovery() error

	// ForceReset resets the device, optionally keeping network state so it
	// rejoins afterwards. It does not return an error.
	ForceReset(rejoin bool)

	// SendReport transmits an attribute report. The report is only valid
	// for the duration of the call.
	SendReport(r *zcl.Report) error
}

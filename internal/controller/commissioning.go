package controller

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/switch-node/internal/nv"
	"github.com/sweeney/switch-node/internal/nwk"
	"github.com/sweeney/switch-node/internal/status"
)

// JoinMode is requested by a long press while off the network.
const JoinMode = nwk.ModeFormation | nwk.ModeSteering | nwk.ModeFindingBinding | nwk.ModeInitiatorTL

// Coordinator reacts to commissioning notifications and runs the join,
// leave and rejoin requests.
type Coordinator struct {
	c *Controller
}

// HandleStatus applies one commissioning notification. Only Formation
// success and a lost parent lead to further requests.
func (co *Coordinator) HandleStatus(st nwk.CommissioningStatus) {
	c := co.c
	c.lastStatus = &status.Commissioning{
		Stage:     st.Stage.String(),
		Status:    st.Status.String(),
		Remaining: st.Remaining.String(),
		At:        c.s.Clock().Now(),
	}
	log.Info().
		Stringer("stage", st.Stage).
		Stringer("status", st.Status).
		Stringer("remaining", st.Remaining).
		Msg("commissioning status")

	switch st.Stage {
	case nwk.StageFormation:
		if st.Status != nwk.StatusSuccess {
			return
		}
		mode := nwk.ModeSteering | st.Remaining
		if err := c.stack.StartCommissioning(mode); err != nil {
			log.Error().Err(err).Stringer("mode", mode).Msg("steering request failed")
		}
	case nwk.StageSteering, nwk.StageFindingBinding:
		// No automatic retry on failure.
	case nwk.StageInitialization:
	case nwk.StageParentLost:
		if c.cfg.DeviceType != EndDevice || st.Status == nwk.StatusNetworkRestored {
			return
		}
		log.Info().Dur("delay", c.cfg.RejoinDelay).Msg("parent lost, scheduling rejoin")
		c.startTimer(EventRejoin, c.cfg.RejoinDelay)
	default:
		log.Debug().Stringer("stage", st.Stage).Msg("unhandled commissioning stage")
	}
}

// Recover asks the stack to restore the lost parent.
func (co *Coordinator) Recover() {
	co.c.counts.Rejoins++
	log.Info().Msg("attempting network recovery")
	if err := co.c.stack.AttemptRecovery(); err != nil {
		log.Error().Err(err).Msg("recovery request failed")
	}
}

// Join starts a fresh commissioning attempt.
func (co *Coordinator) Join() {
	if err := co.c.stack.StartCommissioning(JoinMode); err != nil {
		log.Error().Err(err).Stringer("mode", JoinMode).Msg("join request failed")
	}
}

// Leave resets local state and leaves the network without rejoin. If the
// leave request cannot be sent the device is reset instead.
func (co *Coordinator) Leave() {
	c := co.c
	c.counts.Leaves++
	c.attrs.Reset()

	var req nwk.LeaveRequest
	if err := c.store.WriteStartupOptions(nv.StartupDefaultNetworkState); err != nil {
		log.Error().Err(err).Msg("persist startup options")
	}
	if err := c.stack.Leave(req); err != nil {
		log.Error().Err(err).Msg("leave request not sent, resetting")
		c.stack.ForceReset(false)
	}
}

// RejoinRemaining returns how long until the pending rejoin, if any.
func (c *Controller) RejoinRemaining() (time.Duration, bool) {
	return c.s.Remaining(c.task, EventRejoin)
}

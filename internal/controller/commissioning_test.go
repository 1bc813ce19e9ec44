package controller

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/switch-node/internal/nwk"
)

func (h *harness) status(stage nwk.Stage, st nwk.Status, remaining nwk.Mode) {
	h.stack.Notifier.CommissioningStatus(nwk.CommissioningStatus{Stage: stage, Status: st, Remaining: remaining})
	h.s.RunUntilIdle()
}

func TestFormationSuccessRequestsSteering(t *testing.T) {
	for _, rem := range []nwk.Mode{0, nwk.ModeFindingBinding, nwk.ModeFindingBinding | nwk.ModeInitiatorTL, nwk.ModeSteering, 0x80} {
		t.Run(rem.String(), func(t *testing.T) {
			h := newHarness(t)
			h.status(nwk.StageFormation, nwk.StatusSuccess, rem)

			require.Len(t, h.stack.Commissioning, 2)
			assert.Equal(t, nwk.ModeSteering|rem, h.stack.Commissioning[1])
		})
	}
}

func TestFormationFailureDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.status(nwk.StageFormation, nwk.StatusFormationFailure, nwk.ModeFindingBinding)
	assert.Len(t, h.stack.Commissioning, 1)
}

func TestStagesWithoutDefaultAction(t *testing.T) {
	tests := []struct {
		stage  nwk.Stage
		status nwk.Status
	}{
		{nwk.StageSteering, nwk.StatusSuccess},
		{nwk.StageSteering, nwk.StatusNoNetwork},
		{nwk.StageFindingBinding, nwk.StatusSuccess},
		{nwk.StageFindingBinding, nwk.StatusFBNoIdentifyQueryResponse},
		{nwk.StageInitialization, nwk.StatusSuccess},
		{nwk.StageTouchlink, nwk.StatusTLTargetFailure},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String()+"/"+tt.status.String(), func(t *testing.T) {
			h := newHarness(t)
			h.status(tt.stage, tt.status, 0)

			assert.Len(t, h.stack.Commissioning, 1)
			assert.False(t, h.armed(EventRejoin))
			assert.Zero(t, h.s.Outstanding())
		})
	}
}

func TestParentLostArmsOneRejoin(t *testing.T) {
	h := newHarness(t)

	h.status(nwk.StageParentLost, nwk.StatusNoNetwork, 0)
	assert.True(t, h.armed(EventRejoin))
	d, ok := h.c.RejoinRemaining()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	h.advance(9 * time.Second)
	assert.Zero(t, h.stack.RecoveryCount())

	h.advance(time.Second)
	assert.Equal(t, 1, h.stack.RecoveryCount())
	assert.False(t, h.armed(EventRejoin))

	h.advance(time.Minute)
	assert.Equal(t, 1, h.stack.RecoveryCount())
	assert.Len(t, h.stack.Commissioning, 1, "recovery is not a restart")
}

func TestRepeatedParentLostKeepsSingleTimer(t *testing.T) {
	h := newHarness(t)

	h.status(nwk.StageParentLost, nwk.StatusNoNetwork, 0)
	h.advance(4 * time.Second)
	h.status(nwk.StageParentLost, nwk.StatusFailure, 0)

	assert.Equal(t, 10*time.Second, h.remaining(EventRejoin))
	h.advance(time.Minute)
	assert.Equal(t, 1, h.stack.RecoveryCount())
}

func TestParentLostRestoredArmsNothing(t *testing.T) {
	h := newHarness(t)
	h.status(nwk.StageParentLost, nwk.StatusNetworkRestored, 0)

	assert.False(t, h.armed(EventRejoin))
	h.advance(time.Minute)
	assert.Zero(t, h.stack.RecoveryCount())
}

func TestRouterIgnoresParentLost(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.DeviceType = Router })

	h.status(nwk.StageParentLost, nwk.StatusNoNetwork, 0)
	assert.False(t, h.armed(EventRejoin))

	require.NoError(t, h.s.SetEvent(h.c.Task(), EventRejoin))
	h.s.RunUntilIdle()
	assert.Zero(t, h.stack.RecoveryCount())
}

func TestRecoveryErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	h.stack.RecoveryError = errors.New("busy")

	h.status(nwk.StageParentLost, nwk.StatusNoNetwork, 0)
	h.advance(10 * time.Second)

	assert.Equal(t, 1, h.stack.RecoveryCount())
	assert.Equal(t, 1, h.c.counts.Rejoins)
	assert.Empty(t, h.stack.Resets)
}

func TestLastCommissioningRecorded(t *testing.T) {
	h := newHarness(t)
	h.advance(3 * time.Second)
	h.status(nwk.StageSteering, nwk.StatusSuccess, nwk.ModeFindingBinding)

	c := h.tracker.Snapshot().Device.Commissioning
	require.NotNil(t, c)
	assert.Equal(t, "STEERING", c.Stage)
	assert.Equal(t, "SUCCESS", c.Status)
	assert.Equal(t, "FINDING_BINDING", c.Remaining)
	assert.True(t, c.At.Equal(t0.Add(3*time.Second)))
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switch-node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Resolve()
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, 5*time.Second, cfg.Timing.LongPress)
	assert.Equal(t, 100*time.Millisecond, cfg.Timing.KeyPoll)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "end_device", cfg.DeviceType)
	assert.NotEmpty(t, cfg.DeviceID)
	assert.Equal(t, "switch-node/"+cfg.DeviceID, cfg.MQTT.Prefix)
	assert.Equal(t, "switch-node-"+cfg.DeviceID, cfg.MQTT.ClientID)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device_id: hall
device_type: router
endpoint: 8
mqtt:
  broker: tcp://broker:1883
timing:
  rejoin_delay: 3s
  idle_sleep: 30s
gpio:
  fake: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hall", cfg.DeviceID)
	assert.Equal(t, "router", cfg.DeviceType)
	assert.Equal(t, uint8(8), cfg.Endpoint)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "switch-node/hall", cfg.MQTT.Prefix)
	assert.Equal(t, 3*time.Second, cfg.Timing.RejoinDelay)
	assert.Equal(t, 30*time.Second, cfg.Timing.IdleSleep)
	assert.True(t, cfg.GPIO.Fake)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Timing.LongPress)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "timing: [not, a, map")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "device_id: file\nmqtt:\n  prefix: from/file\n")
	t.Setenv("SWITCHNODE_DEVICE_ID", "env")
	t.Setenv("SWITCHNODE_MQTT_PREFIX", "from/env")
	t.Setenv("SWITCHNODE_REJOIN_DELAY", "250ms")
	t.Setenv("SWITCHNODE_ENDPOINT", "12")
	t.Setenv("SWITCHNODE_GPIO_FAKE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.DeviceID)
	assert.Equal(t, "from/env", cfg.MQTT.Prefix)
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.RejoinDelay)
	assert.Equal(t, uint8(12), cfg.Endpoint)
	assert.True(t, cfg.GPIO.Fake)
}

func TestApplyEnvOverrides_IgnoresBadDurations(t *testing.T) {
	cfg := Defaults()
	t.Setenv("SWITCHNODE_REJOIN_DELAY", "soon")
	t.Setenv("SWITCHNODE_HEARTBEAT", "-1s")
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 10*time.Second, cfg.Timing.RejoinDelay)
	assert.Equal(t, 15*time.Minute, cfg.Timing.Heartbeat)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.DeviceType = "coordinator"
	cfg.Endpoint = 0
	cfg.Log.Level = "loud"
	cfg.Timing.KeyPoll = 10 * time.Second
	cfg.GPIO.LED = cfg.GPIO.SW1

	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 5)
	assert.Contains(t, err.Error(), "device_type")
	assert.Contains(t, err.Error(), "endpoint must be 1-240")
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "timing.key_poll must be shorter")
	assert.Contains(t, err.Error(), "share line 17")
}

func TestValidate_FakeGPIOSkipsPins(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = GPIOConfig{Fake: true, SW1: -1, SW2: -1, LED: -1}
	assert.NoError(t, Validate(cfg))
}

func TestValidate_BatteryThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Battery.Path = "/sys/class/power_supply/BAT0/voltage_now"
	cfg.Battery.BadMV = 2500
	assert.ErrorContains(t, Validate(cfg), "battery.bad_mv")

	cfg.Battery.Path = ""
	assert.NoError(t, Validate(cfg))
}

func TestHostDeviceIDStable(t *testing.T) {
	assert.Equal(t, HostDeviceID(), HostDeviceID())
}

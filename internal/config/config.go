// Package config loads daemon settings from a YAML file, environment
// variables and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	DeviceID   string `yaml:"device_id"`
	DeviceType string `yaml:"device_type"` // end_device or router
	Endpoint   uint8  `yaml:"endpoint"`

	Log     LogConfig     `yaml:"log"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Timing  TimingConfig  `yaml:"timing"`
	Battery BatteryConfig `yaml:"battery"`
	Report  ReportConfig  `yaml:"report"`
	NV      NVConfig      `yaml:"nv"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Prefix     string `yaml:"prefix"` // defaults to switch-node/<device_id>
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
	WSBroker   string `yaml:"ws_broker"` // "=broker" derives from Broker, "off" disables
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// GPIOConfig selects the key and LED lines.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
	SW1  int    `yaml:"sw1"`
	SW2  int    `yaml:"sw2"`
	LED  int    `yaml:"led"`
	Fake bool   `yaml:"fake"` // run without hardware
}

// TimingConfig holds controller timings.
type TimingConfig struct {
	LongPress   time.Duration `yaml:"long_press"`
	KeyPoll     time.Duration `yaml:"key_poll"`
	Blink       time.Duration `yaml:"blink"`
	Sleep       time.Duration `yaml:"sleep"`
	RejoinDelay time.Duration `yaml:"rejoin_delay"`
	IdleSleep   time.Duration `yaml:"idle_sleep"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// BatteryConfig configures voltage monitoring. An empty Path disables it.
type BatteryConfig struct {
	Path       string        `yaml:"path"`
	Poll       time.Duration `yaml:"poll"`
	CautiousMV int           `yaml:"cautious_mv"`
	BadMV      int           `yaml:"bad_mv"`
}

// ReportConfig sets where reports go.
type ReportConfig struct {
	DstAddr     uint16 `yaml:"dst_addr"`
	DstEndpoint uint8  `yaml:"dst_endpoint"`
	Frames      int    `yaml:"frames"`
}

// NVConfig locates persistent state.
type NVConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DeviceType: "end_device",
		Endpoint:   1,
		Log:        LogConfig{Level: "info", Format: "json"},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			BufferSize: 64,
			WSBroker:   "=broker",
		},
		HTTP: HTTPConfig{Port: "80"},
		GPIO: GPIOConfig{Chip: "gpiochip0", SW1: 17, SW2: 27, LED: 22},
		Timing: TimingConfig{
			LongPress:   5 * time.Second,
			KeyPoll:     100 * time.Millisecond,
			Blink:       500 * time.Millisecond,
			Sleep:       10 * time.Second,
			RejoinDelay: 10 * time.Second,
			Heartbeat:   15 * time.Minute,
		},
		Battery: BatteryConfig{
			Poll:       time.Minute,
			CautiousMV: 2400,
			BadMV:      2200,
		},
		Report: ReportConfig{DstAddr: 0x0000, DstEndpoint: 1, Frames: 2},
		NV:     NVConfig{Path: "/var/lib/switch-node/nv.cbor"},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides, fills derived fields and validates. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)
	cfg.Resolve()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies SWITCHNODE_* environment variables.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHNODE_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("SWITCHNODE_DEVICE_TYPE"); v != "" {
		cfg.DeviceType = v
	}
	if v := os.Getenv("SWITCHNODE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SWITCHNODE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SWITCHNODE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("SWITCHNODE_MQTT_PREFIX"); v != "" {
		cfg.MQTT.Prefix = v
	}
	if v := os.Getenv("SWITCHNODE_WS_BROKER"); v != "" {
		cfg.MQTT.WSBroker = v
	}
	if v := os.Getenv("SWITCHNODE_HTTP_PORT"); v != "" {
		cfg.HTTP.Port = v
	}
	if v := os.Getenv("SWITCHNODE_GPIO_CHIP"); v != "" {
		cfg.GPIO.Chip = v
	}
	if v := os.Getenv("SWITCHNODE_GPIO_FAKE"); v == "true" {
		cfg.GPIO.Fake = true
	}
	if v := os.Getenv("SWITCHNODE_REJOIN_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timing.RejoinDelay = d
		}
	}
	if v := os.Getenv("SWITCHNODE_IDLE_SLEEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Timing.IdleSleep = d
		}
	}
	if v := os.Getenv("SWITCHNODE_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timing.Heartbeat = d
		}
	}
	if v := os.Getenv("SWITCHNODE_BATTERY_PATH"); v != "" {
		cfg.Battery.Path = v
	}
	if v := os.Getenv("SWITCHNODE_NV_PATH"); v != "" {
		cfg.NV.Path = v
	}
	if v := os.Getenv("SWITCHNODE_ENDPOINT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.Endpoint = uint8(n)
		}
	}
}

// Resolve fills fields derived from others: a device ID stable for this
// host, the topic prefix and the MQTT client ID.
func (c *Config) Resolve() {
	if c.DeviceID == "" {
		c.DeviceID = HostDeviceID()
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "switch-node/" + c.DeviceID
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "switch-node-" + c.DeviceID
	}
}

// HostDeviceID derives a name-based UUID from the hostname, falling back to
// a random one.
func HostDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
}

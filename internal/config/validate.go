package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch cfg.DeviceType {
	case "end_device", "router":
	default:
		ve.Add("device_type must be end_device or router, got %q", cfg.DeviceType)
	}
	if cfg.Endpoint == 0 || cfg.Endpoint > 240 {
		ve.Add("endpoint must be 1-240, got %d", cfg.Endpoint)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		ve.Add("log.format must be json or console, got %q", cfg.Log.Format)
	}

	if cfg.MQTT.Broker == "" {
		ve.Add("mqtt.broker is required")
	}
	if cfg.MQTT.BufferSize <= 0 {
		ve.Add("mqtt.buffer_size must be positive")
	}
	if strings.ContainsAny(cfg.MQTT.Prefix, "+#") {
		ve.Add("mqtt.prefix must not contain wildcards")
	}

	t := cfg.Timing
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"timing.long_press", t.LongPress},
		{"timing.key_poll", t.KeyPoll},
		{"timing.blink", t.Blink},
		{"timing.sleep", t.Sleep},
		{"timing.rejoin_delay", t.RejoinDelay},
		{"timing.heartbeat", t.Heartbeat},
	} {
		if f.d <= 0 {
			ve.Add("%s must be positive", f.name)
		}
	}
	if t.IdleSleep < 0 {
		ve.Add("timing.idle_sleep must not be negative")
	}
	if t.KeyPoll >= t.LongPress {
		ve.Add("timing.key_poll must be shorter than timing.long_press")
	}

	if cfg.Battery.Path != "" {
		if cfg.Battery.Poll <= 0 {
			ve.Add("battery.poll must be positive")
		}
		if cfg.Battery.BadMV >= cfg.Battery.CautiousMV {
			ve.Add("battery.bad_mv must be below battery.cautious_mv")
		}
	}

	if cfg.Report.Frames <= 0 {
		ve.Add("report.frames must be positive")
	}

	if !cfg.GPIO.Fake {
		pins := map[int]string{}
		for name, pin := range map[string]int{"gpio.sw1": cfg.GPIO.SW1, "gpio.sw2": cfg.GPIO.SW2, "gpio.led": cfg.GPIO.LED} {
			if pin < 0 {
				ve.Add("%s must not be negative", name)
				continue
			}
			if other, dup := pins[pin]; dup {
				ve.Add("%s and %s share line %d", name, other, pin)
			}
			pins[pin] = name
		}
	}

	if cfg.NV.Path == "" {
		ve.Add("nv.path is required")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

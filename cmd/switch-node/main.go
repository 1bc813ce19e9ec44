// Command switch-node runs the application controller of a battery-powered
// on/off switch, talking to its network stack over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/switch-node/internal/config"
	"github.com/sweeney/switch-node/internal/controller"
	"github.com/sweeney/switch-node/internal/gpio"
	"github.com/sweeney/switch-node/internal/mqtt"
	"github.com/sweeney/switch-node/internal/nv"
	"github.com/sweeney/switch-node/internal/nwk"
	"github.com/sweeney/switch-node/internal/power"
	"github.com/sweeney/switch-node/internal/sched"
	"github.com/sweeney/switch-node/internal/status"
	"github.com/sweeney/switch-node/internal/web"
	"github.com/sweeney/switch-node/internal/zcl"
)

// statusRefresh is how often connection and power state are copied into the
// status tracker.
const statusRefresh = time.Second

func main() {
	configPath := flag.String("config", "/etc/switch-node/config.yaml", "Config file (missing file uses defaults)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpPort := flag.String("http", "", "HTTP status port (overrides config, \"off\" disables)")
	wsBroker := flag.String("ws-broker", "", `MQTT websocket URL for live UI ("=broker" derives from broker, "off" disables)`)
	fakeGPIO := flag.Bool("fake-gpio", false, "Run without GPIO hardware; keys are driven via POST /keys")
	printState := flag.Bool("print-state", false, "Print current keys and stored startup options and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *broker, *httpPort, *wsBroker, *fakeGPIO)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if err := run(cfg, *printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func applyFlags(cfg *config.Config, broker, httpPort, wsBroker string, fakeGPIO bool) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpPort {
	case "":
	case "off":
		cfg.HTTP.Port = ""
	default:
		cfg.HTTP.Port = httpPort
	}
	if wsBroker != "" {
		cfg.MQTT.WSBroker = wsBroker
	}
	if fakeGPIO {
		cfg.GPIO.Fake = true
	}
}

func setupLogging(lc config.LogConfig) {
	lvl, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if lc.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// hardware is the key and LED pair, real or simulated.
type hardware struct {
	keys     gpio.Keys
	led      gpio.LED
	fakeKeys *gpio.FakeKeys
}

func (h hardware) Close() {
	h.keys.Close()
	h.led.Close()
}

func openHardware(gc config.GPIOConfig) (hardware, error) {
	if gc.Fake {
		keys := gpio.NewFakeKeys()
		return hardware{keys: keys, led: gpio.NewFakeLED(), fakeKeys: keys}, nil
	}
	pins := gpio.Pins{Chip: gc.Chip, SW1: gc.SW1, SW2: gc.SW2, LED: gc.LED}
	keys, err := gpio.NewRealKeys(pins)
	if err != nil {
		return hardware{}, fmt.Errorf("init keys: %w", err)
	}
	led, err := gpio.NewRealLED(pins)
	if err != nil {
		keys.Close()
		return hardware{}, fmt.Errorf("init led: %w", err)
	}
	return hardware{keys: keys, led: led}, nil
}

func run(cfg *config.Config, printState bool) error {
	hw, err := openHardware(cfg.GPIO)
	if err != nil {
		return err
	}
	defer hw.Close()

	store := nv.NewFileStore(cfg.NV.Path)
	startup, err := store.ReadStartupOptions()
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.NV.Path).Msg("read startup options")
	}

	// Print state mode
	if printState {
		keys, err := hw.keys.ReadKeys()
		if err != nil {
			return fmt.Errorf("read keys: %w", err)
		}
		fmt.Printf("keys: %s, startup options: 0x%02x\n", keys, uint8(startup))
		return nil
	}

	if startup&nv.StartupDefaultNetworkState != 0 {
		log.Info().Msg("left network on last run; starting from default network state")
		if err := store.WriteStartupOptions(startup &^ nv.StartupDefaultNetworkState); err != nil {
			log.Warn().Err(err).Msg("clear startup options")
		}
	}

	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Prefix:     cfg.MQTT.Prefix,
		BufferSize: cfg.MQTT.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:    cfg.DeviceID,
		DeviceType:  deviceType(cfg.DeviceType).String(),
		Endpoint:    cfg.Endpoint,
		LongPressMs: cfg.Timing.LongPress.Milliseconds(),
		KeyPollMs:   cfg.Timing.KeyPoll.Milliseconds(),
		RejoinMs:    cfg.Timing.RejoinDelay.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		Prefix:      cfg.MQTT.Prefix,
		HTTPPort:    cfg.HTTP.Port,
		WSBroker:    ws,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A forced reset ends the run; the supervisor restarts the daemon.
	bridge := nwk.NewBridge(client, cfg.MQTT.Prefix, func(rejoin bool) {
		log.Warn().Bool("rejoin", rejoin).Msg("network stack reset requested, exiting")
		cancel()
	})

	s := sched.New()
	pm := power.NewManager(time.Now)
	ctrl := controller.New(controllerConfig(cfg), controller.Deps{
		Scheduler: s,
		Stack:     bridge,
		Keys:      hw.keys,
		LED:       hw.led,
		Sleeper:   pm,
		Store:     store,
		GatewayOptions: []zcl.GatewayOption{
			zcl.WithDestination(zcl.Address{
				Mode:     zcl.Addr16Bit,
				Short:    cfg.Report.DstAddr,
				Endpoint: cfg.Report.DstEndpoint,
			}),
			zcl.WithFramePool(cfg.Report.Frames),
		},
		Observer: tracker,
	})

	var monitor *power.Monitor
	if cfg.Battery.Path != "" {
		th := power.Thresholds{CautiousMV: cfg.Battery.CautiousMV, BadMV: cfg.Battery.BadMV}
		monitor = power.NewMonitor(power.SysfsSource{Path: cfg.Battery.Path}, th, ctrl.VoltageChanged)
		if _, _, err := monitor.Poll(); err != nil {
			log.Warn().Err(err).Msg("initial battery reading")
		}
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Warn().Err(err).Msg("failed to publish startup event")
	} else {
		log.Info().Msg("published startup event")
	}

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	if monitor != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Battery.Poll)
			defer ticker.Stop()
			monitor.Run(gctx, ticker.C)
			return nil
		})
	}

	// Start HTTP status server
	if cfg.HTTP.Port != "" {
		var opts []web.Option
		if hw.fakeKeys != nil {
			opts = append(opts, web.WithKeySetter(hw.fakeKeys))
		}
		srv := web.New(":"+cfg.HTTP.Port, tracker, opts...)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
		log.Info().Str("port", cfg.HTTP.Port).Msg("http status server listening")
	}

	log.Info().
		Str("device", cfg.DeviceID).
		Str("broker", cfg.MQTT.Broker).
		Str("prefix", cfg.MQTT.Prefix).
		Dur("long_press", cfg.Timing.LongPress).
		Dur("heartbeat", cfg.Timing.Heartbeat).
		Msg("started")

	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()
	var heartbeat <-chan time.Time
	if cfg.Timing.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Timing.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(gctx, client, client, tracker, powerView{pm: pm, monitor: monitor}, time.Now, refresh.C, heartbeat, sigCh)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

func deviceType(s string) controller.DeviceType {
	if s == "router" {
		return controller.Router
	}
	return controller.EndDevice
}

func controllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		DeviceType:  deviceType(cfg.DeviceType),
		Endpoint:    cfg.Endpoint,
		LongPress:   cfg.Timing.LongPress,
		KeyPoll:     cfg.Timing.KeyPoll,
		BlinkPeriod: cfg.Timing.Blink,
		SleepFor:    cfg.Timing.Sleep,
		RejoinDelay: cfg.Timing.RejoinDelay,
		IdleSleep:   cfg.Timing.IdleSleep,
	}
}

// powerState is what the status loop reads about power.
type powerState interface {
	Asleep() bool
	BatteryMV() int
}

type powerView struct {
	pm      *power.Manager
	monitor *power.Monitor
}

func (p powerView) Asleep() bool { return p.pm.Asleep() }

func (p powerView) BatteryMV() int {
	if p.monitor == nil {
		return 0
	}
	return p.monitor.Millivolts()
}

// runLoop keeps the status tracker current and publishes lifecycle events
// until a signal arrives or ctx is cancelled by a network stack reset.
func runLoop(ctx context.Context, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, pw powerState, now func() time.Time, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		if pw != nil {
			tracker.SetPower(pw.Asleep(), pw.BatteryMV())
		}
	}

	shutdown := func(reason string) {
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		refresh()
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
		if err := publisher.PublishSystem(event); err != nil {
			log.Warn().Err(err).Msg("failed to publish shutdown event")
		} else {
			log.Info().Str("reason", reason).Msg("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-ctx.Done():
			shutdown("RESET")
			return nil

		case <-tick:
			refresh()

		case <-heartbeat:
			refresh()
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			d := snap.Device
			log.Info().
				Dur("uptime", snap.Uptime().Truncate(time.Second)).
				Str("network", d.NetworkState).
				Int("presses", d.Counts.Presses).
				Int("reports", d.Counts.Reports).
				Msg("heartbeat")

			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the ws-broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or
// empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Warn().Err(err).Str("broker", broker).Msg("ws-broker: cannot parse broker")
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

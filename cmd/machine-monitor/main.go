// Command machine-monitor samples a cutting machine's encoder and knife
// sensor once a minute, logs shift metrics and publishes them to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	oklogrun "github.com/oklog/run"

	"github.com/sweeney/machine-monitor/internal/config"
	"github.com/sweeney/machine-monitor/internal/counter"
	"github.com/sweeney/machine-monitor/internal/datalog"
	"github.com/sweeney/machine-monitor/internal/encoder"
	"github.com/sweeney/machine-monitor/internal/gpio"
	"github.com/sweeney/machine-monitor/internal/logic"
	"github.com/sweeney/machine-monitor/internal/monitor"
	"github.com/sweeney/machine-monitor/internal/mqtt"
	"github.com/sweeney/machine-monitor/internal/status"
	"github.com/sweeney/machine-monitor/internal/upload"
	"github.com/sweeney/machine-monitor/internal/web"
)

var errInterrupted = errors.New("got interrupt signal")

func main() {
	os.Exit(realMain())
}

func realMain() int {
	printState := flag.Bool("print-state", false, "Print sensor and encoder readings and exit")
	cfg, err := config.LoadFromFlags(flag.CommandLine, os.Args[1:])

	log := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return 2
	}

	hw, err := openHardware(cfg)
	if err != nil {
		log.Error("hardware initialization failed", "error", err)
		return 1
	}
	defer hw.Close(log)
	log.Info("hardware ready", "encoder_width", hw.decoder.Width(), "sensor_pin", cfg.GPIO.SensorPin)

	if *printState {
		if err := writeState(os.Stdout, hw.sensor, hw.decoder); err != nil {
			log.Error("read state", "error", err)
			return 1
		}
		return 0
	}

	if err := hw.ready.Set(true); err != nil {
		log.Warn("set ready LED", "error", err)
	}

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		Machine:        cfg.Machine(),
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		BufferSize:     cfg.MQTT.BufferSize,
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Std(),
		Logger:         log,
	})
	if err != nil {
		log.Error("mqtt", "error", err)
		return 1
	}
	defer publisher.Close()

	var storage upload.Storage
	if cfg.Upload.Enabled {
		dbx, err := upload.NewDropbox(cfg.DropboxToken)
		if err != nil {
			log.Error("dropbox", "error", err)
			return 1
		}
		storage = dbx
	}

	err = run(context.Background(), cfg, deps{
		sensor:    hw.sensor,
		encoder:   hw.decoder,
		logLED:    hw.logLED,
		publisher: publisher,
		storage:   storage,
		log:       log,
		interrupt: interrupter,
	})
	if err != nil && !errors.Is(err, errInterrupted) {
		log.Error("fatal", "error", err)
		return 1
	}
	log.Info("stopped", "reason", err)
	return 0
}

// hardware holds the peripherals opened at startup.
type hardware struct {
	sensor  gpio.Reader
	ready   gpio.Indicator
	logLED  gpio.Indicator
	decoder *encoder.Decoder
}

// openHardware initializes GPIO and SPI. Any failure is fatal; lines opened
// before the failure are released.
func openHardware(cfg config.Config) (*hardware, error) {
	hw := &hardware{}

	sensor, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.SensorPin)
	if err != nil {
		return nil, fmt.Errorf("init sensor: %w", err)
	}
	hw.sensor = sensor

	logLED, err := gpio.NewRealLED(cfg.GPIO.Chip, cfg.GPIO.LEDLogPin)
	if err != nil {
		hw.Close(slog.Default())
		return nil, fmt.Errorf("init logging LED: %w", err)
	}
	hw.logLED = logLED

	ready, err := gpio.NewRealLED(cfg.GPIO.Chip, cfg.GPIO.LEDReadyPin)
	if err != nil {
		hw.Close(slog.Default())
		return nil, fmt.Errorf("init ready LED: %w", err)
	}
	hw.ready = ready

	if hw.decoder, err = encoder.Open(cfg.EncoderConfig()); err != nil {
		hw.Close(slog.Default())
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	return hw, nil
}

// Close turns the LEDs off and releases every opened line and port.
func (hw *hardware) Close(log *slog.Logger) {
	for _, led := range []gpio.Indicator{hw.logLED, hw.ready} {
		if led == nil {
			continue
		}
		if err := led.Set(false); err != nil {
			log.Warn("turn LED off", "error", err)
		}
		led.Close()
	}
	if hw.sensor != nil {
		hw.sensor.Close()
	}
	if hw.decoder != nil {
		hw.decoder.Close()
	}
}

// deps are the externally constructed parts run wires together.
type deps struct {
	sensor    gpio.Reader
	encoder   monitor.Encoder
	logLED    monitor.LED
	publisher mqtt.Publisher
	storage   upload.Storage // nil disables uploads
	log       *slog.Logger
	interrupt func(ctx context.Context) error
}

// run wires the monitor and supervises the poller, the scheduler, the HTTP
// server and the interrupter until one of them returns.
func run(ctx context.Context, cfg config.Config, d deps) error {
	log := d.log
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	schedule := cfg.LogicSchedule()
	store := datalog.New(cfg.DataDir, cfg.Machine())
	count := &counter.Counter{}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	tracker.SetCountSource(count.Value)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetReady(true)

	opts := monitor.Options{
		MachineID:  cfg.MachineID,
		ResetAt:    cfg.Schedule.ResetAt,
		Classifier: logic.NewClassifier(cfg.Threshold, cfg.TickPeriod.Std(), schedule),
		Encoder:    d.encoder,
		Counter:    count,
		Store:      store,
		Publisher:  d.publisher,
		Tracker:    tracker,
		LogLED:     d.logLED,
		Logger:     log,
	}
	var uploadAt *logic.TimeOfDay
	if d.storage != nil {
		opts.Uploader = &upload.Job{
			Store:     store,
			Storage:   d.storage,
			Schedule:  schedule,
			Machine:   cfg.Machine(),
			Retention: cfg.Upload.Retention,
			Retry: upload.ExponentialBackoff{
				MaxAttempts: cfg.Upload.MaxAttempts,
				MinInterval: cfg.Upload.MinInterval.Std(),
				MaxInterval: cfg.Upload.MaxInterval.Std(),
				Logger:      log,
			},
			Logger: log,
		}
		uploadAt = &cfg.Upload.At
	}
	mon := monitor.New(opts)

	scheduler, err := monitor.NewScheduler(mon, loc, uploadAt, log)
	if err != nil {
		return err
	}

	poller := &counter.Poller{
		Reader:   d.sensor,
		Counter:  count,
		Interval: cfg.GPIO.PollInterval.Std(),
		Logger:   log,
	}

	var g oklogrun.Group
	g.Add(actor(ctx, poller.Run))
	g.Add(actor(ctx, scheduler.Run))
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		g.Add(actor(ctx, srv.Run))
		log.Info("http status server listening", "addr", cfg.HTTPAddr)
	}
	g.Add(actor(ctx, d.interrupt))

	log.Info("started",
		"machine", cfg.Machine(),
		"window", fmt.Sprintf("%s-%s", cfg.Schedule.Start, cfg.Schedule.End),
		"threshold", cfg.Threshold,
		"tick", cfg.TickPeriod.Std(),
		"broker", cfg.MQTT.Broker,
		"upload", uploadAt != nil,
		"data", store.Dir(),
	)
	return g.Run()
}

// actor adapts a context-driven service to a run.Group member.
func actor(ctx context.Context, fn func(context.Context) error) (func() error, func(error)) {
	ctx, cancel := context.WithCancelCause(ctx)
	return func() error {
			return fn(ctx)
		}, func(err error) {
			cancel(err)
		}
}

// interrupter returns errInterrupted on SIGINT or SIGTERM.
func interrupter(ctx context.Context) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		return fmt.Errorf("%w: %s", errInterrupted, sig)
	case <-ctx.Done():
		return fmt.Errorf("interrupter: %w", ctx.Err())
	}
}

func statusConfig(cfg config.Config) status.Config {
	sc := status.Config{
		Machine:      cfg.Machine(),
		Threshold:    cfg.Threshold,
		TickPeriod:   cfg.TickPeriod.Std(),
		Window:       fmt.Sprintf("%s-%s", cfg.Schedule.Start, cfg.Schedule.End),
		WorkingDays:  cfg.LogicSchedule().WorkingDays,
		ByteWidth:    cfg.Encoder.ByteWidth,
		PollInterval: cfg.GPIO.PollInterval.Std(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTPAddr,
	}
	if cfg.Upload.Enabled {
		sc.UploadAt = cfg.Upload.At.String()
	}
	return sc
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

type stateReader interface {
	ReadCounter() (int64, error)
	ReadStatus() (byte, error)
	Distance() (float64, error)
}

// writeState prints one reading of each input.
func writeState(w io.Writer, sensor gpio.Reader, enc stateReader) error {
	detected, err := sensor.Read()
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	raw, err := enc.ReadCounter()
	if err != nil {
		return err
	}
	dist, err := enc.Distance()
	if err != nil {
		return err
	}
	st, err := enc.ReadStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sensor: %s, encoder: %d counts (%.2f ft), status: 0x%02X\n",
		detectedString(detected), raw, dist, st)
	return nil
}

func detectedString(on bool) string {
	if on {
		return "DETECTED"
	}
	return "IDLE"
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

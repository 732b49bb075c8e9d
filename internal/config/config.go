// Package config loads the monitor's settings from a config file, a
// credentials file and command-line flags, in increasing precedence.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/machine-monitor/internal/datalog"
	"github.com/sweeney/machine-monitor/internal/encoder"
	"github.com/sweeney/machine-monitor/internal/gpio"
	"github.com/sweeney/machine-monitor/internal/logic"
	"github.com/sweeney/machine-monitor/internal/mqtt"
)

// Duration is a time.Duration read as ISO 8601 ("PT1M") or Go syntax ("1m")
// and written as ISO 8601.
type Duration time.Duration

func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if parsed, err := duration.Parse(s); err == nil {
		*d = Duration(parsed.ToTimeDuration())
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type ScheduleConfig struct {
	Start       logic.TimeOfDay `json:"start" yaml:"start" toml:"start"`
	End         logic.TimeOfDay `json:"end" yaml:"end" toml:"end"`
	WorkingDays []string        `json:"working_days" yaml:"working_days" toml:"working_days"`
	ResetAt     logic.TimeOfDay `json:"reset_at" yaml:"reset_at" toml:"reset_at"`
	Location    string          `json:"location" yaml:"location" toml:"location"`
}

type EncoderConfig struct {
	Bus           int     `json:"bus" yaml:"bus" toml:"bus"`
	ChipSelect    int     `json:"chip_select" yaml:"chip_select" toml:"chip_select"`
	ClockHz       int64   `json:"clock_hz" yaml:"clock_hz" toml:"clock_hz"`
	ByteWidth     int     `json:"byte_width" yaml:"byte_width" toml:"byte_width"`
	CountsPerFoot float64 `json:"counts_per_foot" yaml:"counts_per_foot" toml:"counts_per_foot"`
}

type GPIOConfig struct {
	Chip         string   `json:"chip" yaml:"chip" toml:"chip"`
	SensorPin    int      `json:"sensor_pin" yaml:"sensor_pin" toml:"sensor_pin"`
	LEDLogPin    int      `json:"led_log_pin" yaml:"led_log_pin" toml:"led_log_pin"`
	LEDReadyPin  int      `json:"led_ready_pin" yaml:"led_ready_pin" toml:"led_ready_pin"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
}

type MQTTConfig struct {
	Broker         string   `json:"broker" yaml:"broker" toml:"broker"`
	Username       string   `json:"username" yaml:"username" toml:"username"`
	Password       string   `json:"password" yaml:"password" toml:"password"`
	BufferSize     int      `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
}

type UploadConfig struct {
	Enabled     bool            `json:"enabled" yaml:"enabled" toml:"enabled"`
	At          logic.TimeOfDay `json:"at" yaml:"at" toml:"at"`
	Retention   int             `json:"retention" yaml:"retention" toml:"retention"`
	MaxAttempts int             `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	MinInterval Duration        `json:"min_interval" yaml:"min_interval" toml:"min_interval"`
	MaxInterval Duration        `json:"max_interval" yaml:"max_interval" toml:"max_interval"`
}

// Credentials hold secrets kept out of the main config file.
type Credentials struct {
	DropboxToken string `json:"dropbox_token" yaml:"dropbox_token" toml:"dropbox_token"`
	Broker       string `json:"broker" yaml:"broker" toml:"broker"`
	Username     string `json:"username" yaml:"username" toml:"username"`
	Password     string `json:"password" yaml:"password" toml:"password"`
}

type Config struct {
	MachineID  int            `json:"machine_id" yaml:"machine_id" toml:"machine_id"`
	DataDir    string         `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	Threshold  float64        `json:"threshold" yaml:"threshold" toml:"threshold"`
	TickPeriod Duration       `json:"tick_period" yaml:"tick_period" toml:"tick_period"`
	Schedule   ScheduleConfig `json:"schedule" yaml:"schedule" toml:"schedule"`
	Encoder    EncoderConfig  `json:"encoder" yaml:"encoder" toml:"encoder"`
	GPIO       GPIOConfig     `json:"gpio" yaml:"gpio" toml:"gpio"`
	MQTT       MQTTConfig     `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
	Upload     UploadConfig   `json:"upload" yaml:"upload" toml:"upload"`
	HTTPAddr   string         `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	LogLevel   string         `json:"log_level" yaml:"log_level" toml:"log_level"`

	DropboxToken string `json:"-" yaml:"-" toml:"-"`
}

func DefaultConfig() Config {
	return Config{
		MachineID:  2,
		DataDir:    "/home/pi/data",
		Threshold:  logic.DefaultThreshold,
		TickPeriod: Duration(time.Minute),
		Schedule: ScheduleConfig{
			Start:       logic.TimeOfDay{Hour: 6},
			End:         logic.TimeOfDay{Hour: 14},
			WorkingDays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			ResetAt:     logic.TimeOfDay{Hour: 6},
			Location:    "Local",
		},
		Encoder: EncoderConfig{
			Bus:           0,
			ChipSelect:    0,
			ClockHz:       1_000_000,
			ByteWidth:     4,
			CountsPerFoot: encoder.DefaultCountsPerFoot,
		},
		GPIO: GPIOConfig{
			Chip:         gpio.DefaultChip,
			SensorPin:    gpio.DefaultPinSensor,
			LEDLogPin:    gpio.DefaultPinLEDLog,
			LEDReadyPin:  gpio.DefaultPinLEDReady,
			PollInterval: 0, // tight loop
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			BufferSize:     mqtt.DefaultBufferSize,
			ConnectTimeout: Duration(5 * time.Second),
		},
		Upload: UploadConfig{
			Enabled:     true,
			At:          logic.TimeOfDay{Hour: 14, Minute: 1},
			Retention:   datalog.DefaultRetention,
			MaxAttempts: 5,
			MinInterval: Duration(30 * time.Second),
			MaxInterval: Duration(10 * time.Minute),
		},
		HTTPAddr: ":8080",
		LogLevel: "info",
	}
}

// Machine returns the machine name used in topics and paths.
func (c Config) Machine() string {
	return mqtt.MachineName(c.MachineID)
}

// Location resolves Schedule.Location; "" and "Local" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Schedule.Location {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Schedule.Location)
}

// LogicSchedule converts the schedule settings. Validate must have passed.
func (c Config) LogicSchedule() logic.Schedule {
	days, _ := ParseWeekdays(c.Schedule.WorkingDays)
	return logic.Schedule{
		Window:      logic.Window{Start: c.Schedule.Start, End: c.Schedule.End},
		WorkingDays: days,
	}
}

func (c Config) EncoderConfig() encoder.Config {
	return encoder.Config{
		Bus:           c.Encoder.Bus,
		ChipSelect:    c.Encoder.ChipSelect,
		ClockHz:       c.Encoder.ClockHz,
		ByteWidth:     c.Encoder.ByteWidth,
		CountsPerFoot: c.Encoder.CountsPerFoot,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MachineID < 0 {
		return errors.New("machine-id must be >= 0")
	}
	if c.DataDir == "" {
		return errors.New("data-dir is required")
	}
	if c.Threshold < 0 {
		return errors.New("threshold must be >= 0")
	}
	if p := c.TickPeriod.Std(); p < time.Minute || p%time.Minute != 0 {
		return fmt.Errorf("tick-period must be a whole number of minutes, got %v", p)
	}
	if _, err := ParseWeekdays(c.Schedule.WorkingDays); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if c.Encoder.ByteWidth < 1 || c.Encoder.ByteWidth > 4 {
		return fmt.Errorf("byte-width must be 1..4, got %d", c.Encoder.ByteWidth)
	}
	if c.Encoder.CountsPerFoot <= 0 {
		return errors.New("counts-per-foot must be > 0")
	}
	if c.Encoder.ClockHz <= 0 {
		return errors.New("spi clock must be > 0")
	}
	if c.GPIO.PollInterval < 0 {
		return errors.New("poll-interval must be >= 0")
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt broker is required")
	}
	if c.Upload.Retention < 0 {
		return errors.New("upload retention must be >= 0")
	}
	if c.Upload.MaxAttempts < 0 {
		return errors.New("upload max-attempts must be >= 0")
	}
	if c.Upload.MinInterval < 0 || c.Upload.MaxInterval < 0 {
		return errors.New("upload retry intervals must be >= 0")
	}
	if c.Upload.Enabled && c.DropboxToken == "" {
		return errors.New("upload enabled but no dropbox token in credentials")
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses day names such as "Mon" or "friday".
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

// decodeFile unmarshals path into v, choosing the format by extension.
func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, v)
	case ".toml":
		err = toml.Unmarshal(b, v)
	case ".json":
		err = json.Unmarshal(b, v)
	default:
		return fmt.Errorf("%s: unsupported config format", path)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (optional) over the defaults and applies the
// credentials file (optional). Credentials override broker settings.
func Load(configPath, credentialsPath string) (Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		if err := decodeFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if credentialsPath != "" {
		var creds Credentials
		if err := decodeFile(credentialsPath, &creds); err != nil {
			return cfg, err
		}
		cfg.ApplyCredentials(creds)
	}
	return cfg, nil
}

// ApplyCredentials copies non-empty credential fields into c.
func (c *Config) ApplyCredentials(creds Credentials) {
	if creds.DropboxToken != "" {
		c.DropboxToken = creds.DropboxToken
	}
	if creds.Broker != "" {
		c.MQTT.Broker = creds.Broker
	}
	if creds.Username != "" {
		c.MQTT.Username = creds.Username
	}
	if creds.Password != "" {
		c.MQTT.Password = creds.Password
	}
}

// LoadFromFlags parses args with fs, loads the files they name and applies
// flag overrides. Flags override values present in the files.
func LoadFromFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to config file (.yaml, .toml or .json)")
	credsPath := fs.String("credentials", "", "Path to credentials file (dropbox token, broker)")
	flagMachine := fs.Int("machine-id", -1, "Machine number used in topic and paths")
	flagDataDir := fs.String("data-dir", "", "Root directory for log files")
	flagThreshold := fs.Float64("threshold", -1, "Feet per tick above which the machine is running")
	flagTick := fs.String("tick-period", "", "Tick period (ISO 8601 or Go duration, whole minutes)")
	flagStart := fs.String("start", "", "Logging window start HH:MM")
	flagEnd := fs.String("end", "", "Logging window end HH:MM")
	flagDays := fs.String("working-days", "", "Comma-separated working days e.g. Mon,Tue")
	flagWidth := fs.Int("byte-width", -1, "Encoder counter width in bytes (1-4)")
	flagBroker := fs.String("broker", "", "MQTT broker address")
	flagHTTP := fs.String("http", "", `HTTP status address ("off" disables)`)
	flagNoUpload := fs.Bool("no-upload", false, "Disable the daily upload")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg, err := Load(*cfgPath, *credsPath)
	if err != nil {
		return cfg, err
	}

	if *flagMachine != -1 {
		cfg.MachineID = *flagMachine
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
	}
	if *flagThreshold >= 0 {
		cfg.Threshold = *flagThreshold
	}
	if *flagTick != "" {
		if err := cfg.TickPeriod.UnmarshalText([]byte(*flagTick)); err != nil {
			return cfg, fmt.Errorf("tick-period: %w", err)
		}
	}
	if *flagStart != "" {
		if err := cfg.Schedule.Start.UnmarshalText([]byte(*flagStart)); err != nil {
			return cfg, fmt.Errorf("start: %w", err)
		}
	}
	if *flagEnd != "" {
		if err := cfg.Schedule.End.UnmarshalText([]byte(*flagEnd)); err != nil {
			return cfg, fmt.Errorf("end: %w", err)
		}
	}
	if *flagDays != "" {
		cfg.Schedule.WorkingDays = parseCSV(*flagDays)
	}
	if *flagWidth != -1 {
		cfg.Encoder.ByteWidth = *flagWidth
	}
	if *flagBroker != "" {
		cfg.MQTT.Broker = *flagBroker
	}
	switch *flagHTTP {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = *flagHTTP
	}
	if *flagNoUpload {
		cfg.Upload.Enabled = false
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}

	return cfg, cfg.Validate()
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

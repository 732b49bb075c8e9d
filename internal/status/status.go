// Package status provides a thread-safe status tracker for the machine-monitor daemon.
// It is read by the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/machine-monitor/internal/metrics"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Machine      string
	Threshold    float64
	TickPeriod   time.Duration
	Window       string // "06:00-14:00"
	WorkingDays  []time.Weekday
	ByteWidth    int
	PollInterval time.Duration
	Broker       string
	HTTPAddr     string
	UploadAt     string // empty when uploads are disabled
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	Ready         bool
	LiveCount     int64
	HasTick       bool
	LastTick      metrics.Snapshot
	MQTTConnected bool
	MQTTBuffered  int
	LastError     string
	LastErrorTime time.Time
	LastUpload    time.Time
	UploadError   string
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	count func() int64
	now   func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetCountSource makes Snapshot report the live pulse count from fn.
func (t *Tracker) SetCountSource(fn func() int64) {
	t.mu.Lock()
	t.count = fn
	t.mu.Unlock()
}

// SetReady marks hardware initialization as complete.
func (t *Tracker) SetReady(ready bool) {
	t.mu.Lock()
	t.snap.Ready = ready
	t.mu.Unlock()
}

// Update records the outcome of a tick.
func (t *Tracker) Update(s metrics.Snapshot) {
	t.mu.Lock()
	t.snap.HasTick = true
	t.snap.LastTick = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status and queue depth.
func (t *Tracker) SetMQTTConnected(connected bool, buffered int) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTBuffered = buffered
	t.mu.Unlock()
}

// SetError records the most recent tick failure.
func (t *Tracker) SetError(at time.Time, err error) {
	t.mu.Lock()
	t.snap.LastErrorTime = at
	t.snap.LastError = err.Error()
	t.mu.Unlock()
}

// SetUpload records the outcome of the most recent upload run.
func (t *Tracker) SetUpload(at time.Time, err error) {
	t.mu.Lock()
	t.snap.LastUpload = at
	t.snap.UploadError = ""
	if err != nil {
		t.snap.UploadError = err.Error()
	}
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	count := t.count
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	if count != nil {
		s.LiveCount = count()
	}
	return s
}

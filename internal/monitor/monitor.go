// Package monitor drives the once-a-minute cycle: daily reset, sample,
// classify, log and publish. It is the only place tick errors are recovered.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/machine-monitor/internal/counter"
	"github.com/sweeney/machine-monitor/internal/logic"
	"github.com/sweeney/machine-monitor/internal/metrics"
	"github.com/sweeney/machine-monitor/internal/mqtt"
	"github.com/sweeney/machine-monitor/internal/status"
	"github.com/sweeney/machine-monitor/internal/upload"
)

// Encoder is the part of the quadrature decoder the monitor uses.
type Encoder interface {
	Distance() (float64, error)
	ClearCounter() error
}

// Store persists tick records and tick failures.
type Store interface {
	Append(metrics.Snapshot) error
	LogError(t time.Time, cause error) error
}

// LED is an on/off indicator.
type LED interface {
	Set(on bool) error
}

// Uploader runs the daily upload.
type Uploader interface {
	Run(ctx context.Context, now time.Time) (upload.Result, error)
}

// Options wire a Monitor. Tracker, LogLED, Uploader and Logger are optional.
type Options struct {
	MachineID  int
	ResetAt    logic.TimeOfDay
	Classifier *logic.Classifier
	Encoder    Encoder
	Counter    *counter.Counter
	Store      Store
	Publisher  mqtt.Publisher
	Tracker    *status.Tracker
	LogLED     LED
	Uploader   Uploader
	Logger     *slog.Logger
}

// Monitor owns the classifier and the decoder. Its methods are safe for
// concurrent use; ticks and resets are serialized.
type Monitor struct {
	opts   Options
	log    *slog.Logger
	period int // tick period in minutes

	mu     sync.Mutex
	ledOn  bool
	ledSet bool
}

// New returns a Monitor. Classifier, Encoder, Counter, Store and Publisher are required.
func New(opts Options) *Monitor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	period := 1
	if p := int(opts.Classifier.TickPeriod() / time.Minute); p > 1 {
		period = p
	}
	return &Monitor{
		opts:   opts,
		log:    log.With("machine", mqtt.MachineName(opts.MachineID)),
		period: period,
	}
}

// RunMinute is called once a minute by the scheduler. It runs the daily reset
// at the reset minute, then a tick when the minute falls on the tick period.
// Failures are recorded, never returned.
func (m *Monitor) RunMinute(now time.Time) {
	tod := logic.At(now)
	if tod == m.opts.ResetAt {
		if err := m.Reset(now); err != nil {
			m.recordError(now, fmt.Errorf("daily reset: %w", err))
		}
	}
	if tod.Minutes()%m.period != 0 {
		return
	}
	if err := m.Tick(now); err != nil {
		m.recordError(now, fmt.Errorf("tick: %w", err))
	}
}

// Reset zeroes the pulse count, the encoder's hardware counter and the shift
// totals. It does nothing on a non-working day. If the encoder cannot be
// cleared, the totals are still zeroed but the next delta is measured from the
// encoder's current position.
func (m *Monitor) Reset(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opts.Classifier.Schedule().IsWorkingDay(now) {
		m.log.Info("not a working day, values not reset", "day", now.Weekday())
		return nil
	}

	m.opts.Counter.Reset()
	if err := m.opts.Encoder.ClearCounter(); err != nil {
		// The register still holds the previous position, so measure the
		// first delta from there.
		base := m.opts.Classifier.Totals().LastDistance
		if d, derr := m.opts.Encoder.Distance(); derr == nil {
			base = d
		}
		m.opts.Classifier.ResetFrom(base)
		return fmt.Errorf("clear encoder: %w", err)
	}
	m.opts.Classifier.Reset()
	m.log.Info("shift values reset")
	return nil
}

// Tick samples the pulse count and the encoder, classifies the sample and,
// inside the logging window, appends it to the day's log. Totals advance
// only once the record is written. The snapshot is then published on every
// tick; a publish failure is logged, not returned.
func (m *Monitor) Tick(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.opts.Counter.Value()
	distance, err := m.opts.Encoder.Distance()
	if err != nil {
		return fmt.Errorf("read encoder: %w", err)
	}

	tick := m.opts.Classifier.Evaluate(now, distance)
	snap := metrics.Build(metrics.Input{
		MachineID: m.opts.MachineID,
		Count:     count,
		Tick:      tick,
	})

	if tick.Active {
		if err := m.opts.Store.Append(snap); err != nil {
			return fmt.Errorf("log record: %w", err)
		}
	}
	m.opts.Classifier.Commit(tick)
	m.setLogLED(tick.Active)

	if tick.Active {
		m.log.Debug("logged", "state", snap.State, "count", snap.Count,
			"distance_ft", snap.Distance.StringFixed(metrics.Precision))
	}

	if err := m.opts.Publisher.Publish(metrics.Payload(snap)); err != nil {
		m.log.Warn("publish failed", "error", err)
	}

	if tr := m.opts.Tracker; tr != nil {
		tr.Update(snap)
		m.updateMQTTStatus(tr)
	}
	return nil
}

// Upload runs the daily upload job, recording failures like tick errors.
func (m *Monitor) Upload(ctx context.Context, now time.Time) {
	if m.opts.Uploader == nil {
		return
	}
	res, err := m.opts.Uploader.Run(ctx, now)
	if tr := m.opts.Tracker; tr != nil && !res.Skipped {
		tr.SetUpload(now, err)
	}
	if err != nil {
		m.recordError(now, fmt.Errorf("upload: %w", err))
	}
}

func (m *Monitor) recordError(now time.Time, err error) {
	m.log.Error("cycle failed", "error", err)
	if tr := m.opts.Tracker; tr != nil {
		tr.SetError(now, err)
	}
	if lerr := m.opts.Store.LogError(now, err); lerr != nil {
		m.log.Error("cannot write error log", "error", lerr)
	}
}

func (m *Monitor) setLogLED(on bool) {
	if m.opts.LogLED == nil || (m.ledSet && m.ledOn == on) {
		return
	}
	if err := m.opts.LogLED.Set(on); err != nil {
		m.log.Warn("set logging LED", "error", err)
		return
	}
	m.ledOn, m.ledSet = on, true
}

func (m *Monitor) updateMQTTStatus(tr *status.Tracker) {
	var connected bool
	var buffered int
	if cs, ok := m.opts.Publisher.(mqtt.ConnectionStatus); ok {
		connected = cs.IsConnected()
	}
	if b, ok := m.opts.Publisher.(interface{ Buffered() int }); ok {
		buffered = b.Buffered()
	}
	tr.SetMQTTConnected(connected, buffered)
}

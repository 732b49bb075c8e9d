package monitor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/machine-monitor/internal/counter"
	"github.com/sweeney/machine-monitor/internal/datalog"
	"github.com/sweeney/machine-monitor/internal/encoder"
	"github.com/sweeney/machine-monitor/internal/fault"
	"github.com/sweeney/machine-monitor/internal/gpio"
	"github.com/sweeney/machine-monitor/internal/logic"
	"github.com/sweeney/machine-monitor/internal/metrics"
	"github.com/sweeney/machine-monitor/internal/mqtt"
	"github.com/sweeney/machine-monitor/internal/status"
	"github.com/sweeney/machine-monitor/internal/upload"
)

// Monday 2026-01-05
func monday(h, m int) time.Time {
	return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC)
}

type rig struct {
	mon        *Monitor
	conn       *encoder.FakeConn
	decoder    *encoder.Decoder
	counter    *counter.Counter
	classifier *logic.Classifier
	store      *datalog.Store
	pub        *mqtt.FakePublisher
	tracker    *status.Tracker
	led        *gpio.FakeLED
}

func newRig(t *testing.T, mutate ...func(*Options)) *rig {
	t.Helper()
	r := &rig{
		conn:       encoder.NewFakeConn(0),
		counter:    &counter.Counter{},
		classifier: logic.NewClassifier(30, time.Minute, logic.DefaultSchedule()),
		store:      datalog.New(t.TempDir(), "machine2"),
		pub:        mqtt.NewFakePublisher(),
		tracker:    status.NewTracker(monday(5, 0), status.Config{Machine: "machine2"}),
		led:        &gpio.FakeLED{},
	}
	d, err := encoder.New(r.conn, r.conn, 4, encoder.Options{Sleep: func(time.Duration) {}})
	require.NoError(t, err)
	r.decoder = d

	opts := Options{
		MachineID:  2,
		ResetAt:    logic.TimeOfDay{Hour: 6},
		Classifier: r.classifier,
		Encoder:    r.decoder,
		Counter:    r.counter,
		Store:      r.store,
		Publisher:  r.pub,
		Tracker:    r.tracker,
		LogLED:     r.led,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	r.mon = New(opts)
	return r
}

func (r *rig) setFeet(ft float64) {
	r.conn.Raw = uint32(ft * encoder.DefaultCountsPerFoot)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

type failingEncoder struct{ err error }

func (f failingEncoder) Distance() (float64, error) { return 0, f.err }
func (f failingEncoder) ClearCounter() error        { return f.err }

// stuckClearEncoder reads normally but cannot clear its counter.
type stuckClearEncoder struct{ Encoder }

func (stuckClearEncoder) ClearCounter() error { return errors.New("clear: no ack") }

type failingStore struct {
	err    error
	logged []error
}

func (f *failingStore) Append(metrics.Snapshot) error { return f.err }
func (f *failingStore) LogError(_ time.Time, cause error) error {
	f.logged = append(f.logged, cause)
	return nil
}

type fakeUploader struct {
	res   upload.Result
	err   error
	calls int
}

func (f *fakeUploader) Run(context.Context, time.Time) (upload.Result, error) {
	f.calls++
	return f.res, f.err
}

func TestTickInsideWindowLogsAndPublishes(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 12; i++ {
		r.counter.Increment()
	}
	r.setFeet(35)

	require.NoError(t, r.mon.Tick(monday(7, 0)))

	assert.Equal(t, logic.StateRunning, r.classifier.State())
	tot := r.classifier.Totals()
	assert.Equal(t, 1, tot.TotalShiftMinutes)
	assert.Equal(t, 1, tot.TotalOperationMinutes)
	assert.Equal(t, 35.0, tot.LastDistance)

	lines := readLines(t, r.store.SensorFile(monday(7, 0)))
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(metrics.Header, ","), lines[0])
	assert.Equal(t, "01-05-2026,07:00:00,12,12.00,12.00,35.00,0:00:00,0:01:00,0:01:00,1,1", lines[1])

	require.Len(t, r.pub.Published(), 1)
	assert.Equal(t, "2$RUNNING$2026-01-05 07:00:00.000000$12$12.00$12.00$35.00$0$1$1", r.pub.Published()[0])

	assert.True(t, r.led.On())
	snap := r.tracker.Snapshot()
	assert.True(t, snap.HasTick)
	assert.True(t, snap.MQTTConnected)
}

func TestTickDownWhenBelowThreshold(t *testing.T) {
	r := newRig(t)
	r.setFeet(100)
	require.NoError(t, r.mon.Tick(monday(7, 0)))
	r.setFeet(110)
	require.NoError(t, r.mon.Tick(monday(7, 1)))

	assert.Equal(t, logic.StateDown, r.classifier.State())
	tot := r.classifier.Totals()
	assert.Equal(t, 2, tot.TotalShiftMinutes)
	assert.Equal(t, 1, tot.DownMinutes)
	assert.Equal(t, tot.TotalShiftMinutes, tot.TotalOperationMinutes+tot.DownMinutes)
	assert.Len(t, readLines(t, r.store.SensorFile(monday(7, 0))), 3)
}

func TestTickOutsideWindow(t *testing.T) {
	r := newRig(t)
	r.setFeet(500)

	require.NoError(t, r.mon.Tick(monday(15, 0)))

	assert.Equal(t, logic.StateOff, r.classifier.State())
	assert.Equal(t, logic.ShiftTotals{}, r.classifier.Totals())
	_, err := os.Stat(r.store.SensorFile(monday(15, 0)))
	assert.True(t, os.IsNotExist(err))

	require.Len(t, r.pub.Published(), 1)
	assert.True(t, strings.HasPrefix(r.pub.Published()[0], "2$OFF$"))
	assert.False(t, r.led.On())
}

func TestTickEncoderFailure(t *testing.T) {
	r := newRig(t)
	r.conn.TxError = errors.New("spi timeout")

	err := r.mon.Tick(monday(7, 0))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.HardwareIO))
	assert.Equal(t, logic.ShiftTotals{}, r.classifier.Totals())
	assert.Empty(t, r.pub.Published())
}

func TestTickStoreFailureDoesNotCommit(t *testing.T) {
	store := &failingStore{err: fault.Wrap(fault.FileSystem, "write", errors.New("disk full"))}
	r := newRig(t, func(o *Options) { o.Store = store })
	r.setFeet(40)

	err := r.mon.Tick(monday(7, 0))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.FileSystem))
	assert.Equal(t, logic.ShiftTotals{}, r.classifier.Totals())
	assert.Equal(t, logic.StateOff, r.classifier.State())
	assert.Empty(t, r.pub.Published())
}

func TestTickPublishFailureIsNotAnError(t *testing.T) {
	r := newRig(t)
	r.pub.PublishError = errors.New("broker gone")
	r.setFeet(40)

	require.NoError(t, r.mon.Tick(monday(7, 0)))
	assert.Equal(t, 1, r.classifier.Totals().TotalShiftMinutes)
}

func TestRunMinuteRecordsErrors(t *testing.T) {
	r := newRig(t)
	r.conn.TxError = errors.New("spi timeout")

	r.mon.RunMinute(monday(7, 0))

	b, err := os.ReadFile(r.store.ErrorFile(monday(7, 0)))
	require.NoError(t, err)
	body := string(b)
	assert.Contains(t, body, strings.Repeat("*", 40))
	assert.Contains(t, body, "Timestamp: 2026-01-05 07:00:00.000000")
	assert.Contains(t, body, "spi timeout")

	snap := r.tracker.Snapshot()
	assert.Contains(t, snap.LastError, "spi timeout")

	// The next tick runs normally once the fault clears.
	r.conn.TxError = nil
	r.mon.RunMinute(monday(7, 1))
	assert.Equal(t, 1, r.classifier.Totals().TotalShiftMinutes)
}

func TestResetOnWorkingDay(t *testing.T) {
	r := newRig(t)
	r.counter.Increment()
	r.setFeet(50)
	require.NoError(t, r.mon.Tick(monday(7, 0)))
	require.NotZero(t, r.classifier.Totals().TotalShiftMinutes)

	require.NoError(t, r.mon.Reset(monday(6, 0).AddDate(0, 0, 1)))

	assert.Zero(t, r.counter.Value())
	assert.Zero(t, r.conn.Raw)
	assert.Equal(t, logic.ShiftTotals{}, r.classifier.Totals())
}

func TestResetSkipsNonWorkingDay(t *testing.T) {
	r := newRig(t)
	r.counter.Increment()
	r.setFeet(50)
	require.NoError(t, r.mon.Tick(monday(7, 0)))

	saturday := monday(6, 0).AddDate(0, 0, 5)
	require.NoError(t, r.mon.Reset(saturday))

	assert.Equal(t, int64(1), r.counter.Value())
	assert.Equal(t, uint32(50000), r.conn.Raw)
	assert.Equal(t, 1, r.classifier.Totals().TotalShiftMinutes)
}

func TestResetEncoderFailure(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Encoder = failingEncoder{err: errors.New("spi timeout")} })
	r.counter.Increment()

	err := r.mon.Reset(monday(6, 0))
	require.Error(t, err)
	assert.Zero(t, r.counter.Value())
	assert.Equal(t, logic.ShiftTotals{}, r.classifier.Totals())
}

func TestResetClearFailureKeepsEncoderBaseline(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Encoder = stuckClearEncoder{o.Encoder} })
	// Yesterday ended at 5000 ft and the register was never cleared.
	r.setFeet(5000)

	r.mon.RunMinute(monday(6, 0))

	assert.Equal(t, logic.StateDown, r.classifier.State(), "stale position must not count as travel")
	tot := r.classifier.Totals()
	assert.Equal(t, 1, tot.TotalShiftMinutes)
	assert.Equal(t, 1, tot.DownMinutes)
	assert.Equal(t, 5000.0, tot.LastDistance)

	lines := readLines(t, r.store.ErrorFile(monday(6, 0)))
	assert.Contains(t, strings.Join(lines, "\n"), "clear: no ack")

	r.setFeet(5040)
	r.mon.RunMinute(monday(6, 1))
	assert.Equal(t, logic.StateRunning, r.classifier.State())
}

func TestRunMinuteResetsBeforeTick(t *testing.T) {
	r := newRig(t)
	// Yesterday's leftovers.
	for i := 0; i < 5; i++ {
		r.counter.Increment()
	}
	r.setFeet(1000)

	r.mon.RunMinute(monday(6, 0))

	tot := r.classifier.Totals()
	assert.Equal(t, 1, tot.TotalShiftMinutes)
	assert.Equal(t, 1, tot.DownMinutes)
	assert.Equal(t, logic.StateDown, r.classifier.State())
	require.Len(t, r.pub.Published(), 1)
	assert.Equal(t, "2$DOWN$2026-01-05 06:00:00.000000$0$0.00$0.00$0.00$1$1$0", r.pub.Published()[0])
}

func TestRunMinuteHonoursTickPeriod(t *testing.T) {
	r := newRig(t, func(o *Options) {
		o.Classifier = logic.NewClassifier(30, 2*time.Minute, logic.DefaultSchedule())
	})

	r.mon.RunMinute(monday(7, 1))
	assert.Empty(t, r.pub.Published())

	r.mon.RunMinute(monday(7, 2))
	require.Len(t, r.pub.Published(), 1)
	assert.Equal(t, 2, r.mon.opts.Classifier.Totals().TotalShiftMinutes)
}

func TestLogLEDSetOnlyOnChange(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.mon.Tick(monday(7, 0)))
	require.NoError(t, r.mon.Tick(monday(7, 1)))
	require.NoError(t, r.mon.Tick(monday(14, 1)))
	require.NoError(t, r.mon.Tick(monday(14, 2)))

	assert.Equal(t, []bool{true, false}, r.led.States)
}

func TestUpload(t *testing.T) {
	up := &fakeUploader{}
	r := newRig(t, func(o *Options) { o.Uploader = up })

	r.mon.Upload(context.Background(), monday(14, 1))
	assert.Equal(t, 1, up.calls)
	snap := r.tracker.Snapshot()
	assert.Equal(t, monday(14, 1), snap.LastUpload)
	assert.Empty(t, snap.UploadError)

	up.err = errors.New("quota exceeded")
	r.mon.Upload(context.Background(), monday(14, 1))
	assert.Equal(t, "quota exceeded", r.tracker.Snapshot().UploadError)

	b, err := os.ReadFile(r.store.ErrorFile(monday(14, 1)))
	require.NoError(t, err)
	assert.Contains(t, string(b), "quota exceeded")
}

func TestUploadSkippedDayNotRecorded(t *testing.T) {
	up := &fakeUploader{res: upload.Result{Skipped: true}}
	r := newRig(t, func(o *Options) { o.Uploader = up })

	r.mon.Upload(context.Background(), monday(14, 1).AddDate(0, 0, 5))
	assert.True(t, r.tracker.Snapshot().LastUpload.IsZero())
}

func TestUploadWithoutUploader(t *testing.T) {
	r := newRig(t)
	r.mon.Upload(context.Background(), monday(14, 1))
	assert.True(t, r.tracker.Snapshot().LastUpload.IsZero())
}

// Package logic contains pure business logic for machine activity tracking.
// This package has NO external dependencies (no GPIO, SPI, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the classified activity of the machine.
type State string

const (
	StateRunning State = "RUNNING"
	StateDown    State = "DOWN"
	StateOff     State = "OFF"
)

// ShiftTotals accumulates time over one working day.
//
// TotalShiftMinutes == TotalOperationMinutes + DownMinutes after every tick
// since the last reset.
type ShiftTotals struct {
	TotalShiftMinutes     int
	TotalOperationMinutes int
	DownMinutes           int
	ShiftDuration         time.Duration
	OperationDuration     time.Duration
	// LastDistance is the encoder distance seen on the previous classified tick.
	LastDistance float64
}

// DownDuration returns the accumulated down time.
func (t ShiftTotals) DownDuration() time.Duration {
	return t.ShiftDuration - t.OperationDuration
}

// Tick is the outcome of classifying one sample. It is not applied until
// passed to Classifier.Commit.
type Tick struct {
	Time     time.Time
	Active   bool // inside the logging window on a working day
	State    State
	Distance float64
	Delta    float64
	Totals   ShiftTotals
}

// CyclesPerMinute divides count by minutes, returning 0 when minutes is 0.
func CyclesPerMinute(count int64, minutes int) float64 {
	if minutes == 0 {
		return 0
	}
	return float64(count) / float64(minutes)
}

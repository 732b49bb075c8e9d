package logic

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At returns the TimeOfDay of t, discarding seconds.
func At(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// CheckInInterval reports whether now lies in [start, end]. When start is
// after end the interval spans midnight.
func CheckInInterval(start, end, now TimeOfDay) bool {
	s, e, n := start.Minutes(), end.Minutes(), now.Minutes()
	if s <= e {
		return n >= s && n <= e
	}
	return n >= s || n <= e
}

// Window is a daily logging window, inclusive on both ends.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return CheckInInterval(w.Start, w.End, At(t))
}

// Schedule combines the logging window with the working days.
type Schedule struct {
	Window      Window
	WorkingDays []time.Weekday
}

// IsWorkingDay reports whether t falls on a configured working day.
func (s Schedule) IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	for _, d := range s.WorkingDays {
		if d == wd {
			return true
		}
	}
	return false
}

// Active reports whether sampling is enabled at t.
func (s Schedule) Active(t time.Time) bool {
	return s.IsWorkingDay(t) && s.Window.Contains(t)
}

// Weekdays is Monday through Friday.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// DefaultSchedule logs 06:00-14:00, Monday to Friday.
func DefaultSchedule() Schedule {
	return Schedule{
		Window: Window{
			Start: TimeOfDay{Hour: 6},
			End:   TimeOfDay{Hour: 14},
		},
		WorkingDays: append([]time.Weekday(nil), Weekdays...),
	}
}

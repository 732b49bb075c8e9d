package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the first line of every daily log file.
var Header = []string{
	"Date",
	"Time",
	"Total Cycle Count",
	"Cycles Per Minute By Operation Time",
	"Cycles Per Minute By Shift Time",
	"Encoder Count (ft)",
	"Down Time",
	"Operation Time (shift time-downtime)",
	"Shift time",
	"Total Shift Time (minutes)",
	"Total Operation Time (minutes)",
}

// Date and time layouts used in records and payloads.
const (
	DateLayout      = "01-02-2006"
	TimeLayout      = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05.000000"
)

// PayloadSeparator joins payload fields.
const PayloadSeparator = "$"

// Record returns the log file fields for s, in Header order.
func Record(s Snapshot) []string {
	t := s.Totals
	return []string{
		s.Time.Format(DateLayout),
		s.Time.Format(TimeLayout),
		strconv.FormatInt(s.Count, 10),
		s.CPMByOperation.StringFixed(Precision),
		s.CPMByShift.StringFixed(Precision),
		s.Distance.StringFixed(Precision),
		FormatDuration(time.Duration(t.DownMinutes) * time.Minute),
		FormatDuration(t.OperationDuration),
		FormatDuration(t.ShiftDuration),
		strconv.Itoa(t.TotalShiftMinutes),
		strconv.Itoa(t.TotalOperationMinutes),
	}
}

// Payload returns the MQTT message body for s.
func Payload(s Snapshot) string {
	t := s.Totals
	return strings.Join([]string{
		strconv.Itoa(s.MachineID),
		string(s.State),
		s.Time.Format(TimestampLayout),
		strconv.FormatInt(s.Count, 10),
		s.CPMByOperation.StringFixed(Precision),
		s.CPMByShift.StringFixed(Precision),
		s.Distance.StringFixed(Precision),
		strconv.Itoa(t.DownMinutes),
		strconv.Itoa(t.TotalShiftMinutes),
		strconv.Itoa(t.TotalOperationMinutes),
	}, PayloadSeparator)
}

// FormatDuration renders d as H:MM:SS, prefixed with "N day(s), " past 24h.
func FormatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	neg := d < 0
	if neg {
		d = -d
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60

	out := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch {
	case days == 1:
		out = "1 day, " + out
	case days > 1:
		out = fmt.Sprintf("%d days, %s", days, out)
	}
	if neg {
		out = "-" + out
	}
	return out
}

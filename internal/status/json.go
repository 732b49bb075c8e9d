package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/machine-monitor/internal/metrics"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Machine       string       `json:"machine"`
	Ready         bool         `json:"ready"`
	LiveCount     int64        `json:"live_count"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastTick      *TickJSON    `json:"last_tick,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	LastError     *EventJSON   `json:"last_error,omitempty"`
	LastUpload    *EventJSON   `json:"last_upload,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// TickJSON is the JSON representation of the last tick.
type TickJSON struct {
	Timestamp         string `json:"timestamp"`
	State             string `json:"state"`
	Logged            bool   `json:"logged"`
	Count             int64  `json:"count"`
	CPMByOperation    string `json:"cpm_by_operation"`
	CPMByShift        string `json:"cpm_by_shift"`
	DistanceFt        string `json:"distance_ft"`
	DeltaFt           string `json:"delta_ft"`
	DownMinutes       int    `json:"down_minutes"`
	ShiftMinutes      int    `json:"shift_minutes"`
	OperationMinutes  int    `json:"operation_minutes"`
	OperationDuration string `json:"operation_duration"`
	ShiftDuration     string `json:"shift_duration"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// EventJSON is a timestamped outcome.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Threshold   float64  `json:"threshold_ft"`
	TickSeconds int64    `json:"tick_seconds"`
	Window      string   `json:"window"`
	WorkingDays []string `json:"working_days"`
	ByteWidth   int      `json:"byte_width"`
	PollMs      int64    `json:"poll_ms"`
	Broker      string   `json:"broker"`
	HTTPAddr    string   `json:"http_addr"`
	UploadAt    string   `json:"upload_at,omitempty"`
}

func buildTick(s metrics.Snapshot) *TickJSON {
	return &TickJSON{
		Timestamp:         s.Time.Format(metrics.TimestampLayout),
		State:             string(s.State),
		Logged:            s.Logged,
		Count:             s.Count,
		CPMByOperation:    s.CPMByOperation.StringFixed(metrics.Precision),
		CPMByShift:        s.CPMByShift.StringFixed(metrics.Precision),
		DistanceFt:        s.Distance.StringFixed(metrics.Precision),
		DeltaFt:           s.Delta.StringFixed(metrics.Precision),
		DownMinutes:       s.Totals.DownMinutes,
		ShiftMinutes:      s.Totals.TotalShiftMinutes,
		OperationMinutes:  s.Totals.TotalOperationMinutes,
		OperationDuration: metrics.FormatDuration(s.Totals.OperationDuration),
		ShiftDuration:     metrics.FormatDuration(s.Totals.ShiftDuration),
	}
}

func buildInner(snap Snapshot) StatusInner {
	days := make([]string, 0, len(snap.Config.WorkingDays))
	for _, d := range snap.Config.WorkingDays {
		days = append(days, d.String()[:3])
	}

	inner := StatusInner{
		Machine:       snap.Config.Machine,
		Ready:         snap.Ready,
		LiveCount:     snap.LiveCount,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
		},
		Config: ConfigJSON{
			Threshold:   snap.Config.Threshold,
			TickSeconds: int64(snap.Config.TickPeriod.Seconds()),
			Window:      snap.Config.Window,
			WorkingDays: days,
			ByteWidth:   snap.Config.ByteWidth,
			PollMs:      snap.Config.PollInterval.Milliseconds(),
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			UploadAt:    snap.Config.UploadAt,
		},
	}
	if snap.HasTick {
		inner.LastTick = buildTick(snap.LastTick)
	}
	if !snap.LastErrorTime.IsZero() {
		inner.LastError = &EventJSON{
			Timestamp: snap.LastErrorTime.UTC().Format(time.RFC3339),
			Error:     snap.LastError,
		}
	}
	if !snap.LastUpload.IsZero() {
		inner.LastUpload = &EventJSON{
			Timestamp: snap.LastUpload.UTC().Format(time.RFC3339),
			Error:     snap.UploadError,
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

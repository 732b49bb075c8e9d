package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/machine-monitor/internal/metrics"
	"github.com/sweeney/machine-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"hms":   metrics.FormatDuration,
	"fixed": func(v interface{ StringFixed(int32) string }) string { return v.StringFixed(metrics.Precision) },
	"stateClass": func(s string) string {
		switch s {
		case "RUNNING":
			return "running"
		case "DOWN":
			return "down"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="60">
<title>{{.Config.Machine}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.down { color: red; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Machine}}</h1>

<h2>Machine</h2>
<table>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Live count</th><td id="live-count">{{.LiveCount}}</td></tr>
{{with .Tick}}<tr><th>State</th><td id="state" class="{{stateClass (printf "%s" .State)}}">{{.State}}</td></tr>
<tr><th>Last tick</th><td>{{.Time.Format "2006-01-02 15:04:05"}}{{if not .Logged}} (not logged){{end}}</td></tr>
<tr><th>Cycle count</th><td>{{.Count}}</td></tr>
<tr><th>CPM (operation)</th><td>{{fixed .CPMByOperation}}</td></tr>
<tr><th>CPM (shift)</th><td>{{fixed .CPMByShift}}</td></tr>
<tr><th>Encoder (ft)</th><td>{{fixed .Distance}}</td></tr>
<tr><th>Travel this tick (ft)</th><td>{{fixed .Delta}}</td></tr>
<tr><th>Operation time</th><td>{{hms .Totals.OperationDuration}}</td></tr>
<tr><th>Down time</th><td>{{hms .Totals.DownDuration}}</td></tr>
<tr><th>Shift time</th><td>{{hms .Totals.ShiftDuration}}</td></tr>
{{else}}<tr><th>State</th><td id="state" class="off">waiting for first tick</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Queued</th><td>{{.MQTTBuffered}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Window</th><td>{{.Config.Window}} {{range $i, $d := .Config.WorkingDays}}{{if $i}},{{end}}{{printf "%.3s" $d.String}}{{end}}</td></tr>
<tr><th>Threshold</th><td>{{.Config.Threshold}} ft/tick</td></tr>
<tr><th>Upload</th><td>{{if .Config.UploadAt}}{{.Config.UploadAt}}{{else}}disabled{{end}}</td></tr>
{{if not .LastUpload.IsZero}}<tr><th>Last upload</th><td>{{.LastUpload.Format "2006-01-02 15:04"}}{{if .UploadError}} failed: {{.UploadError}}{{end}}</td></tr>{{end}}
{{if .LastError}}<tr><th>Last error</th><td class="disconnected">{{.LastErrorTime.Format "2006-01-02 15:04"}} {{.LastError}}</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Tick   *metrics.Snapshot
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if snap.HasTick {
		data.Tick = &snap.LastTick
	}
	indexTmpl.Execute(w, data)
}

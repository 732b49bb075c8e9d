// Package metrics assembles the per-tick snapshot handed to the log file and
// the MQTT publisher, and renders it in both wire formats.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweeney/machine-monitor/internal/logic"
)

// Precision is the number of decimal places kept for display fields.
const Precision = 2

// Input is the raw material for one snapshot.
type Input struct {
	MachineID int
	Count     int64
	Tick      logic.Tick
}

// Snapshot is an immutable record of one tick.
type Snapshot struct {
	MachineID      int               `json:"machine_id"`
	Time           time.Time         `json:"time"`
	State          logic.State       `json:"state"`
	Logged         bool              `json:"logged"`
	Count          int64             `json:"count"`
	CPMByOperation decimal.Decimal   `json:"cpm_by_operation"`
	CPMByShift     decimal.Decimal   `json:"cpm_by_shift"`
	Distance       decimal.Decimal   `json:"distance_ft"`
	Delta          decimal.Decimal   `json:"delta_ft"`
	Totals         logic.ShiftTotals `json:"-"`
}

// Build packs in into a Snapshot, rounding display fields to Precision.
// Rates are computed from the tick's totals, so they include this tick.
func Build(in Input) Snapshot {
	t := in.Tick
	return Snapshot{
		MachineID:      in.MachineID,
		Time:           t.Time,
		State:          t.State,
		Logged:         t.Active,
		Count:          in.Count,
		CPMByOperation: round(logic.CyclesPerMinute(in.Count, t.Totals.TotalOperationMinutes)),
		CPMByShift:     round(logic.CyclesPerMinute(in.Count, t.Totals.TotalShiftMinutes)),
		Distance:       round(t.Distance),
		Delta:          round(t.Delta),
		Totals:         t.Totals,
	}
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Precision)
}

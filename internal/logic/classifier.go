package logic

import "time"

// DefaultThreshold is the travel, in feet per tick, above which the machine
// counts as running.
const DefaultThreshold = 30.0

// Classifier derives RUNNING/DOWN/OFF from successive encoder distances and
// owns the day's ShiftTotals. Not safe for concurrent use.
type Classifier struct {
	threshold  float64
	tickPeriod time.Duration
	schedule   Schedule

	state  State
	totals ShiftTotals
}

// NewClassifier creates a classifier in the OFF state with zero totals.
// A negative threshold or a non-positive tick period selects the default.
// A threshold of 0 counts any forward travel as running.
func NewClassifier(threshold float64, tickPeriod time.Duration, schedule Schedule) *Classifier {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if tickPeriod <= 0 {
		tickPeriod = time.Minute
	}
	return &Classifier{
		threshold:  threshold,
		tickPeriod: tickPeriod,
		schedule:   schedule,
		state:      StateOff,
	}
}

// Schedule returns the classifier's logging schedule.
func (c *Classifier) Schedule() Schedule {
	return c.schedule
}

// TickPeriod returns the time credited per classified tick.
func (c *Classifier) TickPeriod() time.Duration {
	return c.tickPeriod
}

// State returns the state set by the last committed tick.
func (c *Classifier) State() State {
	return c.state
}

// Totals returns a copy of the current totals.
func (c *Classifier) Totals() ShiftTotals {
	return c.totals
}

// Evaluate classifies a sample taken at now without changing the classifier.
// Outside the schedule the result is OFF with the totals untouched.
func (c *Classifier) Evaluate(now time.Time, distance float64) Tick {
	t := Tick{Time: now, Distance: distance, Totals: c.totals, State: StateOff}
	if !c.schedule.Active(now) {
		return t
	}
	t.Active = true
	t.State, t.Delta, t.Totals = classify(c.totals, distance, c.threshold, c.tickPeriod)
	return t
}

// Commit applies a tick produced by Evaluate.
func (c *Classifier) Commit(t Tick) {
	c.state = t.State
	if t.Active {
		c.totals = t.Totals
	}
}

// Tick evaluates and commits a sample, returning the state and distance delta.
func (c *Classifier) Tick(now time.Time, distance float64) (State, float64) {
	t := c.Evaluate(now, distance)
	c.Commit(t)
	return t.State, t.Delta
}

// ClassifyTick applies the running/down rule to distance without the
// schedule check, advancing LastDistance.
func (c *Classifier) ClassifyTick(distance float64) (State, float64) {
	state, delta, totals := classify(c.totals, distance, c.threshold, c.tickPeriod)
	c.state = state
	c.totals = totals
	return state, delta
}

// Reset zeroes the totals, including LastDistance.
func (c *Classifier) Reset() {
	c.totals = ShiftTotals{}
}

// ResetFrom zeroes the totals and measures the next delta from distance.
func (c *Classifier) ResetFrom(distance float64) {
	c.totals = ShiftTotals{LastDistance: distance}
}

// CPMByOperation returns cycles per minute of operation time.
func (c *Classifier) CPMByOperation(count int64) float64 {
	return CyclesPerMinute(count, c.totals.TotalOperationMinutes)
}

// CPMByShift returns cycles per minute of shift time.
func (c *Classifier) CPMByShift(count int64) float64 {
	return CyclesPerMinute(count, c.totals.TotalShiftMinutes)
}

func classify(t ShiftTotals, distance, threshold float64, period time.Duration) (State, float64, ShiftTotals) {
	minutes := int(period / time.Minute)
	delta := distance - t.LastDistance

	t.TotalShiftMinutes += minutes
	t.ShiftDuration += period

	state := StateDown
	if delta > threshold {
		state = StateRunning
		t.TotalOperationMinutes += minutes
		t.OperationDuration += period
	} else {
		t.DownMinutes += minutes
	}

	t.LastDistance = distance
	return state, delta, t
}

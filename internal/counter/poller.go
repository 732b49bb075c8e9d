package counter

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/sweeney/machine-monitor/internal/gpio"
)

// Poller samples a sensor input and increments a Counter once per detection.
//
// A detection is registered on the transition from not-detected to detected
// and re-armed when the input returns to idle. There is no minimum hold time,
// so electrical noise shorter than the poll interval can add counts.
type Poller struct {
	Reader   gpio.Reader
	Counter  *Counter
	Interval time.Duration // 0 polls in a tight loop
	Logger   *slog.Logger

	detected bool
}

// Run polls until ctx is done and returns ctx's error.
func (p *Poller) Run(ctx context.Context) error {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	var ticker *time.Ticker
	if p.Interval > 0 {
		ticker = time.NewTicker(p.Interval)
		defer ticker.Stop()
	}

	failing := false
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
		}

		on, err := p.Reader.Read()
		if err != nil {
			if !failing {
				log.Error("sensor read failed", "error", err)
				failing = true
			}
			continue
		}
		if failing {
			log.Info("sensor read recovered")
			failing = false
		}
		p.Sample(on)
	}
}

// Sample applies one input reading and reports whether it registered a detection.
func (p *Poller) Sample(on bool) bool {
	switch {
	case on && !p.detected:
		p.Counter.Increment()
		p.detected = true
		return true
	case !on && p.detected:
		p.detected = false
	}
	return false
}

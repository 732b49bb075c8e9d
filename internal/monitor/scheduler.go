package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sweeney/machine-monitor/internal/logic"
)

// EveryMinute fires at second zero of every minute.
const EveryMinute = "* * * * *"

// DailyAt returns a cron spec firing once a day at t.
func DailyAt(t logic.TimeOfDay) string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

// Scheduler fires Monitor.RunMinute every minute and, if UploadAt is set,
// Monitor.Upload once a day.
type Scheduler struct {
	cron    *cron.Cron
	monitor *Monitor
	loc     *time.Location
	log     *slog.Logger
	now     func() time.Time

	// upload jobs run under this context so Run can cancel retries.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the minute job and, when uploadAt is non-nil, the
// daily upload job, in loc.
func NewScheduler(m *Monitor, loc *time.Location, uploadAt *logic.TimeOfDay, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		monitor: m,
		loc:     loc,
		log:     log,
		now:     time.Now,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(EveryMinute, s.minute); err != nil {
		return nil, fmt.Errorf("schedule tick: %w", err)
	}
	if uploadAt != nil {
		if _, err := s.cron.AddFunc(DailyAt(*uploadAt), s.upload); err != nil {
			return nil, fmt.Errorf("schedule upload: %w", err)
		}
	}
	return s, nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done. Running jobs are
// allowed to finish; pending upload retries are cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started", "location", s.loc.String(), "jobs", s.Entries())

	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) minute() {
	s.monitor.RunMinute(s.now().In(s.loc).Truncate(time.Minute))
}

func (s *Scheduler) upload() {
	s.monitor.Upload(s.ctx, s.now().In(s.loc))
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sweeney/machine-monitor/internal/datalog"
	"github.com/sweeney/machine-monitor/internal/logic"
)

// Result summarises one run of the daily job.
type Result struct {
	Skipped  bool     // not a working day
	Uploaded []string // remote paths written
	Missing  []string // local files that did not exist
	Pruned   int
}

// Job uploads one machine's files for the day and prunes old ones.
type Job struct {
	Store     *datalog.Store
	Storage   Storage
	Schedule  logic.Schedule
	Machine   string
	Retention int
	Retry     ExponentialBackoff
	Logger    *slog.Logger
}

// Run uploads the readings file and the error log for the day of now. A
// missing file is skipped. Old files are pruned only when every present file
// was uploaded.
func (j *Job) Run(ctx context.Context, now time.Time) (Result, error) {
	log := j.logger()
	var res Result

	if !j.Schedule.IsWorkingDay(now) {
		log.Debug("upload skipped, not a working day", "day", now.Weekday())
		res.Skipped = true
		return res, nil
	}

	files := []struct {
		local, dir string
	}{
		{j.Store.SensorFile(now), datalog.SensorDirName},
		{j.Store.ErrorFile(now), datalog.ErrorDirName},
	}

	var errs []error
	for _, f := range files {
		if _, err := os.Stat(f.local); errors.Is(err, fs.ErrNotExist) {
			log.Info("nothing to upload", "file", f.local)
			res.Missing = append(res.Missing, f.local)
			continue
		}

		remote := path.Join("/", j.Machine, f.dir, filepath.Base(f.local))
		err := j.Retry.Start(ctx, "upload "+remote, func(ctx context.Context) (bool, error) {
			err := j.put(ctx, f.local, remote)
			return !IsPermanent(err), err
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info("uploaded", "file", f.local, "remote", remote)
		res.Uploaded = append(res.Uploaded, remote)
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	keep := j.Retention
	if keep <= 0 {
		keep = datalog.DefaultRetention
	}
	n, err := j.Store.Prune(keep)
	res.Pruned = n
	if err != nil {
		return res, err
	}
	if n > 0 {
		log.Info("pruned old log files", "removed", n, "keep", keep)
	}
	return res, nil
}

func (j *Job) put(ctx context.Context, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return Permanent(fmt.Errorf("open %s: %w", local, err))
	}
	defer f.Close()
	return j.Storage.Put(ctx, remote, f)
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

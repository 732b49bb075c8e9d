// Package datalog writes the daily sensor-readings and error-log files and
// prunes old ones.
package datalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sweeney/machine-monitor/internal/fault"
	"github.com/sweeney/machine-monitor/internal/metrics"
)

// Directory and file naming.
const (
	SensorDirName   = "sensor-readings"
	ErrorDirName    = "error-log"
	FileDateLayout  = "01-02-06"
	errorFilePrefix = "errorlog "
)

// DefaultRetention is the number of daily files kept in each directory.
const DefaultRetention = 365

// Store owns the log directories of one machine.
type Store struct {
	dir string
}

// New returns a Store rooted at root/machine.
func New(root, machine string) *Store {
	return &Store{dir: filepath.Join(root, machine)}
}

// Dir returns the machine directory.
func (s *Store) Dir() string {
	return s.dir
}

// SensorFile returns the readings file for the day of t.
func (s *Store) SensorFile(t time.Time) string {
	return filepath.Join(s.dir, SensorDirName, t.Format(FileDateLayout)+".txt")
}

// ErrorFile returns the error log for the day of t.
func (s *Store) ErrorFile(t time.Time) string {
	return filepath.Join(s.dir, ErrorDirName, errorFilePrefix+t.Format(FileDateLayout)+".txt")
}

// Append writes snap to its day's readings file, preceded by the header when
// the file is new or empty. The record is written with a single call.
func (s *Store) Append(snap metrics.Snapshot) error {
	path := s.SensorFile(snap.Time)
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fault.Wrap(fault.FileSystem, "stat "+path, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		w.Write(metrics.Header)
	}
	w.Write(metrics.Record(snap))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fault.Wrap(fault.FileSystem, "write "+path, err)
	}
	return nil
}

// LogError appends a timestamped entry for cause to the error log of the day of t.
func (s *Store) LogError(t time.Time, cause error) error {
	path := s.ErrorFile(t)
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(strings.Repeat("*", 40))
	fmt.Fprintf(&b, "\nTimestamp: %s\n", t.Format(metrics.TimestampLayout))
	for _, k := range []fault.Kind{fault.HardwareIO, fault.FileSystem, fault.ResourceState} {
		if fault.Is(cause, k) {
			fmt.Fprintf(&b, "Kind: %s\n", k)
		}
	}
	fmt.Fprintf(&b, "Error: %v\n", cause)

	if _, err := f.WriteString(b.String()); err != nil {
		return fault.Wrap(fault.FileSystem, "write "+path, err)
	}
	return nil
}

// Prune removes the oldest files from both directories until at most keep
// remain in each. Missing directories are skipped.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must be >= 0, got %d", keep)
	}
	var removed int
	for _, name := range []string{SensorDirName, ErrorDirName} {
		n, err := prune(filepath.Join(s.dir, name), keep)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func prune(dir string, keep int) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fault.Wrap(fault.FileSystem, "read "+dir, err)
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fault.Wrap(fault.FileSystem, "stat "+e.Name(), err)
		}
		files = append(files, file{filepath.Join(dir, e.Name()), info.ModTime()})
	}
	if len(files) <= keep {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	var removed int
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err != nil {
			return removed, fault.Wrap(fault.FileSystem, "remove "+f.path, err)
		}
		removed++
	}
	return removed, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Wrap(fault.FileSystem, "create "+filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fault.Wrap(fault.FileSystem, "open "+path, err)
	}
	return f, nil
}

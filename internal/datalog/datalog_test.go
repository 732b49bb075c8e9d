package datalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/machine-monitor/internal/fault"
	"github.com/sweeney/machine-monitor/internal/logic"
	"github.com/sweeney/machine-monitor/internal/metrics"
)

func snapAt(t time.Time, count int64) metrics.Snapshot {
	return metrics.Build(metrics.Input{
		MachineID: 2,
		Count:     count,
		Tick: logic.Tick{
			Time:   t,
			Active: true,
			State:  logic.StateDown,
			Totals: logic.ShiftTotals{TotalShiftMinutes: 1, DownMinutes: 1, ShiftDuration: time.Minute},
		},
	})
}

func TestPaths(t *testing.T) {
	s := New("/data", "machine2")
	day := time.Date(2026, 7, 8, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "/data/machine2", s.Dir())
	assert.Equal(t, "/data/machine2/sensor-readings/07-08-26.txt", s.SensorFile(day))
	assert.Equal(t, "/data/machine2/error-log/errorlog 07-08-26.txt", s.ErrorFile(day))
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	day := time.Date(2026, 7, 8, 6, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(snapAt(day, 1)))
	require.NoError(t, s.Append(snapAt(day.Add(time.Minute), 2)))

	data, err := os.ReadFile(s.SensorFile(day))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(metrics.Header, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "07-08-2026,06:00:00,1,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "07-08-2026,06:01:00,2,"), lines[2])
}

func TestAppendHeaderForEmptyExistingFile(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	day := time.Date(2026, 7, 8, 6, 0, 0, 0, time.UTC)

	path := s.SensorFile(day)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, s.Append(snapAt(day, 1)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Date,Time,"))
}

func TestAppendNewFilePerDay(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	day1 := time.Date(2026, 7, 8, 13, 59, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	require.NoError(t, s.Append(snapAt(day1, 1)))
	require.NoError(t, s.Append(snapAt(day2, 1)))

	assert.FileExists(t, s.SensorFile(day1))
	assert.FileExists(t, s.SensorFile(day2))
}

func TestAppendFileSystemError(t *testing.T) {
	root := t.TempDir()
	// A regular file where the machine directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(root, "machine2"), []byte("x"), 0o644))

	s := New(root, "machine2")
	err := s.Append(snapAt(time.Now(), 1))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.FileSystem))
}

func TestLogError(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	ts := time.Date(2026, 7, 8, 10, 4, 0, 500000000, time.UTC)

	cause := fmt.Errorf("read encoder: %w", fault.Wrap(fault.HardwareIO, "read counter", errors.New("spi timeout")))
	require.NoError(t, s.LogError(ts, cause))
	require.NoError(t, s.LogError(ts.Add(time.Minute), errors.New("second")))

	data, err := os.ReadFile(s.ErrorFile(ts))
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "\n\n"+strings.Repeat("*", 40)+"\nTimestamp: 2026-07-08 10:04:00.500000\n"))
	assert.Contains(t, text, "Kind: hardware I/O\n")
	assert.Contains(t, text, "spi timeout")
	assert.Contains(t, text, "Error: second\n")
	assert.Equal(t, 2, strings.Count(text, "Timestamp: "))
}

func TestPrune(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var paths []string
	for i := 0; i < 5; i++ {
		day := base.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, s.Append(snapAt(day, 1)))
		path := s.SensorFile(day)
		require.NoError(t, os.Chtimes(path, day, day))
		paths = append(paths, path)
	}
	require.NoError(t, s.LogError(base, errors.New("boom")))

	removed, err := s.Prune(3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	for _, p := range paths[2:] {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, s.ErrorFile(base))
}

func TestPruneMissingDirs(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	removed, err := s.Prune(DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPruneRejectsNegativeKeep(t *testing.T) {
	s := New(t.TempDir(), "machine2")
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(snapAt(day, 1)))

	_, err := s.Prune(-1)
	require.Error(t, err)
	assert.FileExists(t, s.SensorFile(day))
}

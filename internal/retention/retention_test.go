package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
)

type fakeRetentionStore struct {
	mu      sync.Mutex
	rows    int64
	err     error
	cutoffs []time.Time
}

func (s *fakeRetentionStore) DeleteCapturesBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	if s.err != nil {
		return 0, s.err
	}
	return s.rows, nil
}

func (s *fakeRetentionStore) lastCutoff() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cutoffs) == 0 {
		return time.Time{}
	}
	return s.cutoffs[len(s.cutoffs)-1]
}

func newTestManager(t *testing.T, st *fakeRetentionStore) (*Manager, string, *events.Bus) {
	t.Helper()

	dataDir := t.TempDir()
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	m := NewManager(model.RetentionConfig{Days: 10}, dataDir, st, bus, zerolog.Nop())
	m.now = func() time.Time {
		return time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	}
	m.diskUsage = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{UsedPercent: 42}, nil
	}
	return m, dataDir, bus
}

func mkDayDir(t *testing.T, dataDir, day string) {
	t.Helper()
	dir := filepath.Join(dataDir, day)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cap.bin"), []byte{1, 2, 3}, 0644))
}

func TestManager_SweepPrunesExpiredDayDirs(t *testing.T) {
	st := &fakeRetentionStore{rows: 5}
	m, dataDir, _ := newTestManager(t, st)

	mkDayDir(t, dataDir, "2026-08-01") // expired
	mkDayDir(t, dataDir, "2026-08-10") // expired, last day outside the window
	mkDayDir(t, dataDir, "2026-08-11") // first day inside the window
	mkDayDir(t, dataDir, "2026-08-21") // today
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "notes"), 0755))

	dirs, rows, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, dirs)
	assert.EqualValues(t, 5, rows)

	wantCutoff := time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
	assert.True(t, st.lastCutoff().Equal(wantCutoff), "cutoff = %v, want %v", st.lastCutoff(), wantCutoff)

	for _, gone := range []string{"2026-08-01", "2026-08-10"} {
		_, statErr := os.Stat(filepath.Join(dataDir, gone))
		assert.True(t, os.IsNotExist(statErr), "%s should be pruned", gone)
	}
	for _, kept := range []string{"2026-08-11", "2026-08-21", "notes"} {
		_, statErr := os.Stat(filepath.Join(dataDir, kept))
		assert.NoError(t, statErr, "%s should survive", kept)
	}

	stats := m.Stats()
	assert.EqualValues(t, 1, stats.Sweeps)
	assert.EqualValues(t, 2, stats.DirsPruned)
	assert.EqualValues(t, 5, stats.RowsDeleted)
	assert.InDelta(t, 0.42, stats.DiskUsedPct, 1e-9)
	assert.False(t, stats.LastSweep.IsZero())
}

func TestManager_SweepRaisesDiskPressure(t *testing.T) {
	st := &fakeRetentionStore{}
	m, _, bus := newTestManager(t, st)
	m.diskUsage = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{UsedPercent: 95}, nil
	}

	received := make(chan events.Event, 1)
	unsub := bus.Subscribe(events.EventDiskPressure, func(e events.Event) {
		select {
		case received <- e:
		default:
		}
	})
	defer unsub()

	_, _, err := m.Sweep(context.Background())
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.InDelta(t, 0.95, e.Data["used"], 1e-9)
		assert.InDelta(t, 0.90, e.Data["threshold"], 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no disk pressure event")
	}
}

func TestManager_SweepQuietBelowThreshold(t *testing.T) {
	st := &fakeRetentionStore{}
	m, _, bus := newTestManager(t, st)

	var fired sync.Map
	unsub := bus.Subscribe(events.EventDiskPressure, func(e events.Event) {
		fired.Store("hit", true)
	})
	defer unsub()

	_, _, err := m.Sweep(context.Background())
	require.NoError(t, err)

	// Event delivery is asynchronous; give a wrongly published event time
	// to land before declaring silence.
	time.Sleep(100 * time.Millisecond)
	_, hit := fired.Load("hit")
	assert.False(t, hit, "disk pressure fired at 42%% usage")
}

func TestManager_SweepStoreErrorPropagates(t *testing.T) {
	st := &fakeRetentionStore{err: errors.New("database is locked")}
	m, dataDir, _ := newTestManager(t, st)
	mkDayDir(t, dataDir, "2026-01-01")

	dirs, _, err := m.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	// Directory pruning happened before the store failed.
	assert.EqualValues(t, 1, dirs)
}

func TestManager_StartRunsInitialSweep(t *testing.T) {
	st := &fakeRetentionStore{}
	m, dataDir, _ := newTestManager(t, st)
	m.now = time.Now
	mkDayDir(t, dataDir, "2000-01-01")

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		m.Close()
	})

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dataDir, "2000-01-01"))
		return os.IsNotExist(err) && m.Stats().Sweeps >= 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(model.RetentionConfig{}, t.TempDir(), &fakeRetentionStore{}, events.NewBus(1), zerolog.Nop())
	assert.Equal(t, DefaultDays, m.days)
	assert.Equal(t, DefaultSweepInterval, m.interval)
	assert.InDelta(t, DefaultDiskThreshold, m.threshold, 1e-9)
}

// Package retention prunes aged capture data and watches disk headroom on
// the capture volume.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
)

const (
	// DefaultDays is the capture retention window.
	DefaultDays = 10
	// DefaultSweepInterval is how often the pruning pass runs.
	DefaultSweepInterval = time.Hour
	// DefaultDiskThreshold is the used-fraction above which disk pressure
	// is raised.
	DefaultDiskThreshold = 0.90
)

// dayLayout names the per-day capture directories.
const dayLayout = "2006-01-02"

// Store deletes capture rows that fell out of the retention window.
type Store interface {
	DeleteCapturesBefore(cutoff time.Time) (int64, error)
}

// Stats is a point-in-time view of sweeper activity.
type Stats struct {
	LastSweep   time.Time `json:"last_sweep"`
	Sweeps      int64     `json:"sweeps"`
	DirsPruned  int64     `json:"dirs_pruned"`
	RowsDeleted int64     `json:"rows_deleted"`
	DiskUsedPct float64   `json:"disk_used_pct"`
}

// Manager owns the periodic retention sweep. Day directories strictly older
// than the window are removed wholesale along with their store rows; disk
// usage past the threshold raises a pressure event but never an error.
type Manager struct {
	dataDir string
	store   Store
	bus     *events.Bus
	log     zerolog.Logger

	days      int
	interval  time.Duration
	threshold float64
	now       func() time.Time
	diskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)

	ticker *time.Ticker
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastSweep time.Time
	lastUsage float64

	sweeps      atomic.Int64
	dirsPruned  atomic.Int64
	rowsDeleted atomic.Int64
}

// NewManager wires a sweeper over the capture data directory. Zero config
// values fall back to the defaults.
func NewManager(cfg model.RetentionConfig, dataDir string, st Store, bus *events.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		dataDir:   dataDir,
		store:     st,
		bus:       bus,
		log:       log.With().Str("component", "retention").Logger(),
		days:      cfg.Days,
		interval:  time.Duration(cfg.SweepIntervalSec) * time.Second,
		threshold: cfg.DiskThreshold,
		now:       time.Now,
		diskUsage: disk.UsageWithContext,
	}
	if m.days <= 0 {
		m.days = DefaultDays
	}
	if m.interval <= 0 {
		m.interval = DefaultSweepInterval
	}
	if m.threshold <= 0 {
		m.threshold = DefaultDiskThreshold
	}
	return m
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.run(ctx)
	m.log.Info().
		Int("days", m.days).
		Dur("interval", m.interval).
		Msg("retention sweeper started")
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	if _, _, err := m.Sweep(ctx); err != nil {
		m.log.Error().Err(err).Msg("retention sweep")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			if _, _, err := m.Sweep(ctx); err != nil {
				m.log.Error().Err(err).Msg("retention sweep")
			}
		}
	}
}

// Close stops the ticker and waits for an in-flight sweep to finish.
func (m *Manager) Close() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.wg.Wait()
}

// Sweep prunes day directories and capture rows strictly older than the
// retention window, then checks disk headroom. A directory that fails to
// delete is logged and skipped; the sweep keeps going.
func (m *Manager) Sweep(ctx context.Context) (dirs, rows int64, err error) {
	now := m.now().UTC()
	cutoff := now.AddDate(0, 0, -m.days).Truncate(24 * time.Hour)

	entries, readErr := os.ReadDir(m.dataDir)
	if readErr != nil && !os.IsNotExist(readErr) {
		return 0, 0, readErr
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, parseErr := time.ParseInLocation(dayLayout, entry.Name(), time.UTC)
		if parseErr != nil {
			// Not a day directory. Leave it alone.
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(m.dataDir, entry.Name())
		if rmErr := os.RemoveAll(path); rmErr != nil {
			m.log.Error().Err(rmErr).Str("dir", path).Msg("prune capture dir")
			continue
		}
		dirs++
		m.log.Info().Str("dir", path).Msg("pruned capture dir")
	}

	rows, err = m.store.DeleteCapturesBefore(cutoff)
	if err != nil {
		return dirs, rows, err
	}

	m.sweeps.Add(1)
	m.dirsPruned.Add(dirs)
	m.rowsDeleted.Add(rows)
	m.mu.Lock()
	m.lastSweep = now
	m.mu.Unlock()

	m.checkDiskPressure(ctx)

	if dirs > 0 || rows > 0 {
		m.log.Info().
			Int64("dirs", dirs).
			Int64("rows", rows).
			Time("cutoff", cutoff).
			Msg("retention sweep pruned expired captures")
	}
	return dirs, rows, nil
}

func (m *Manager) checkDiskPressure(ctx context.Context) {
	usage, err := m.diskUsage(ctx, m.dataDir)
	if err != nil {
		m.log.Warn().Err(err).Msg("disk usage check failed")
		return
	}
	used := usage.UsedPercent / 100

	m.mu.Lock()
	m.lastUsage = used
	m.mu.Unlock()

	if used < m.threshold {
		return
	}
	m.log.Warn().
		Float64("used", used).
		Float64("threshold", m.threshold).
		Str("path", m.dataDir).
		Msg("capture volume over disk threshold")
	m.bus.Publish(events.EventDiskPressure, map[string]interface{}{
		"path":      m.dataDir,
		"used":      used,
		"threshold": m.threshold,
	})
}

// Stats reports sweeper activity since start.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		LastSweep:   m.lastSweep,
		Sweeps:      m.sweeps.Load(),
		DirsPruned:  m.dirsPruned.Load(),
		RowsDeleted: m.rowsDeleted.Load(),
		DiskUsedPct: m.lastUsage,
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hqmon/argusd/internal/acd"
	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/store"
)

// DefaultDebounce collapses instrument write bursts into one sweep.
const DefaultDebounce = 500 * time.Millisecond

// Store is the persistence surface the watcher needs to apply a response.
type Store interface {
	GetOrder(id string) (*model.Order, error)
	SaveOrder(o *model.Order) error
	SaveSnapshot(s *model.SystemSnapshot) error
	SaveMeasurements(orderID string, points []model.MeasurementPoint) error
	SaveFrequencyList(l *model.FrequencyList) error
	SaveTransmitterList(l *model.TransmitterList) error
}

// WatcherConfig carries the outbox and archive locations.
type WatcherConfig struct {
	OutboxDir     string
	ArchiveDir    string // processed responses
	QuarantineDir string // undecodable responses
	Debounce      time.Duration
}

// ResponseWatcher collects response documents from the instrument outbox.
// Events from fsnotify only schedule a sweep; the sweep itself lists the
// outbox and consumes every response file present, so missed events and
// files dropped while the daemon was down are picked up the same way.
type ResponseWatcher struct {
	cfg   WatcherConfig
	codec *acd.Codec
	store Store
	bus   *events.Bus
	audit *events.AuditLogger
	log   zerolog.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	sweepMu sync.Mutex

	processed atomic.Int64
	failures  atomic.Int64
}

func NewResponseWatcher(cfg WatcherConfig, codec *acd.Codec, st Store, bus *events.Bus, audit *events.AuditLogger, log zerolog.Logger) *ResponseWatcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &ResponseWatcher{
		cfg:   cfg,
		codec: codec,
		store: st,
		bus:   bus,
		audit: audit,
		log:   log,
	}
}

// Start begins watching the outbox. The caller should run an initial Sweep
// afterwards to consume files that arrived while the daemon was down.
func (w *ResponseWatcher) Start(ctx context.Context) error {
	for _, dir := range []string{w.cfg.OutboxDir, w.cfg.ArchiveDir, w.cfg.QuarantineDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.cfg.OutboxDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.cfg.OutboxDir, err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.eventLoop(ctx)
	return nil
}

// Close stops the watcher and waits for the event loop to drain.
func (w *ResponseWatcher) Close() {
	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *ResponseWatcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsResponseFile(filepath.Base(event.Name)) {
				continue
			}
			w.log.Debug().Str("op", event.Op.String()).Str("file", event.Name).Msg("outbox event")
			w.scheduleSweep()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleSweep resets the debounce timer so one sweep serves a whole burst
// of instrument writes.
func (w *ResponseWatcher) scheduleSweep() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.cfg.Debounce, func() {
		w.Sweep()
	})
}

// Sweep consumes every response file currently in the outbox and returns
// how many were processed (archived or quarantined). Sweeps are serialized;
// a file that fails to persist stays in the outbox for the next sweep.
func (w *ResponseWatcher) Sweep() int {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	entries, err := os.ReadDir(w.cfg.OutboxDir)
	if err != nil {
		w.log.Error().Err(err).Msg("read outbox")
		return 0
	}

	consumed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsResponseFile(entry.Name()) {
			continue
		}
		if w.consume(filepath.Join(w.cfg.OutboxDir, entry.Name())) {
			consumed++
		}
	}
	return consumed
}

// consume processes one response document. It returns true when the file
// left the outbox, whether archived or quarantined.
func (w *ResponseWatcher) consume(path string) bool {
	name := filepath.Base(path)
	fileID, _, _ := ParseExchangeFilename(name)

	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Error().Err(err).Str("file", name).Msg("read response")
		return false
	}

	res, err := w.codec.DecodeResponse(data)
	if err != nil {
		w.quarantine(path, name, err)
		return true
	}
	if res.OrderID != fileID {
		w.log.Warn().
			Str("file", name).
			Str("file_order_id", fileID).
			Str("order_id", res.OrderID).
			Msg("response filename does not match document order id")
	}

	order, err := w.store.GetOrder(res.OrderID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		w.log.Error().Err(err).Str("order_id", res.OrderID).Msg("load order")
		return false
	}

	archivePath := filepath.Join(w.cfg.ArchiveDir, name)

	if order == nil {
		// A response we never asked for. Keep the document, skip the
		// order update.
		w.log.Warn().Str("order_id", res.OrderID).Str("file", name).Msg("response for unknown order")
		w.auditLog("response_unknown_order", map[string]interface{}{
			"order_id": res.OrderID,
			"file":     name,
		})
		if err := os.Rename(path, archivePath); err != nil {
			w.log.Error().Err(err).Str("file", name).Msg("archive response")
			return false
		}
		w.processed.Add(1)
		return true
	}

	if err := w.apply(order, res, archivePath); err != nil {
		w.log.Error().Err(err).Str("order_id", order.ID).Msg("apply response")
		return false
	}

	if err := os.Rename(path, archivePath); err != nil {
		w.log.Error().Err(err).Str("file", name).Msg("archive response")
		return false
	}

	w.processed.Add(1)
	w.log.Info().
		Str("order_id", order.ID).
		Str("state", string(order.State)).
		Bool("failed", res.Failed()).
		Msg("response processed")
	w.bus.Publish(events.EventOrderUpdated, map[string]interface{}{
		"order_id": order.ID,
		"state":    string(order.State),
		"failed":   res.Failed(),
	})
	w.auditLog("response_processed", map[string]interface{}{
		"order_id": order.ID,
		"state":    string(order.State),
		"file":     name,
	})
	return true
}

// apply folds a decoded response into the order row and persists any
// payload it carried. The newest response always wins; transitions outside
// the expected lifecycle are logged but still applied, since the instrument
// is the authority on order state.
func (w *ResponseWatcher) apply(order *model.Order, res *acd.Result, archivePath string) error {
	if err := model.ValidateOrderTransition(order.State, res.State); err != nil {
		w.log.Warn().
			Str("order_id", order.ID).
			Str("from", string(order.State)).
			Str("to", string(res.State)).
			Msg("unexpected state transition")
	}

	now := time.Now().UTC()
	order.State = res.State
	order.Error = res.Err
	order.ResponseFile = archivePath
	if model.IsTerminalOrderState(order.State) && order.CompletedAt == nil {
		order.CompletedAt = &now
	}

	if res.Snapshot != nil {
		if err := w.store.SaveSnapshot(res.Snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if len(res.Measurements) > 0 {
		if err := w.store.SaveMeasurements(order.ID, res.Measurements); err != nil {
			return fmt.Errorf("save measurements: %w", err)
		}
	}
	if len(res.Frequencies) > 0 {
		list := &model.FrequencyList{OrderID: order.ID, Name: order.Name, CreatedAt: now, Entries: res.Frequencies}
		if err := w.store.SaveFrequencyList(list); err != nil {
			return fmt.Errorf("save frequency list: %w", err)
		}
	}
	if len(res.Transmitters) > 0 {
		list := &model.TransmitterList{OrderID: order.ID, Name: order.Name, CreatedAt: now, Entries: res.Transmitters}
		if err := w.store.SaveTransmitterList(list); err != nil {
			return fmt.Errorf("save transmitter list: %w", err)
		}
	}

	return w.store.SaveOrder(order)
}

// quarantine moves an undecodable document aside with a timestamp suffix so
// repeated failures never collide.
func (w *ResponseWatcher) quarantine(path, name string, decodeErr error) {
	w.failures.Add(1)
	quarantineName := fmt.Sprintf("%s.%s.corrupt", name, time.Now().Format("20060102T150405"))
	quarantinePath := filepath.Join(w.cfg.QuarantineDir, quarantineName)

	if err := os.Rename(path, quarantinePath); err != nil {
		w.log.Error().Err(err).Str("file", name).Msg("quarantine response")
		return
	}

	w.log.Warn().Err(decodeErr).Str("file", name).Str("quarantined", quarantineName).Msg("response quarantined")
	w.bus.Publish(events.EventResponseQuarantined, map[string]interface{}{
		"file":  name,
		"error": decodeErr.Error(),
	})
	w.auditLog("response_quarantined", map[string]interface{}{
		"file":  name,
		"error": decodeErr.Error(),
	})
}

func (w *ResponseWatcher) auditLog(eventType string, details map[string]interface{}) {
	if w.audit == nil {
		return
	}
	if err := w.audit.Log(eventType, details); err != nil {
		w.log.Error().Err(err).Str("event", eventType).Msg("audit write")
	}
}

// Processed returns how many responses were consumed since startup.
func (w *ResponseWatcher) Processed() int64 {
	return w.processed.Load()
}

// DecodeFailures returns how many responses were quarantined since startup.
func (w *ResponseWatcher) DecodeFailures() int64 {
	return w.failures.Load()
}

// Package daemon composes the argusd components and owns their lifecycle:
// store, exchange transport, scheduler, capture listener, retention, and
// the control socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hqmon/argusd/internal/acd"
	"github.com/hqmon/argusd/internal/capture"
	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/lock"
	"github.com/hqmon/argusd/internal/logging"
	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/retention"
	"github.com/hqmon/argusd/internal/scheduler"
	"github.com/hqmon/argusd/internal/store"
	"github.com/hqmon/argusd/internal/transport"
	"github.com/hqmon/argusd/internal/uds"
)

// auditMaxSize caps the audit log before rotation.
const auditMaxSize = 50 * 1024 * 1024

// runtimePaths resolves every configured location against the .argusd
// root. Relative config paths are joined; absolute paths pass through, so
// inbox/outbox can live on a mounted instrument share.
type runtimePaths struct {
	inbox            string
	outbox           string
	archiveOrders    string
	archiveResponses string
	quarantine       string
	captures         string
	storePath        string
	socket           string
	lockFile         string
	auditLog         string
	logDir           string
}

func resolvePaths(argusDir string, cfg model.Config) runtimePaths {
	rel := func(p, def string) string {
		if p == "" {
			p = def
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(argusDir, p)
	}

	archive := rel(cfg.Exchange.ArchiveDir, "archive")
	return runtimePaths{
		inbox:            rel(cfg.Exchange.InboxDir, filepath.Join("exchange", "inbox")),
		outbox:           rel(cfg.Exchange.OutboxDir, filepath.Join("exchange", "outbox")),
		archiveOrders:    filepath.Join(archive, "orders"),
		archiveResponses: filepath.Join(archive, "responses"),
		quarantine:       filepath.Join(archive, "quarantine"),
		captures:         rel(cfg.Capture.DataDir, "captures"),
		storePath:        rel(cfg.Store.Path, filepath.Join("store", "argusd.db")),
		socket:           filepath.Join(argusDir, uds.DefaultSocketName),
		lockFile:         filepath.Join(argusDir, "argusd.lock"),
		auditLog:         filepath.Join(argusDir, "logs", "audit.jsonl"),
		logDir:           filepath.Join(argusDir, "logs"),
	}
}

// Daemon is the argusd service object.
type Daemon struct {
	argusDir string
	config   model.Config
	paths    runtimePaths
	log      zerolog.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	server   *uds.Server

	store     *store.Store
	bus       *events.Bus
	audit     *events.AuditLogger
	codec     *acd.Codec
	ids       *model.IDGenerator
	submitter *transport.Submitter
	watcher   *transport.ResponseWatcher
	engine    *scheduler.Engine
	listener  *capture.Listener
	sweeper   *retention.Manager

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	shutdown  sync.Once
}

// New creates a daemon logging to .argusd/logs/daemon.log.
func New(argusDir string, cfg model.Config) (*Daemon, error) {
	if cfg.Capture.Port == 0 {
		cfg.Capture.Port = capture.DefaultPort
	}
	logPath := filepath.Join(argusDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	return newDaemon(argusDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor; tests supply their own log writer.
func newDaemon(argusDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	paths := resolvePaths(argusDir, cfg)
	logger := logging.NewWithWriter(cfg.Logging, w)

	d := &Daemon{
		argusDir: argusDir,
		config:   cfg,
		paths:    paths,
		log:      logger,
		logFile:  closer,
		fileLock: lock.NewFileLock(paths.lockFile),
		server:   uds.NewServer(paths.socket, logger),
		bus:      events.NewBus(256),
		codec:    acd.NewCodec(cfg.Order, cfg.Capabilities),
		ids:      model.NewIDGenerator(),
		ctx:      ctx,
		cancel:   cancel,
	}
	return d, nil
}

// Run starts every component and blocks until a shutdown signal arrives.
func (d *Daemon) Run() error {
	if err := d.start(); err != nil {
		return err
	}
	d.waitSignals()
	return nil
}

// start brings the daemon up without blocking. Separated from Run so tests
// can drive a live daemon and shut it down themselves. Once the lock is
// held, every failure path unwinds through Shutdown; a lock failure returns
// untouched so a running daemon's socket is never removed.
func (d *Daemon) start() error {
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.startedAt = time.Now().UTC()
	d.log.Info().Int("pid", os.Getpid()).Str("dir", d.argusDir).Msg("daemon starting")

	for _, dir := range []string{
		d.paths.inbox, d.paths.outbox,
		d.paths.archiveOrders, d.paths.archiveResponses, d.paths.quarantine,
		d.paths.captures, filepath.Dir(d.paths.storePath), d.paths.logDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			d.Shutdown()
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	st, err := store.Open(d.paths.storePath)
	if err != nil {
		d.Shutdown()
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st

	audit, err := events.NewAuditLogger(d.paths.auditLog, auditMaxSize)
	if err != nil {
		d.Shutdown()
		return fmt.Errorf("open audit log: %w", err)
	}
	d.audit = audit

	d.submitter = transport.NewSubmitter(d.paths.inbox, d.paths.archiveOrders, d.codec, d.log)

	d.watcher = transport.NewResponseWatcher(transport.WatcherConfig{
		OutboxDir:     d.paths.outbox,
		ArchiveDir:    d.paths.archiveResponses,
		QuarantineDir: d.paths.quarantine,
		Debounce:      time.Duration(d.config.Exchange.WatcherDebounceSec * float64(time.Second)),
	}, d.codec, d.store, d.bus, d.audit, d.log)

	d.engine = scheduler.NewEngine(d.config.Scheduler, d.store, d.asSubmitter(), d.ids, d.bus, d.audit, d.log)

	captureCfg := d.config.Capture
	captureCfg.DataDir = d.paths.captures
	d.listener = capture.NewListener(captureCfg, d.codec, d.store, d.bus, d.audit, d.log)

	d.sweeper = retention.NewManager(d.config.Retention, d.paths.captures, d.store, d.bus, d.log)

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.Shutdown()
		return fmt.Errorf("start control socket: %w", err)
	}

	if err := d.watcher.Start(d.ctx); err != nil {
		d.Shutdown()
		return fmt.Errorf("start response watcher: %w", err)
	}
	// Anything the instrument dropped off while we were down is picked up
	// before the event-driven loop takes over.
	if n := d.watcher.Sweep(); n > 0 {
		d.log.Info().Int("processed", n).Msg("initial outbox sweep")
	}

	d.engine.Start(d.ctx)
	if err := d.listener.Start(d.ctx); err != nil {
		d.Shutdown()
		return fmt.Errorf("start capture listener: %w", err)
	}
	d.sweeper.Start(d.ctx)

	d.auditLog("daemon_started", map[string]interface{}{"pid": os.Getpid()})
	d.log.Info().Msg("daemon ready")
	return nil
}

// errorResponse maps a service error to its control-protocol code.
func errorResponse(err error) *uds.Response {
	var inv *InvalidError
	var dup *DuplicateError
	switch {
	case errors.As(err, &inv):
		return uds.ErrorResponse(uds.ErrCodeValidation, inv.Reason)
	case errors.As(err, &dup):
		return uds.ErrorResponse(uds.ErrCodeDuplicate, dup.Reason)
	case errors.Is(err, store.ErrNotFound):
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	case errors.Is(err, scheduler.ErrNotActive),
		errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrDebounced):
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	default:
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
}

// registerHandlers registers the UDS request handlers.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log.Info().Msg("shutdown requested via control socket")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	d.server.Handle("status", d.handleStatus)
	d.server.Handle("metrics", d.handleMetrics)
	d.server.Handle("snapshot_latest", d.handleSnapshotLatest)

	d.server.Handle("order_submit", d.handleOrderSubmit)
	d.server.Handle("order_get", d.handleOrderGet)
	d.server.Handle("order_list", d.handleOrderList)
	d.server.Handle("check_responses", d.handleCheckResponses)

	d.server.Handle("amm_list", d.handleAMMList)
	d.server.Handle("amm_create", d.handleAMMCreate)
	d.server.Handle("amm_get", d.handleAMMGet)
	d.server.Handle("amm_start", d.handleAMMStart)
	d.server.Handle("amm_stop", d.handleAMMStop)
	d.server.Handle("amm_pause", d.handleAMMPause)
	d.server.Handle("amm_execute", d.handleAMMExecute)
}

func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")

	// A second signal skips the drain.
	go func() {
		<-sigCh
		d.log.Warn().Msg("second signal, forcing exit")
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown stops every component, newest consumer first, and releases the
// lock. Idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log.Info().Msg("shutdown started")
		d.cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if d.engine != nil {
				d.engine.Close()
			}
			if d.sweeper != nil {
				d.sweeper.Close()
			}
			if d.listener != nil {
				d.listener.Close()
			}
			if d.watcher != nil {
				d.watcher.Close()
			}
			if d.server != nil {
				_ = d.server.Stop()
			}
		}()

		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}
		select {
		case <-done:
			d.log.Info().Msg("components drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.log.Warn().Int("timeout_sec", timeout).Msg("shutdown timeout, some operations may be incomplete")
		}

		d.auditLog("daemon_stopped", nil)
		if d.store != nil {
			_ = d.store.Close()
		}
		if d.audit != nil {
			_ = d.audit.Close()
		}
		if d.bus != nil {
			d.bus.Close()
		}
		d.fileLock.Unlock()
		if d.logFile != nil {
			_ = d.logFile.Close()
		}
	})
}

func (d *Daemon) auditLog(eventType string, details map[string]interface{}) {
	if d.audit == nil {
		return
	}
	if err := d.audit.Log(eventType, details); err != nil {
		d.log.Warn().Err(err).Msg("audit log write failed")
	}
}

// Package capture receives realtime instrument datagrams over UDP,
// persists the raw bytes, and classifies each payload as a spectrum
// frame, an I/Q sample burst, an XML response, or unknown.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hqmon/argusd/internal/acd"
	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
)

// DefaultPort is the instrument's realtime data port.
const DefaultPort = 4090

const (
	// maxDatagram bounds a single UDP read. Instrument frames stay well
	// under the 64 KiB UDP limit.
	maxDatagram = 64 * 1024
	// pollInterval is the read deadline used to keep the loop responsive
	// to shutdown.
	pollInterval = 100 * time.Millisecond
)

// Store persists capture records.
type Store interface {
	SaveCapture(rec *model.CaptureRecord) error
}

// Listener owns the UDP socket and the receive loop.
type Listener struct {
	cfg   model.CaptureConfig
	codec *acd.Codec
	store Store
	bus   *events.Bus
	audit *events.AuditLogger
	log   zerolog.Logger

	conn *net.UDPConn
	wg   sync.WaitGroup

	received  atomic.Int64
	unparsed  atomic.Int64
	readErrs  atomic.Int64
	recvBytes atomic.Int64
}

// NewListener wires a listener. The socket is not opened until Start.
func NewListener(cfg model.CaptureConfig, codec *acd.Codec, st Store, bus *events.Bus, audit *events.AuditLogger, log zerolog.Logger) *Listener {
	return &Listener{
		cfg:   cfg,
		codec: codec,
		store: st,
		bus:   bus,
		audit: audit,
		log:   log.With().Str("component", "capture").Logger(),
	}
}

// Start binds the UDP socket and launches the receive loop. Port 0 binds an
// ephemeral port; configuration loading applies the instrument default
// before the daemon gets here.
func (l *Listener) Start(ctx context.Context) error {
	if err := os.MkdirAll(l.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create capture data dir: %w", err)
	}

	addr := &net.UDPAddr{Port: l.cfg.Port}
	if l.cfg.Bind != "" {
		ip := net.ParseIP(l.cfg.Bind)
		if ip == nil {
			return fmt.Errorf("invalid capture bind address %q", l.cfg.Bind)
		}
		addr.IP = ip
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if l.cfg.ReadBufferKiB > 0 {
		if err := conn.SetReadBuffer(l.cfg.ReadBufferKiB * 1024); err != nil {
			l.log.Warn().Err(err).Int("kib", l.cfg.ReadBufferKiB).Msg("set udp read buffer")
		}
	}
	l.conn = conn

	l.wg.Add(1)
	go l.readLoop(ctx)

	l.log.Info().Str("addr", conn.LocalAddr().String()).Msg("capture listener started")
	return nil
}

// Addr reports the bound address. Nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close stops the socket and waits for the receive loop to drain.
func (l *Listener) Close() {
	if l.conn != nil {
		l.conn.Close()
	}
	l.wg.Wait()
}

func (l *Listener) readLoop(ctx context.Context) {
	defer l.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			l.log.Error().Err(err).Msg("set read deadline")
			return
		}

		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.readErrs.Add(1)
			l.log.Error().Err(err).Msg("udp read")
			continue
		}

		// The buffer is reused on the next read; hand a copy downstream.
		data := make([]byte, n)
		copy(data, buf[:n])
		l.handle(data, addr)
	}
}

// handle persists and classifies one datagram. Raw bytes reach disk before
// any parse attempt so a classification bug can never lose data.
func (l *Listener) handle(data []byte, addr *net.UDPAddr) {
	now := time.Now().UTC()
	rec := &model.CaptureRecord{
		ID:         uuid.NewString(),
		Source:     addr.String(),
		ReceivedAt: now,
		SizeBytes:  len(data),
	}
	l.received.Add(1)
	l.recvBytes.Add(int64(len(data)))

	rawFile, err := l.persistRaw(rec.ID, now, data)
	if err != nil {
		l.log.Error().Err(err).Str("capture_id", rec.ID).Msg("persist raw capture")
	}
	rec.RawFile = rawFile

	Classify(l.codec, data, rec)
	if !rec.Parsed {
		l.unparsed.Add(1)
	}

	if err := l.store.SaveCapture(rec); err != nil {
		l.log.Error().Err(err).Str("capture_id", rec.ID).Msg("save capture record")
	}

	l.log.Debug().
		Str("capture_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("source", rec.Source).
		Int("size_bytes", rec.SizeBytes).
		Bool("parsed", rec.Parsed).
		Msg("capture received")

	l.bus.Publish(events.EventCaptureReceived, map[string]interface{}{
		"capture_id": rec.ID,
		"type":       string(rec.Type),
		"source":     rec.Source,
		"size_bytes": rec.SizeBytes,
		"parsed":     rec.Parsed,
	})
	l.auditLog("capture_received", map[string]interface{}{
		"capture_id": rec.ID,
		"type":       string(rec.Type),
		"size_bytes": rec.SizeBytes,
	})
}

// persistRaw writes the datagram under a per-day directory so retention can
// drop whole days at once.
func (l *Listener) persistRaw(id string, ts time.Time, data []byte) (string, error) {
	dir := filepath.Join(l.cfg.DataDir, ts.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create capture day dir: %w", err)
	}
	path := filepath.Join(dir, id+".bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write raw capture: %w", err)
	}
	return path, nil
}

func (l *Listener) auditLog(eventType string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Log(eventType, details); err != nil {
		l.log.Warn().Err(err).Msg("audit log write failed")
	}
}

// Received reports the number of datagrams accepted since start.
func (l *Listener) Received() int64 { return l.received.Load() }

// Unparsed reports how many datagrams matched no known layout.
func (l *Listener) Unparsed() int64 { return l.unparsed.Load() }

// ReadErrors reports non-timeout socket read failures.
func (l *Listener) ReadErrors() int64 { return l.readErrs.Load() }

// BytesReceived reports the total payload bytes accepted since start.
func (l *Listener) BytesReceived() int64 { return l.recvBytes.Load() }

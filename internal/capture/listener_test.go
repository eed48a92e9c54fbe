package capture

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
)

type fakeCaptureStore struct {
	mu      sync.Mutex
	records []model.CaptureRecord
}

func (s *fakeCaptureStore) SaveCapture(rec *model.CaptureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeCaptureStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeCaptureStore) record(i int) model.CaptureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[i]
}

func newTestListener(t *testing.T) (*Listener, *fakeCaptureStore, *events.Bus) {
	t.Helper()

	st := &fakeCaptureStore{}
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	cfg := model.CaptureConfig{
		Bind:    "127.0.0.1",
		Port:    0, // ephemeral
		DataDir: t.TempDir(),
	}
	l := NewListener(cfg, testCodec(), st, bus, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l, st, bus
}

func sendDatagram(t *testing.T, addr net.Addr, data []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestListener_PersistsSpectrumDatagram(t *testing.T) {
	l, st, _ := newTestListener(t)

	payload := spectrumFrame(1, 98500000, 25000, []float32{-100, -99.5, -99})
	sendDatagram(t, l.Addr(), payload)

	require.Eventually(t, func() bool { return st.count() == 1 },
		5*time.Second, 20*time.Millisecond, "datagram never reached the store")

	rec := st.record(0)
	assert.Equal(t, model.CaptureSpectrum, rec.Type)
	assert.True(t, rec.Parsed)
	assert.Equal(t, len(payload), rec.SizeBytes)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.Source)
	require.NotNil(t, rec.Spectrum)
	assert.Len(t, rec.Spectrum.Levels, 3)

	// Raw bytes land under a per-day directory before classification.
	require.NotEmpty(t, rec.RawFile)
	assert.Equal(t, rec.ID+".bin", filepath.Base(rec.RawFile))
	assert.Equal(t, l.cfg.DataDir, filepath.Dir(filepath.Dir(rec.RawFile)))
	raw, err := os.ReadFile(rec.RawFile)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)

	assert.EqualValues(t, 1, l.Received())
	assert.EqualValues(t, 0, l.Unparsed())
	assert.EqualValues(t, len(payload), l.BytesReceived())
}

func TestListener_UnknownPayloadStillPersisted(t *testing.T) {
	l, st, _ := newTestListener(t)

	sendDatagram(t, l.Addr(), []byte{0xDE, 0xAD, 0xBE})

	require.Eventually(t, func() bool { return st.count() == 1 },
		5*time.Second, 20*time.Millisecond)

	rec := st.record(0)
	assert.Equal(t, model.CaptureUnknown, rec.Type)
	assert.False(t, rec.Parsed)
	assert.Nil(t, rec.Spectrum)
	assert.Nil(t, rec.IQ)

	raw, err := os.ReadFile(rec.RawFile)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE}, raw)

	assert.EqualValues(t, 1, l.Unparsed())
}

func TestListener_PublishesCaptureEvents(t *testing.T) {
	l, _, bus := newTestListener(t)

	received := make(chan events.Event, 1)
	unsub := bus.Subscribe(events.EventCaptureReceived, func(e events.Event) {
		select {
		case received <- e:
		default:
		}
	})
	defer unsub()

	sendDatagram(t, l.Addr(), spectrumFrame(1, 100000000, 50, []float32{-90}))

	select {
	case e := <-received:
		assert.Equal(t, events.EventCaptureReceived, e.Type)
		assert.Equal(t, string(model.CaptureSpectrum), e.Data["type"])
		assert.NotEmpty(t, e.Data["capture_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("no capture event published")
	}
}

func TestListener_HandlesBurstWithoutLoss(t *testing.T) {
	l, st, _ := newTestListener(t)

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	const n = 20
	payload := spectrumFrame(1, 98500000, 25000, []float32{-100, -99})
	for i := 0; i < n; i++ {
		_, err := conn.Write(payload)
		require.NoError(t, err)
		// Loopback UDP can still overrun a tiny unread socket buffer.
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return st.count() == n },
		10*time.Second, 20*time.Millisecond, "received %d of %d", st.count(), n)
}

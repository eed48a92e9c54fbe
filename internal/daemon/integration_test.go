package daemon

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/setup"
	"github.com/hqmon/argusd/internal/store"
	"github.com/hqmon/argusd/internal/transport"
	"github.com/hqmon/argusd/internal/uds"
	atomicyaml "github.com/hqmon/argusd/internal/yaml"
)

// newLiveDaemon scaffolds a project, starts a daemon against it, and returns
// the running instance. The root lives directly under /tmp because the
// socket path must stay within the Unix sockaddr limit.
func newLiveDaemon(t *testing.T, mutate func(cfg *model.Config)) *Daemon {
	t.Helper()

	root, err := os.MkdirTemp("/tmp", "argusd-it-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	require.NoError(t, setup.Run(root, "itest"))
	argusDir := filepath.Join(root, setup.DirName)

	cfg, err := atomicyaml.LoadConfig(filepath.Join(argusDir, "config.yaml"))
	require.NoError(t, err)

	cfg.Capture.Bind = "127.0.0.1"
	cfg.Capture.Port = 0
	cfg.Exchange.WatcherDebounceSec = 0.05
	cfg.Scheduler.TickSec = 3600
	cfg.Daemon.ShutdownTimeoutSec = 5
	cfg.Logging.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}

	d, err := newDaemon(argusDir, *cfg, io.Discard, nil)
	require.NoError(t, err)
	require.NoError(t, d.start())
	t.Cleanup(d.Shutdown)
	return d
}

func controlClient(d *Daemon) *uds.Client {
	return uds.NewClient(d.paths.socket)
}

// send runs one command over the socket and fails the test on transport
// errors. Command-level failures are returned for the caller to assert on.
func send(t *testing.T, d *Daemon, command string, params any) *uds.Response {
	t.Helper()
	resp, err := controlClient(d).SendCommand(command, params)
	require.NoError(t, err, "command %s", command)
	return resp
}

func decodeData(t *testing.T, resp *uds.Response, v any) {
	t.Helper()
	require.True(t, resp.Success, "expected success, got error: %+v", resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func requireErrorCode(t *testing.T, resp *uds.Response, code string) {
	t.Helper()
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, code, resp.Error.Code)
}

func stateResponseXML(orderID string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<XMLSchema1>
  <order_def>
    <order_id>%s</order_id>
    <order_type>GSS</order_type>
    <order_state>Finished</order_state>
    <acd_err>S</acd_err>
    <mss_run>Y</mss_run>
    <mss_user>argus</mss_user>
    <mss_st_name>HQ-NORTH</mss_st_name>
  </order_def>
</XMLSchema1>
`, orderID)
}

func spectrumDatagram(t *testing.T, levels []float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(201)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(levels)*4)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, float64(88e6)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, float64(25e3)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(levels))))
	for _, lvl := range levels {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, lvl))
	}
	return buf.Bytes()
}

func TestIntegration_PingAndStatus(t *testing.T) {
	d := newLiveDaemon(t, nil)

	resp := send(t, d, "ping", nil)
	var pong map[string]string
	decodeData(t, resp, &pong)
	assert.Equal(t, "ok", pong["status"])

	var status StatusPayload
	decodeData(t, send(t, d, "status", nil), &status)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "itest", status.Project)
	assert.Equal(t, 0, status.OpenOrders)
	assert.Equal(t, int64(0), status.TotalOrders)
	assert.Equal(t, int64(0), status.Captures)
	assert.Equal(t, d.paths.socket, status.Socket)
}

func TestIntegration_SecondDaemonRefused(t *testing.T) {
	d := newLiveDaemon(t, nil)

	second, err := newDaemon(d.argusDir, d.config, io.Discard, nil)
	require.NoError(t, err)
	err = second.start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock")

	// The refused instance must not have touched the live daemon's socket.
	resp := send(t, d, "ping", nil)
	assert.True(t, resp.Success)
}

func TestIntegration_OrderRoundTrip(t *testing.T) {
	d := newLiveDaemon(t, nil)

	var order model.Order
	decodeData(t, send(t, d, "order_submit", map[string]any{
		"type": "GSS",
		"name": "state check",
	}), &order)
	assert.True(t, strings.HasPrefix(order.ID, "GSS"))
	assert.Equal(t, model.OrderStateOpen, order.State)
	assert.Equal(t, "cli", order.CreatedBy)

	reqName, err := transport.RequestFilename(order.ID)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(d.paths.inbox, reqName))
	require.NoError(t, err, "request document must land in the inbox")

	// The instrument answers through the outbox.
	respName, err := transport.ResponseFilename(order.ID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(d.paths.outbox, respName),
		[]byte(stateResponseXML(order.ID)), 0644))

	var detail OrderDetail
	require.Eventually(t, func() bool {
		resp, err := controlClient(d).SendCommand("order_get", map[string]any{"order_id": order.ID})
		if err != nil || !resp.Success {
			return false
		}
		if err := json.Unmarshal(resp.Data, &detail); err != nil {
			return false
		}
		return detail.Order.State == model.OrderStateFinished
	}, 10*time.Second, 50*time.Millisecond, "response never applied")

	require.NotNil(t, detail.Snapshot)
	require.Len(t, detail.Snapshot.Stations, 1)
	assert.Equal(t, "HQ-NORTH", detail.Snapshot.Stations[0].Name)
	assert.Equal(t, filepath.Join(d.paths.archiveResponses, respName), detail.Order.ResponseFile)

	var snap model.SystemSnapshot
	decodeData(t, send(t, d, "snapshot_latest", map[string]any{"kind": "state"}), &snap)
	assert.Equal(t, order.ID, snap.OrderID)

	var metrics MetricsPayload
	decodeData(t, send(t, d, "metrics", nil), &metrics)
	assert.Equal(t, int64(1), metrics.OrdersSubmitted)
	assert.Equal(t, int64(1), metrics.ResponsesProcessed)
	assert.Equal(t, int64(0), metrics.DecodeFailures)
	assert.Equal(t, int64(1), metrics.TotalOrders)
}

func TestIntegration_CheckResponsesSweep(t *testing.T) {
	// A huge debounce disables the filesystem trigger so the manual sweep is
	// the only consumer, making the processed count deterministic.
	d := newLiveDaemon(t, func(cfg *model.Config) {
		cfg.Exchange.WatcherDebounceSec = 3600
	})

	var order model.Order
	decodeData(t, send(t, d, "order_submit", map[string]any{"type": "GSS"}), &order)

	respName, err := transport.ResponseFilename(order.ID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(d.paths.outbox, respName),
		[]byte(stateResponseXML(order.ID)), 0644))

	var result struct {
		Processed  int `json:"processed"`
		OpenOrders int `json:"open_orders"`
	}
	decodeData(t, send(t, d, "check_responses", nil), &result)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.OpenOrders)
}

func TestIntegration_AMMLifecycle(t *testing.T) {
	d := newLiveDaemon(t, nil)

	template := map[string]any{
		"task":            "FFM",
		"frequency":       map[string]any{"mode": "S", "single": 98.5e6},
		"measure_time_ms": 500,
	}

	var cfg model.AMMConfiguration
	decodeData(t, send(t, d, "amm_create", map[string]any{
		"name":     "vhf watch",
		"timing":   map[string]any{"kind": "always"},
		"template": template,
	}), &cfg)
	require.NotEmpty(t, cfg.ID)
	assert.Equal(t, model.AMMStatusDraft, cfg.Status)
	assert.Nil(t, cfg.NextExecutionAt)

	requireErrorCode(t, send(t, d, "amm_create", map[string]any{
		"name":     "VHF Watch",
		"timing":   map[string]any{"kind": "always"},
		"template": template,
	}), uds.ErrCodeDuplicate)

	// Draft configurations cannot run.
	requireErrorCode(t, send(t, d, "amm_execute", map[string]any{"config_id": cfg.ID}), uds.ErrCodeValidation)

	decodeData(t, send(t, d, "amm_start", map[string]any{"config_id": cfg.ID}), &cfg)
	assert.Equal(t, model.AMMStatusActive, cfg.Status)
	require.NotNil(t, cfg.NextExecutionAt)

	var exec model.AMMExecution
	decodeData(t, send(t, d, "amm_execute", map[string]any{"config_id": cfg.ID}), &exec)
	assert.Equal(t, model.ExecutionStatusCompleted, exec.Status)
	require.Len(t, exec.GeneratedOrders, 1)

	reqName, err := transport.RequestFilename(exec.GeneratedOrders[0])
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(d.paths.inbox, reqName))
	require.NoError(t, err, "scheduled order must land in the inbox")

	var detail OrderDetail
	decodeData(t, send(t, d, "order_get", map[string]any{"order_id": exec.GeneratedOrders[0]}), &detail)
	assert.Equal(t, "scheduler:"+cfg.ID, detail.Order.CreatedBy)
	assert.Equal(t, "vhf watch", detail.Order.Name)

	// The scheduler debounce defaults to the tick, so an immediate rerun is
	// rejected rather than double-dispatched.
	requireErrorCode(t, send(t, d, "amm_execute", map[string]any{"config_id": cfg.ID}), uds.ErrCodeValidation)

	decodeData(t, send(t, d, "amm_pause", map[string]any{"config_id": cfg.ID}), &cfg)
	assert.Equal(t, model.AMMStatusPaused, cfg.Status)
	assert.Nil(t, cfg.NextExecutionAt)
	requireErrorCode(t, send(t, d, "amm_execute", map[string]any{"config_id": cfg.ID}), uds.ErrCodeValidation)

	decodeData(t, send(t, d, "amm_stop", map[string]any{"config_id": cfg.ID}), &cfg)
	assert.Equal(t, model.AMMStatusStopped, cfg.Status)

	var ammDetail AMMDetail
	decodeData(t, send(t, d, "amm_get", map[string]any{"config_id": cfg.ID}), &ammDetail)
	assert.Equal(t, model.AMMStatusStopped, ammDetail.Config.Status)
	assert.Equal(t, 1, ammDetail.Config.ExecutionCount)
	require.Len(t, ammDetail.Executions, 1)
	assert.Equal(t, model.ExecutionStatusCompleted, ammDetail.Executions[0].Status)

	var listing struct {
		Configs []*model.AMMConfiguration `json:"configs"`
		Count   int                       `json:"count"`
	}
	decodeData(t, send(t, d, "amm_list", nil), &listing)
	assert.Equal(t, 1, listing.Count)
}

func TestIntegration_CaptureOverUDP(t *testing.T) {
	d := newLiveDaemon(t, nil)

	conn, err := net.Dial("udp", d.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(spectrumDatagram(t, []float32{-97.5, -95.0, -80.25}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := d.store.CountCaptures()
		return err == nil && n == 1
	}, 10*time.Second, 50*time.Millisecond, "datagram never persisted")

	var status StatusPayload
	decodeData(t, send(t, d, "status", nil), &status)
	assert.Equal(t, int64(1), status.Captures)

	var metrics MetricsPayload
	decodeData(t, send(t, d, "metrics", nil), &metrics)
	assert.Equal(t, int64(1), metrics.CapturesReceived)
	assert.Equal(t, int64(0), metrics.CapturesUnparsed)
}

func TestIntegration_ValidationAndNotFound(t *testing.T) {
	d := newLiveDaemon(t, nil)

	requireErrorCode(t, send(t, d, "order_submit", map[string]any{"type": "XX"}), uds.ErrCodeValidation)
	requireErrorCode(t, send(t, d, "order_submit", map[string]any{"type": "OR"}), uds.ErrCodeValidation)
	requireErrorCode(t, send(t, d, "order_get", map[string]any{"order_id": "GSS010126120000000"}), uds.ErrCodeNotFound)
	requireErrorCode(t, send(t, d, "order_list", map[string]any{"state": "bogus"}), uds.ErrCodeValidation)
	requireErrorCode(t, send(t, d, "amm_get", map[string]any{"config_id": "no-such-config"}), uds.ErrCodeNotFound)
	requireErrorCode(t, send(t, d, "snapshot_latest", map[string]any{"kind": "bogus"}), uds.ErrCodeValidation)
	requireErrorCode(t, send(t, d, "snapshot_latest", map[string]any{"kind": "params"}), uds.ErrCodeNotFound)
	requireErrorCode(t, send(t, d, "no_such_command", nil), uds.ErrCodeUnknownCommand)
}

func TestIntegration_InProcessServiceSurface(t *testing.T) {
	d := newLiveDaemon(t, nil)

	// The daemon doubles as the API an embedding layer links against; the
	// same operations work without a socket round trip, and the caller
	// names itself.
	order, err := d.SubmitOrder("web", OrderSubmitParams{Type: "GSS"})
	require.NoError(t, err)
	assert.Equal(t, "web", order.CreatedBy)

	detail, err := d.Order(order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.Order.ID)

	_, err = d.Order("GSS999999999999999")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var inv *InvalidError
	_, err = d.SubmitOrder("web", OrderSubmitParams{Type: "XX"})
	assert.ErrorAs(t, err, &inv)

	got := make(chan events.Event, 1)
	unsub := d.Events().Subscribe(events.EventOrderSubmitted, func(e events.Event) {
		select {
		case got <- e:
		default:
		}
	})
	defer unsub()

	second, err := d.SubmitOrder("web", OrderSubmitParams{Type: "GSP"})
	require.NoError(t, err)
	select {
	case e := <-got:
		assert.Equal(t, second.ID, e.Data["order_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no order_submitted event delivered")
	}
}

func TestIntegration_ShutdownCommand(t *testing.T) {
	d := newLiveDaemon(t, nil)

	resp := send(t, d, "shutdown", nil)
	var ack map[string]string
	decodeData(t, resp, &ack)
	assert.Equal(t, "shutdown_accepted", ack["status"])

	require.Eventually(t, func() bool {
		_, sockErr := os.Stat(d.paths.socket)
		_, lockErr := os.Stat(d.paths.lockFile)
		return os.IsNotExist(sockErr) && os.IsNotExist(lockErr)
	}, 10*time.Second, 50*time.Millisecond, "shutdown never released socket and lock")

	// The root is free again for the next instance.
	second, err := newDaemon(d.argusDir, d.config, io.Discard, nil)
	require.NoError(t, err)
	require.NoError(t, second.start())
	second.Shutdown()
}

package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/retention"
	"github.com/hqmon/argusd/internal/uds"
)

// StatusPayload is the status UDS command's response body.
type StatusPayload struct {
	PID           int    `json:"pid"`
	Project       string `json:"project"`
	StartedAt     string `json:"started_at"`
	UptimeSec     int64  `json:"uptime_sec"`
	OpenOrders    int    `json:"open_orders"`
	TotalOrders   int64  `json:"total_orders"`
	ActiveConfigs int    `json:"active_configs"`
	Captures      int64  `json:"captures"`
	Socket        string `json:"socket"`
}

// MetricsPayload aggregates the per-component counters since daemon start.
type MetricsPayload struct {
	UptimeSec          int64 `json:"uptime_sec"`
	OrdersSubmitted    int64 `json:"orders_submitted"`
	ResponsesProcessed int64 `json:"responses_processed"`
	DecodeFailures     int64 `json:"decode_failures"`
	ScheduleExecutions int64 `json:"schedule_executions"`
	ScheduleFailures   int64 `json:"schedule_failures"`
	CapturesReceived   int64 `json:"captures_received"`
	CapturesUnparsed   int64 `json:"captures_unparsed"`
	CaptureReadErrors  int64 `json:"capture_read_errors"`
	CaptureBytes       int64 `json:"capture_bytes"`

	TotalOrders   int64 `json:"total_orders"`
	TotalCaptures int64 `json:"total_captures"`

	Retention retention.Stats `json:"retention"`
}

// SnapshotLatestParams is the request payload for the snapshot_latest UDS
// command.
type SnapshotLatestParams struct {
	Kind string `json:"kind,omitempty"`
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	status, err := d.Status()
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(status)
}

func (d *Daemon) handleMetrics(req *uds.Request) *uds.Response {
	metrics, err := d.Metrics()
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(metrics)
}

func (d *Daemon) handleSnapshotLatest(req *uds.Request) *uds.Response {
	var params SnapshotLatestParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
		}
	}

	snap, err := d.LatestSnapshot(params.Kind)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(snap)
}

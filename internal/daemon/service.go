package daemon

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/scheduler"
	"github.com/hqmon/argusd/internal/store"
)

// The daemon doubles as the in-process service object an embedding layer
// links against. Every exported operation below has a matching control
// socket command; the socket handlers only unmarshal parameters, call the
// operation, and map the error kind to a wire code.

// InvalidError marks a caller mistake in operation parameters.
type InvalidError struct{ Reason string }

func (e *InvalidError) Error() string { return e.Reason }

func invalidf(format string, args ...interface{}) error {
	return &InvalidError{Reason: fmt.Sprintf(format, args...)}
}

// DuplicateError marks a uniqueness violation, such as reusing a
// configuration name.
type DuplicateError struct{ Reason string }

func (e *DuplicateError) Error() string { return e.Reason }

// submitterWithEvents wraps the transport submitter so every dispatch path,
// operator and scheduler alike, produces the same event and audit trail.
type submitterWithEvents struct {
	d *Daemon
}

func (s submitterWithEvents) Submit(o *model.Order) error {
	if err := s.d.submitter.Submit(o); err != nil {
		return err
	}
	s.d.bus.Publish(events.EventOrderSubmitted, map[string]interface{}{
		"order_id": o.ID,
		"type":     string(o.Type),
		"file":     o.RequestFile,
	})
	s.d.auditLog("order_submitted", map[string]interface{}{
		"order_id":   o.ID,
		"type":       string(o.Type),
		"created_by": o.CreatedBy,
	})
	return nil
}

func (d *Daemon) asSubmitter() submitterWithEvents {
	return submitterWithEvents{d: d}
}

// Events returns the daemon's event bus. Embedders subscribe for order,
// capture, and retention lifecycle events; the closure returned by
// Subscribe unregisters.
func (d *Daemon) Events() *events.Bus {
	return d.bus
}

// SubmitOrder validates, persists, and dispatches a new order to the
// instrument inbox. actor is recorded as the order's originator.
func (d *Daemon) SubmitOrder(actor string, params OrderSubmitParams) (*model.Order, error) {
	orderType := model.OrderType(params.Type)
	if !model.ValidOrderType(orderType) {
		return nil, invalidf("unknown order type %q, must be OR|GSS|GSP|IFL|ITL", params.Type)
	}

	id, err := d.ids.Next(orderType)
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}

	order := &model.Order{
		ID:          id,
		Type:        orderType,
		Name:        params.Name,
		State:       model.OrderStateOpen,
		CreatedBy:   actor,
		CreatedAt:   time.Now().UTC(),
		Measurement: params.Measurement,
		ListQuery:   params.ListQuery,
	}
	if err := order.Validate(); err != nil {
		return nil, &InvalidError{Reason: err.Error()}
	}

	// The row is written before the inbox drop so a response can never
	// arrive for an identifier the store has not seen.
	if err := d.store.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := d.asSubmitter().Submit(order); err != nil {
		completed := time.Now().UTC()
		order.State = model.OrderStateUnknown
		order.Error = &model.OrderError{Code: "DISPATCH", Message: err.Error()}
		order.CompletedAt = &completed
		if saveErr := d.store.SaveOrder(order); saveErr != nil {
			d.log.Error().Err(saveErr).Str("order_id", order.ID).Msg("mark failed dispatch")
		}
		return nil, fmt.Errorf("submit order: %w", err)
	}

	// Submit filled in the request file path.
	if err := d.store.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	d.log.Info().Str("order_id", order.ID).Str("type", string(order.Type)).Msg("order submitted")
	return order, nil
}

// Order returns one order row plus every decoded result recorded for it.
func (d *Daemon) Order(id string) (*OrderDetail, error) {
	if id == "" {
		return nil, invalidf("order_id is required")
	}

	order, err := d.store.GetOrder(id)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{Order: order}

	// Result payloads are filled per order type; a missing payload only
	// means no response has arrived yet.
	switch order.Type {
	case model.OrderTypeMeasurement:
		points, err := d.store.Measurements(order.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.Measurements = points
	case model.OrderTypeFrequencyQuery:
		list, err := d.store.GetFrequencyList(order.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.FrequencyList = list
	case model.OrderTypeTransmitterList:
		list, err := d.store.GetTransmitterList(order.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.TransmitterList = list
	case model.OrderTypeStateQuery, model.OrderTypeParamQuery:
		snap, err := d.store.GetSnapshot(order.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.Snapshot = snap
	}

	return detail, nil
}

// Orders lists order rows, optionally filtered to one lifecycle state.
func (d *Daemon) Orders(stateFilter string, limit int) ([]*model.Order, error) {
	var state model.OrderState
	if stateFilter != "" {
		state = model.ParseOrderState(stateFilter)
		if string(state) != stateFilter {
			return nil, invalidf("unknown order state %q", stateFilter)
		}
	}
	return d.store.ListOrders(state, limit)
}

// CheckResult is the outcome of a manual outbox sweep.
type CheckResult struct {
	Processed  int `json:"processed"`
	OpenOrders int `json:"open_orders"`
}

// CheckResponses forces an outbox sweep, the manual counterpart of the
// filesystem watcher for shares whose events never fire.
func (d *Daemon) CheckResponses() (*CheckResult, error) {
	processed := d.watcher.Sweep()

	open, err := d.store.OpenOrders()
	if err != nil {
		return nil, err
	}
	return &CheckResult{Processed: processed, OpenOrders: len(open)}, nil
}

// Configs lists every scheduled configuration.
func (d *Daemon) Configs() ([]*model.AMMConfiguration, error) {
	return d.store.ListAMMConfigs()
}

// CreateConfig persists a new scheduled configuration, optionally
// activating it immediately. Names are unique, case-insensitive.
func (d *Daemon) CreateConfig(actor string, params AMMCreateParams) (*model.AMMConfiguration, error) {
	now := time.Now().UTC()
	cfg := &model.AMMConfiguration{
		ID:          uuid.NewString(),
		Name:        params.Name,
		Description: params.Description,
		Status:      model.AMMStatusDraft,
		Timing:      params.Timing,
		Template:    params.Template,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InvalidError{Reason: err.Error()}
	}

	existing, err := d.store.ListAMMConfigs()
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if strings.EqualFold(other.Name, cfg.Name) {
			return nil, &DuplicateError{Reason: fmt.Sprintf(
				"configuration named %q already exists (%s)", other.Name, other.ID)}
		}
	}

	if params.Activate {
		cfg.Status = model.AMMStatusActive
		cfg.NextExecutionAt = scheduler.NextEligible(cfg.Timing, now, nil)
	}

	if err := d.store.SaveAMMConfig(cfg); err != nil {
		return nil, err
	}

	d.auditLog("schedule_created", map[string]interface{}{
		"config_id": cfg.ID,
		"name":      cfg.Name,
		"status":    string(cfg.Status),
	})
	d.log.Info().Str("config_id", cfg.ID).Str("name", cfg.Name).Msg("configuration created")
	return cfg, nil
}

// Config returns one configuration with its recent execution history.
func (d *Daemon) Config(id string) (*AMMDetail, error) {
	if id == "" {
		return nil, invalidf("config_id is required")
	}

	cfg, err := d.store.GetAMMConfig(id)
	if err != nil {
		return nil, err
	}

	execs, err := d.store.ListAMMExecutions(cfg.ID, recentExecutions)
	if err != nil {
		return nil, err
	}
	return &AMMDetail{Config: cfg, Executions: execs}, nil
}

// TransitionConfig moves a configuration to the target status. Activation
// recomputes the next eligible instant; leaving active clears it so status
// listings never show a stale projection.
func (d *Daemon) TransitionConfig(id string, target model.AMMStatus) (*model.AMMConfiguration, error) {
	if id == "" {
		return nil, invalidf("config_id is required")
	}

	cfg, err := d.store.GetAMMConfig(id)
	if err != nil {
		return nil, err
	}

	if err := model.ValidateAMMTransition(cfg.Status, target); err != nil {
		return nil, &InvalidError{Reason: err.Error()}
	}

	now := time.Now().UTC()
	from := cfg.Status
	cfg.Status = target
	cfg.UpdatedAt = now
	if target == model.AMMStatusActive {
		cfg.NextExecutionAt = scheduler.NextEligible(cfg.Timing, now, cfg.LastExecutionAt)
	} else {
		cfg.NextExecutionAt = nil
	}

	if err := d.store.SaveAMMConfig(cfg); err != nil {
		return nil, err
	}

	d.auditLog("schedule_state_changed", map[string]interface{}{
		"config_id": cfg.ID,
		"from":      string(from),
		"to":        string(target),
	})
	d.log.Info().
		Str("config_id", cfg.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("configuration state changed")
	return cfg, nil
}

// ExecuteNow runs one configuration immediately, outside its timing window
// checks but inside the same per-configuration serialization the scheduler
// uses.
func (d *Daemon) ExecuteNow(configID string) (*model.AMMExecution, error) {
	if configID == "" {
		return nil, invalidf("config_id is required")
	}
	return d.engine.ExecuteNow(configID)
}

// Status summarizes the running daemon.
func (d *Daemon) Status() (*StatusPayload, error) {
	open, err := d.store.OpenOrders()
	if err != nil {
		return nil, err
	}
	total, err := d.store.CountOrders()
	if err != nil {
		return nil, err
	}
	active, err := d.store.ActiveAMMConfigs()
	if err != nil {
		return nil, err
	}
	captures, err := d.store.CountCaptures()
	if err != nil {
		return nil, err
	}

	return &StatusPayload{
		PID:           os.Getpid(),
		Project:       d.config.Project.Name,
		StartedAt:     d.startedAt.Format(time.RFC3339),
		UptimeSec:     int64(time.Since(d.startedAt).Seconds()),
		OpenOrders:    len(open),
		TotalOrders:   total,
		ActiveConfigs: len(active),
		Captures:      captures,
		Socket:        d.paths.socket,
	}, nil
}

// Metrics aggregates the per-component counters since daemon start.
func (d *Daemon) Metrics() (*MetricsPayload, error) {
	totalOrders, err := d.store.CountOrders()
	if err != nil {
		return nil, err
	}
	totalCaptures, err := d.store.CountCaptures()
	if err != nil {
		return nil, err
	}

	return &MetricsPayload{
		UptimeSec:          int64(time.Since(d.startedAt).Seconds()),
		OrdersSubmitted:    d.submitter.Submitted(),
		ResponsesProcessed: d.watcher.Processed(),
		DecodeFailures:     d.watcher.DecodeFailures(),
		ScheduleExecutions: d.engine.Executions(),
		ScheduleFailures:   d.engine.Failures(),
		CapturesReceived:   d.listener.Received(),
		CapturesUnparsed:   d.listener.Unparsed(),
		CaptureReadErrors:  d.listener.ReadErrors(),
		CaptureBytes:       d.listener.BytesReceived(),
		TotalOrders:        totalOrders,
		TotalCaptures:      totalCaptures,
		Retention:          d.sweeper.Stats(),
	}, nil
}

// LatestSnapshot returns the newest stored snapshot of the given kind.
// An empty kind defaults to the state snapshot.
func (d *Daemon) LatestSnapshot(kind string) (*model.SystemSnapshot, error) {
	k := model.SnapshotKind(kind)
	if kind == "" {
		k = model.SnapshotState
	}
	switch k {
	case model.SnapshotState, model.SnapshotParams:
	default:
		return nil, invalidf("unknown snapshot kind %q, must be state|params", kind)
	}
	return d.store.LatestSnapshot(k)
}

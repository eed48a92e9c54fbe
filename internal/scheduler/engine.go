// Package scheduler evaluates the active measurement configurations on a
// fixed tick and turns eligible ones into dispatched orders, one execution
// record per attempt.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hqmon/argusd/internal/events"
	"github.com/hqmon/argusd/internal/lock"
	"github.com/hqmon/argusd/internal/model"
)

// DefaultTick is the evaluation period when the config leaves it unset.
const DefaultTick = 60 * time.Second

var (
	ErrNotActive      = errors.New("configuration is not active")
	ErrAlreadyRunning = errors.New("configuration already has a running execution")
	ErrDebounced      = errors.New("configuration executed too recently")
)

// Submitter dispatches an encoded order into the instrument inbox.
type Submitter interface {
	Submit(o *model.Order) error
}

// Store is the persistence surface the engine drives.
type Store interface {
	ActiveAMMConfigs() ([]*model.AMMConfiguration, error)
	GetAMMConfig(id string) (*model.AMMConfiguration, error)
	SaveAMMConfig(cfg *model.AMMConfiguration) error
	SaveAMMExecution(exec *model.AMMExecution) error
	ListAMMExecutions(configID string, limit int) ([]*model.AMMExecution, error)
	SaveOrder(o *model.Order) error
}

// Engine owns the evaluation loop. A manual ExecuteNow and the tick share
// one execution path, serialized per configuration, so both produce
// identical orders and bookkeeping.
type Engine struct {
	store Store
	sub   Submitter
	ids   *model.IDGenerator
	bus   *events.Bus
	audit *events.AuditLogger
	log   zerolog.Logger

	tick     time.Duration
	debounce time.Duration
	now      func() time.Time

	locks  *lock.MutexMap
	ticker *time.Ticker
	wg     sync.WaitGroup

	executions atomic.Int64
	failures   atomic.Int64
}

func NewEngine(cfg model.SchedulerConfig, st Store, sub Submitter, ids *model.IDGenerator, bus *events.Bus, audit *events.AuditLogger, log zerolog.Logger) *Engine {
	tick := time.Duration(cfg.TickSec) * time.Second
	if tick <= 0 {
		tick = DefaultTick
	}
	debounce := time.Duration(cfg.DebounceSec) * time.Second
	if debounce <= 0 {
		debounce = tick
	}
	return &Engine{
		store:    st,
		sub:      sub,
		ids:      ids,
		bus:      bus,
		audit:    audit,
		log:      log,
		tick:     tick,
		debounce: debounce,
		now:      time.Now,
		locks:    lock.NewMutexMap(),
	}
}

// Start launches the tick loop.
func (e *Engine) Start(ctx context.Context) {
	e.ticker = time.NewTicker(e.tick)
	e.wg.Add(1)
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ticker.C:
			e.Evaluate()
		}
	}
}

// Close stops the tick loop and waits for an in-flight cycle to finish.
func (e *Engine) Close() {
	if e.ticker != nil {
		e.ticker.Stop()
	}
	e.wg.Wait()
}

// Evaluate runs one scheduling cycle and returns how many configurations
// fired. A failing configuration never affects the others in the cycle.
func (e *Engine) Evaluate() int {
	configs, err := e.store.ActiveAMMConfigs()
	if err != nil {
		e.log.Error().Err(err).Msg("list active configurations")
		return 0
	}

	fired := 0
	for _, cfg := range configs {
		if !Eligible(cfg.Timing, e.now(), cfg.LastExecutionAt) {
			continue
		}
		if _, err := e.execute(cfg.ID); err != nil {
			if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrDebounced) {
				e.log.Debug().Err(err).Str("config_id", cfg.ID).Msg("execution skipped")
			} else {
				e.log.Error().Err(err).Str("config_id", cfg.ID).Msg("execution failed")
			}
			continue
		}
		fired++
	}
	return fired
}

// ExecuteNow runs one configuration immediately, bypassing only the timing
// eligibility check. The running and debounce guards still apply. On a
// failed execution the finalized record is returned along with the error.
func (e *Engine) ExecuteNow(configID string) (*model.AMMExecution, error) {
	return e.execute(configID)
}

func (e *Engine) execute(configID string) (*model.AMMExecution, error) {
	e.locks.Lock(configID)
	defer e.locks.Unlock(configID)

	cfg, err := e.store.GetAMMConfig(configID)
	if err != nil {
		return nil, err
	}
	if cfg.Status != model.AMMStatusActive {
		return nil, fmt.Errorf("configuration %s: %w", configID, ErrNotActive)
	}

	latest, err := e.store.ListAMMExecutions(configID, 1)
	if err != nil {
		return nil, fmt.Errorf("load executions: %w", err)
	}
	if len(latest) > 0 && latest[0].Status == model.ExecutionStatusRunning {
		return nil, fmt.Errorf("configuration %s: %w", configID, ErrAlreadyRunning)
	}

	now := e.now()
	if cfg.LastExecutionAt != nil && now.Sub(*cfg.LastExecutionAt) < e.debounce {
		return nil, fmt.Errorf("configuration %s: %w", configID, ErrDebounced)
	}

	exec := &model.AMMExecution{
		ID:        uuid.NewString(),
		ConfigID:  cfg.ID,
		Status:    model.ExecutionStatusRunning,
		StartedAt: now,
	}
	if err := e.store.SaveAMMExecution(exec); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	order, dispatchErr := e.dispatch(cfg, now)

	done := e.now()
	exec.CompletedAt = &done
	if dispatchErr != nil {
		exec.Status = model.ExecutionStatusFailed
		exec.Error = dispatchErr.Error()
		cfg.ErrorCount++
		e.failures.Add(1)
	} else {
		exec.Status = model.ExecutionStatusCompleted
		exec.GeneratedOrders = append(exec.GeneratedOrders, order.ID)
		exec.TasksPerformed = 1
		cfg.LastExecutionAt = &now
		cfg.ExecutionCount++
		cfg.NextExecutionAt = NextEligible(cfg.Timing, now.Add(e.debounce), &now)
		e.executions.Add(1)
	}
	if err := e.store.SaveAMMExecution(exec); err != nil {
		e.log.Error().Err(err).Str("execution_id", exec.ID).Msg("finalize execution record")
	}
	cfg.UpdatedAt = done
	if err := e.store.SaveAMMConfig(cfg); err != nil {
		e.log.Error().Err(err).Str("config_id", cfg.ID).Msg("update configuration")
	}

	details := map[string]interface{}{
		"config_id":    cfg.ID,
		"execution_id": exec.ID,
		"status":       string(exec.Status),
	}
	if order != nil {
		details["order_id"] = order.ID
	}
	e.bus.Publish(events.EventScheduleExecuted, details)
	e.auditLog("schedule_executed", details)

	if dispatchErr != nil {
		return exec, dispatchErr
	}
	e.log.Info().
		Str("config_id", cfg.ID).
		Str("execution_id", exec.ID).
		Str("order_id", order.ID).
		Msg("configuration executed")
	return exec, nil
}

// dispatch synthesizes the measurement order from the template and hands it
// to the transport. The order row is written before the inbox drop so a
// response can never arrive for an identifier the store has not seen.
func (e *Engine) dispatch(cfg *model.AMMConfiguration, now time.Time) (*model.Order, error) {
	id, err := e.ids.Next(model.OrderTypeMeasurement)
	if err != nil {
		return nil, err
	}

	template := cfg.Template
	order := &model.Order{
		ID:          id,
		Type:        model.OrderTypeMeasurement,
		Name:        cfg.Name,
		State:       model.OrderStateOpen,
		CreatedBy:   "scheduler:" + cfg.ID,
		CreatedAt:   now,
		Measurement: &template,
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("template order: %w", err)
	}
	if err := e.store.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := e.sub.Submit(order); err != nil {
		// The row exists but nothing reached the inbox. Close it out so it
		// never lingers among the open orders.
		completed := e.now()
		order.State = model.OrderStateUnknown
		order.Error = &model.OrderError{Code: "DISPATCH", Message: err.Error()}
		order.CompletedAt = &completed
		if saveErr := e.store.SaveOrder(order); saveErr != nil {
			e.log.Error().Err(saveErr).Str("order_id", order.ID).Msg("mark failed dispatch")
		}
		return nil, fmt.Errorf("submit order: %w", err)
	}

	// Submit filled in the request file path.
	if err := e.store.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return order, nil
}

func (e *Engine) auditLog(eventType string, details map[string]interface{}) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(eventType, details); err != nil {
		e.log.Error().Err(err).Str("event", eventType).Msg("audit write")
	}
}

// Executions returns how many executions completed since startup.
func (e *Engine) Executions() int64 {
	return e.executions.Load()
}

// Failures returns how many executions failed since startup.
func (e *Engine) Failures() int64 {
	return e.failures.Load()
}

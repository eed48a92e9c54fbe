package model

import (
	"fmt"
	"time"
)

// TimingKind selects the schedule policy of a timing definition.
type TimingKind string

const (
	TimingAlways   TimingKind = "always"
	TimingDateSpan TimingKind = "date_span"
	TimingDaily    TimingKind = "daily_window"
	TimingWeekdays TimingKind = "weekday_window"
	TimingInterval TimingKind = "interval"
)

// TimingDefinition is a declarative schedule policy. Only the fields of the
// selected kind are meaningful; Validate enforces that. Times of day use
// "HH:MM" 24-hour notation.
type TimingDefinition struct {
	Kind TimingKind `json:"kind" yaml:"kind"`

	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`

	StartTime string `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty" yaml:"end_time,omitempty"`

	Weekdays []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`

	IntervalDays    int `json:"interval_days,omitempty" yaml:"interval_days,omitempty"`
	IntervalHours   int `json:"interval_hours,omitempty" yaml:"interval_hours,omitempty"`
	IntervalMinutes int `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
}

// Interval returns the configured interval length (days+hours+minutes).
func (t TimingDefinition) Interval() time.Duration {
	return time.Duration(t.IntervalDays)*24*time.Hour +
		time.Duration(t.IntervalHours)*time.Hour +
		time.Duration(t.IntervalMinutes)*time.Minute
}

func (t TimingDefinition) Validate() error {
	switch t.Kind {
	case TimingAlways:
	case TimingDateSpan:
		if t.StartDate == nil || t.EndDate == nil {
			return fmt.Errorf("date span timing requires start and end dates")
		}
		if t.EndDate.Before(*t.StartDate) {
			return fmt.Errorf("date span timing requires start ≤ end")
		}
	case TimingDaily:
		if err := validateWindow(t.StartTime, t.EndTime); err != nil {
			return err
		}
	case TimingWeekdays:
		if err := validateWindow(t.StartTime, t.EndTime); err != nil {
			return err
		}
		if len(t.Weekdays) == 0 {
			return fmt.Errorf("weekday timing requires at least one weekday")
		}
		for _, d := range t.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("invalid weekday %d", d)
			}
		}
	case TimingInterval:
		if t.Interval() <= 0 {
			return fmt.Errorf("interval timing requires a positive interval")
		}
	default:
		return fmt.Errorf("unknown timing kind %q", t.Kind)
	}
	return nil
}

func validateWindow(start, end string) error {
	if start == "" || end == "" {
		return fmt.Errorf("window timing requires start and end times of day")
	}
	for _, s := range []string{start, end} {
		if _, err := time.Parse("15:04", s); err != nil {
			return fmt.Errorf("invalid time of day %q (want HH:MM)", s)
		}
	}
	return nil
}

// AMMConfiguration is a user-defined recurring measurement: one timing
// definition plus one measurement template, evaluated every scheduler tick
// while active.
type AMMConfiguration struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      AMMStatus         `json:"status"`
	Timing      TimingDefinition  `json:"timing"`
	Template    MeasurementParams `json:"template"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
	ExecutionCount  int        `json:"execution_count"`
	ErrorCount      int        `json:"error_count"`
}

func (c *AMMConfiguration) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("configuration name is required")
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := c.Template.Validate(); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	return nil
}

// AMMExecution records one scheduling attempt. Created running, finalized
// exactly once as completed or failed, never mutated afterwards.
type AMMExecution struct {
	ID              string          `json:"id"`
	ConfigID        string          `json:"config_id"`
	Status          ExecutionStatus `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	GeneratedOrders []string        `json:"generated_orders,omitempty"`
	TasksPerformed  int             `json:"tasks_performed"`
	DataPoints      int             `json:"data_points"`
	Error           string          `json:"error,omitempty"`
}

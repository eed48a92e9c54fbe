package model

import (
	"fmt"
	"time"
)

// OrderType is the closed set of order prefixes the instrument accepts.
type OrderType string

const (
	OrderTypeMeasurement     OrderType = "OR"  // measurement order with sub-order tasks
	OrderTypeStateQuery      OrderType = "GSS" // get system state
	OrderTypeParamQuery      OrderType = "GSP" // get system parameters
	OrderTypeFrequencyQuery  OrderType = "IFL" // frequency list query
	OrderTypeTransmitterList OrderType = "ITL" // transmitter list query
)

func ValidOrderType(t OrderType) bool {
	switch t {
	case OrderTypeMeasurement, OrderTypeStateQuery, OrderTypeParamQuery,
		OrderTypeFrequencyQuery, OrderTypeTransmitterList:
		return true
	}
	return false
}

// TaskKind is the sub-order measurement task code.
type TaskKind string

const (
	TaskFFM    TaskKind = "FFM"
	TaskScan   TaskKind = "SCAN"
	TaskDScan  TaskKind = "DSCAN"
	TaskPScan  TaskKind = "PSCAN"
	TaskFLScan TaskKind = "FLSCAN"
	TaskTLScan TaskKind = "TLSCAN"
	TaskSweep  TaskKind = "SWEEP"
	TaskIMA    TaskKind = "IMA"
	TaskITU    TaskKind = "ITU"
	TaskDFPan  TaskKind = "DFPAN"
)

// FreqMode selects which variant of a FrequencySpec is populated.
type FreqMode string

const (
	FreqModeSingle FreqMode = "S"
	FreqModeRange  FreqMode = "R"
	FreqModeList   FreqMode = "L"
)

// FrequencySpec is a tagged union: exactly the fields of the selected mode
// may be set. Validate enforces this at construction time so the codec
// never has to guess.
type FrequencySpec struct {
	Mode      FreqMode  `json:"mode"`
	Single    float64   `json:"single,omitempty"`
	RangeLow  float64   `json:"range_low,omitempty"`
	RangeHigh float64   `json:"range_high,omitempty"`
	Step      float64   `json:"step,omitempty"`
	List      []float64 `json:"list,omitempty"`
}

func (f FrequencySpec) Validate() error {
	switch f.Mode {
	case FreqModeSingle:
		if f.Single <= 0 {
			return fmt.Errorf("single frequency mode requires a positive frequency")
		}
		if f.RangeLow != 0 || f.RangeHigh != 0 || f.Step != 0 || len(f.List) != 0 {
			return fmt.Errorf("single frequency mode must not carry range or list fields")
		}
	case FreqModeRange:
		if f.RangeLow <= 0 || f.RangeHigh <= 0 || f.Step <= 0 {
			return fmt.Errorf("range mode requires positive lower, upper, and step frequencies")
		}
		if f.RangeLow >= f.RangeHigh {
			return fmt.Errorf("range mode requires lower < upper, got %g ≥ %g", f.RangeLow, f.RangeHigh)
		}
		if f.Single != 0 || len(f.List) != 0 {
			return fmt.Errorf("range mode must not carry single or list fields")
		}
	case FreqModeList:
		if len(f.List) == 0 {
			return fmt.Errorf("list mode requires at least one frequency")
		}
		for i, v := range f.List {
			if v <= 0 {
				return fmt.Errorf("list mode frequency %d must be positive, got %g", i, v)
			}
		}
		if f.Single != 0 || f.RangeLow != 0 || f.RangeHigh != 0 || f.Step != 0 {
			return fmt.Errorf("list mode must not carry single or range fields")
		}
	default:
		return fmt.Errorf("unknown frequency mode %q", f.Mode)
	}
	return nil
}

// MeasurementParams describes the single sub-order of a measurement order.
type MeasurementParams struct {
	SubOrderName  string        `json:"sub_order_name,omitempty"`
	Task          TaskKind      `json:"task"`
	ResultType    string        `json:"result_type,omitempty"`
	Frequency     FrequencySpec `json:"frequency"`
	IFBandwidth   float64       `json:"if_bandwidth,omitempty"`
	RFAttenuation float64       `json:"rf_attenuation,omitempty"`
	Demodulation  string        `json:"demodulation,omitempty"`
	Detector      string        `json:"detector,omitempty"`
	MeasureTimeMS int           `json:"measure_time_ms,omitempty"`
	StationName   string        `json:"station_name,omitempty"`
	SignalPath    string        `json:"signal_path,omitempty"`
}

func (p MeasurementParams) Validate() error {
	if p.Task == "" {
		return fmt.Errorf("measurement task is required")
	}
	if err := p.Frequency.Validate(); err != nil {
		return fmt.Errorf("frequency: %w", err)
	}
	if p.IFBandwidth < 0 || p.RFAttenuation < 0 || p.MeasureTimeMS < 0 {
		return fmt.Errorf("receiver settings must be non-negative")
	}
	return nil
}

// ListQueryParams describes an IFL/ITL spectrum-management query. All
// restriction blocks are optional; an empty spec queries everything.
type ListQueryParams struct {
	ListName     string         `json:"list_name,omitempty"`
	ResultOption string         `json:"result_option,omitempty"` // transmitters | occupied_freq | unassigned_freq
	Frequency    *FrequencySpec `json:"frequency,omitempty"`
	Country      string         `json:"country,omitempty"`
	City         string         `json:"city,omitempty"`
	Service      string         `json:"service,omitempty"`
	CallSign     string         `json:"call_sign,omitempty"`
	Licensee     string         `json:"licensee,omitempty"`
}

func (p ListQueryParams) Validate() error {
	if p.Frequency != nil {
		if err := p.Frequency.Validate(); err != nil {
			return fmt.Errorf("frequency restriction: %w", err)
		}
	}
	switch p.ResultOption {
	case "", "transmitters", "occupied_freq", "unassigned_freq":
	default:
		return fmt.Errorf("unknown result option %q", p.ResultOption)
	}
	return nil
}

// OrderError carries the instrument's error header from a response.
type OrderError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Order is one unit of work dispatched to the instrument. Identity is the
// identifier; per-type parameters live in exactly one of the pointer
// fields, checked by Validate.
type Order struct {
	ID          string             `json:"id"`
	Type        OrderType          `json:"type"`
	Name        string             `json:"name"`
	State       OrderState         `json:"state"`
	CreatedBy   string             `json:"created_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Measurement *MeasurementParams `json:"measurement,omitempty"`
	ListQuery   *ListQueryParams   `json:"list_query,omitempty"`
	Error       *OrderError        `json:"error,omitempty"`

	// Audit trail paths, filled in by the transport.
	RequestFile  string `json:"request_file,omitempty"`
	ResponseFile string `json:"response_file,omitempty"`
}

func (o *Order) Validate() error {
	if !ValidateOrderID(o.ID) {
		return fmt.Errorf("malformed order identifier %q", o.ID)
	}
	if !ValidOrderType(o.Type) {
		return fmt.Errorf("unknown order type %q", o.Type)
	}
	switch o.Type {
	case OrderTypeMeasurement:
		if o.Measurement == nil {
			return fmt.Errorf("measurement order requires measurement parameters")
		}
		if o.ListQuery != nil {
			return fmt.Errorf("measurement order must not carry list query parameters")
		}
		if err := o.Measurement.Validate(); err != nil {
			return err
		}
	case OrderTypeFrequencyQuery, OrderTypeTransmitterList:
		if o.ListQuery == nil {
			return fmt.Errorf("%s order requires list query parameters", o.Type)
		}
		if o.Measurement != nil {
			return fmt.Errorf("%s order must not carry measurement parameters", o.Type)
		}
		if err := o.ListQuery.Validate(); err != nil {
			return err
		}
	default:
		if o.Measurement != nil || o.ListQuery != nil {
			return fmt.Errorf("%s order carries no parameter block", o.Type)
		}
	}
	return nil
}

// MeasurementPoint is one decoded measurement tuple from an OR response.
type MeasurementPoint struct {
	Frequency float64  `json:"frequency"`
	Level     *float64 `json:"level,omitempty"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Package acd implements the XML order codec for the monitoring system's
// file exchange protocol: request documents written to the instrument's
// inbox and response documents collected from its outbox.
package acd

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/hqmon/argusd/internal/model"
)

const (
	// DefaultSender identifies this installation in outgoing orders.
	DefaultSender = "HQ4"
	// DefaultSenderPC is the host tag carried by state query orders.
	DefaultSenderPC = "SRVARGUS"
	// DefaultProtocolVersion is the order_ver the instrument expects.
	DefaultProtocolVersion = "200"

	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

	stateQueryName       = "SystemStateQuery"
	paramQueryName       = "SystemParameterQuery"
	frequencyQueryName   = "FrequencyListQuery"
	transmitterQueryName = "TransmitterListQuery"

	// executionImmediate asks the instrument to run the order as soon as
	// it is accepted rather than at a scheduled slot.
	executionImmediate = "A"

	defaultResultType = "MR"
	defaultDetector   = "Average"
)

// Codec builds request documents and extracts results from response
// documents. A single Codec is shared by the transport and the scheduler;
// it is stateless apart from configuration and safe for concurrent use.
type Codec struct {
	sender   string
	senderPC string
	creator  string
	version  string
	caps     *CapabilityMatcher
}

// NewCodec builds a codec from the order identity configuration. Empty
// fields fall back to the protocol defaults.
func NewCodec(cfg model.OrderConfig, caps model.CapabilitiesConfig) *Codec {
	c := &Codec{
		sender:   cfg.Sender,
		senderPC: cfg.SenderPC,
		creator:  cfg.Creator,
		version:  cfg.ProtocolVersion,
		caps:     NewCapabilityMatcher(caps),
	}
	if c.sender == "" {
		c.sender = DefaultSender
	}
	if c.senderPC == "" {
		c.senderPC = DefaultSenderPC
	}
	if c.creator == "" {
		c.creator = "External"
	}
	if c.version == "" {
		c.version = DefaultProtocolVersion
	}
	return c
}

// State query requests use the uppercase XMLSchema1 dialect; every other
// order family uses the lowercase order_def dialect. The two shapes, down
// to the Extern/External creator spelling, are part of the wire contract
// and must not be unified.

type stateQueryRequest struct {
	XMLName xml.Name      `xml:"XMLSchema1"`
	XSI     string        `xml:"xmlns:xsi,attr"`
	Order   stateOrderDef `xml:"ORDER_DEF"`
}

type stateOrderDef struct {
	ID            string `xml:"ORDER_ID"`
	Type          string `xml:"ORDER_TYPE"`
	Name          string `xml:"ORDER_NAME"`
	Sender        string `xml:"ORDER_SENDER"`
	SenderPC      string `xml:"ORDER_SENDER_PC"`
	State         string `xml:"ORDER_STATE"`
	Creator       string `xml:"ORDER_CREATOR"`
	ExecutionType string `xml:"EXECUTION_TYPE"`
	Version       string `xml:"ORDER_VER"`
}

type orderDefRequest struct {
	XMLName       xml.Name     `xml:"order_def"`
	ID            string       `xml:"order_id"`
	Type          string       `xml:"order_type"`
	Name          string       `xml:"order_name"`
	Sender        string       `xml:"order_sender"`
	State         string       `xml:"order_state"`
	Creator       string       `xml:"order_creator"`
	ExecutionType string       `xml:"execution_type"`
	Version       string       `xml:"order_ver"`
	SubOrder      *subOrderDef `xml:"sub_order_def"`
	Query         *queryDef    `xml:"query_def"`
}

type subOrderDef struct {
	Name          string          `xml:"suborder_name"`
	State         string          `xml:"suborder_state"`
	Task          string          `xml:"suborder_task"`
	ResultType    string          `xml:"result_type"`
	ResultFormat  string          `xml:"result_format"`
	Act           actDef          `xml:"act_def"`
	Freq          freqParam       `xml:"freq_param"`
	FreqList      []freqListEntry `xml:"freq_lst"`
	IFBandwidth   string          `xml:"if_bandwidth,omitempty"`
	RFAttenuation string          `xml:"rf_attenuation,omitempty"`
	Demodulation  string          `xml:"demod,omitempty"`
	StationName   string          `xml:"station_name,omitempty"`
	SignalPath    string          `xml:"signal_path,omitempty"`
	MDT           *mdtParam       `xml:"mdt_param"`
}

type actDef struct {
	UserString string `xml:"acd_userstring"`
}

type freqParam struct {
	Mode      string `xml:"freq_par_mode"`
	Single    string `xml:"freq_par_s,omitempty"`
	RangeLow  string `xml:"freq_par_rg_l,omitempty"`
	RangeHigh string `xml:"freq_par_rg_u,omitempty"`
	Step      string `xml:"freq_par_step,omitempty"`
}

type freqListEntry struct {
	Freq string `xml:"freq"`
}

type mdtParam struct {
	DataType   string `xml:"meas_data_type"`
	MeasTime   string `xml:"meas_time,omitempty"`
	DetectType string `xml:"detect_type"`
}

type queryDef struct {
	ListName     string     `xml:"list_name,omitempty"`
	ResultOption string     `xml:"result_option,omitempty"`
	Freq         *freqParam `xml:"freq_param"`
	Country      string     `xml:"country,omitempty"`
	City         string     `xml:"city,omitempty"`
	Service      string     `xml:"service,omitempty"`
	CallSign     string     `xml:"call_sign,omitempty"`
	Licensee     string     `xml:"licensee,omitempty"`
}

// EncodeRequest renders the order as a request document ready to drop into
// the instrument inbox.
func (c *Codec) EncodeRequest(o *model.Order) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("encode request: nil order")
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("encode request %s: %w", o.ID, err)
	}

	var doc any
	switch o.Type {
	case model.OrderTypeStateQuery:
		doc = c.stateQueryDoc(o)
	case model.OrderTypeParamQuery:
		doc = c.orderDefDoc(o, paramQueryName)
	case model.OrderTypeMeasurement:
		d := c.orderDefDoc(o, "Measurement")
		d.SubOrder = c.subOrderDoc(o)
		doc = d
	case model.OrderTypeFrequencyQuery:
		d := c.orderDefDoc(o, frequencyQueryName)
		d.Query = queryDoc(o.ListQuery)
		doc = d
	case model.OrderTypeTransmitterList:
		d := c.orderDefDoc(o, transmitterQueryName)
		d.Query = queryDoc(o.ListQuery)
		doc = d
	default:
		return nil, fmt.Errorf("encode request %s: unsupported order type %q", o.ID, o.Type)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", o.ID, err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

func (c *Codec) stateQueryDoc(o *model.Order) *stateQueryRequest {
	return &stateQueryRequest{
		XSI: xsiNamespace,
		Order: stateOrderDef{
			ID:            o.ID,
			Type:          string(model.OrderTypeStateQuery),
			Name:          stateQueryName,
			Sender:        c.sender,
			SenderPC:      c.senderPC,
			State:         string(model.OrderStateOpen),
			Creator:       "Extern",
			ExecutionType: executionImmediate,
			Version:       c.version,
		},
	}
}

func (c *Codec) orderDefDoc(o *model.Order, fallbackName string) *orderDefRequest {
	name := o.Name
	if name == "" {
		name = fallbackName
	}
	return &orderDefRequest{
		ID:            o.ID,
		Type:          string(o.Type),
		Name:          name,
		Sender:        c.sender,
		State:         string(model.OrderStateOpen),
		Creator:       c.creator,
		ExecutionType: executionImmediate,
		Version:       c.version,
	}
}

func (c *Codec) subOrderDoc(o *model.Order) *subOrderDef {
	p := o.Measurement
	sub := &subOrderDef{
		Name:         p.SubOrderName,
		State:        string(model.OrderStateOpen),
		Task:         string(p.Task),
		ResultType:   p.ResultType,
		ResultFormat: "XML",
		Act:          actDef{UserString: o.ID + "_SUB"},
		Demodulation: p.Demodulation,
		StationName:  p.StationName,
		SignalPath:   p.SignalPath,
	}
	if sub.Name == "" {
		sub.Name = o.ID + "_SUB"
	}
	if sub.ResultType == "" {
		sub.ResultType = defaultResultType
	}
	sub.Freq, sub.FreqList = freqParamDoc(&p.Frequency)
	if p.IFBandwidth > 0 {
		sub.IFBandwidth = formatFreq(p.IFBandwidth)
	}
	if p.RFAttenuation > 0 {
		sub.RFAttenuation = formatFreq(p.RFAttenuation)
	}
	sub.MDT = mdtDoc(p)
	return sub
}

// mdtDoc emits the measurement data block. Only level measurements carry
// it; scan geometry tasks configure acquisition through freq_param alone.
func mdtDoc(p *model.MeasurementParams) *mdtParam {
	switch p.Task {
	case model.TaskFFM, model.TaskScan:
	default:
		return nil
	}
	m := &mdtParam{DataType: "LV", DetectType: p.Detector}
	if m.DetectType == "" {
		m.DetectType = defaultDetector
	}
	if p.MeasureTimeMS > 0 {
		m.MeasTime = strconv.Itoa(p.MeasureTimeMS)
	}
	return m
}

func freqParamDoc(f *model.FrequencySpec) (freqParam, []freqListEntry) {
	switch f.Mode {
	case model.FreqModeSingle:
		return freqParam{Mode: string(f.Mode), Single: formatFreq(f.Single)}, nil
	case model.FreqModeRange:
		p := freqParam{
			Mode:      string(f.Mode),
			RangeLow:  formatFreq(f.RangeLow),
			RangeHigh: formatFreq(f.RangeHigh),
		}
		if f.Step > 0 {
			p.Step = formatFreq(f.Step)
		}
		return p, nil
	case model.FreqModeList:
		entries := make([]freqListEntry, 0, len(f.List))
		for _, v := range f.List {
			entries = append(entries, freqListEntry{Freq: formatFreq(v)})
		}
		return freqParam{Mode: string(f.Mode)}, entries
	default:
		return freqParam{Mode: string(f.Mode)}, nil
	}
}

func queryDoc(p *model.ListQueryParams) *queryDef {
	q := &queryDef{
		ListName:     p.ListName,
		ResultOption: p.ResultOption,
		Country:      p.Country,
		City:         p.City,
		Service:      p.Service,
		CallSign:     p.CallSign,
		Licensee:     p.Licensee,
	}
	if p.Frequency != nil {
		fp, _ := freqParamDoc(p.Frequency)
		q.Freq = &fp
	} else {
		// Mode N queries the whole database without a frequency restriction.
		q.Freq = &freqParam{Mode: "N"}
	}
	return q
}

// formatFreq renders frequencies in plain decimal notation. The instrument
// rejects exponent forms.
func formatFreq(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

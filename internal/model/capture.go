package model

import "time"

// CaptureType classifies a received datagram.
type CaptureType string

const (
	CaptureSpectrum CaptureType = "spectrum"
	CaptureIQ       CaptureType = "if_data"
	CaptureXML      CaptureType = "xml"
	CaptureUnknown  CaptureType = "unknown"
)

// CaptureRecord describes one received datagram. The raw bytes are always
// on disk at RawFile before any parse attempt, so a classification bug can
// never lose data. Records are immutable after creation and eligible for
// deletion once older than the retention window.
type CaptureRecord struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	ReceivedAt time.Time   `json:"received_at"`
	SizeBytes  int         `json:"size_bytes"`
	RawFile    string      `json:"raw_file"`
	Parsed     bool        `json:"parsed"`
	Type       CaptureType `json:"type"`

	Spectrum *SpectrumFrame `json:"spectrum,omitempty"`
	IQ       *IQFrame       `json:"iq,omitempty"`
	OrderID  string         `json:"order_id,omitempty"` // from XML payloads
}

// SpectrumFrame is the decoded frequency-domain datagram layout.
type SpectrumFrame struct {
	PacketType uint32    `json:"packet_type"`
	FreqStart  float64   `json:"freq_start"`
	FreqStep   float64   `json:"freq_step"`
	Levels     []float32 `json:"levels"`
}

// IQFrame is the decoded time-domain layout: interleaved signed 16-bit
// I/Q sample pairs.
type IQFrame struct {
	Samples []int16 `json:"samples"`
}

// Pairs returns the number of complete I/Q pairs.
func (f *IQFrame) Pairs() int {
	return len(f.Samples) / 2
}

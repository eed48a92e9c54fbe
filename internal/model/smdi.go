package model

import "time"

// Results of the spectrum-management database queries (IFL/ITL orders).
// Entries mirror the instrument's FREQ_RES and TX_RES response structures.

// FrequencyEntry is one frequency row from an IFL response.
type FrequencyEntry struct {
	TxID        *int     `json:"tx_id,omitempty"`
	Frequency   float64  `json:"frequency"`
	LowerFreq   *float64 `json:"lower_freq,omitempty"`
	UpperFreq   *float64 `json:"upper_freq,omitempty"`
	Channel     string   `json:"channel,omitempty"`
	Bandwidth   *float64 `json:"bandwidth,omitempty"`
	Transmitter string   `json:"transmitter,omitempty"`
	Occupied    *int     `json:"occupied,omitempty"` // 0 free, 1 occupied
}

// TransmitterEntry is one transmitter row from an ITL response.
type TransmitterEntry struct {
	TxID      *int    `json:"tx_id,omitempty"`
	Frequency float64 `json:"frequency"`
	Channel   string  `json:"channel,omitempty"`
	Service   string  `json:"service,omitempty"`
	CallSign  string  `json:"call_sign,omitempty"`
	Licensee  string  `json:"licensee,omitempty"`
	State     string  `json:"state,omitempty"`
	Station   string  `json:"station,omitempty"`
}

// FrequencyList is the stored result of one IFL order.
type FrequencyList struct {
	OrderID   string           `json:"order_id"`
	Name      string           `json:"name,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Entries   []FrequencyEntry `json:"entries"`
}

// TransmitterList is the stored result of one ITL order.
type TransmitterList struct {
	OrderID   string             `json:"order_id"`
	Name      string             `json:"name,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Entries   []TransmitterEntry `json:"entries"`
}

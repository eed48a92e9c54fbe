package model

import "time"

// SnapshotKind distinguishes the two topology queries: GSS responses
// describe station state, GSP responses add signal paths and device
// capabilities.
type SnapshotKind string

const (
	SnapshotState  SnapshotKind = "state"
	SnapshotParams SnapshotKind = "params"
)

// SystemSnapshot is an immutable point-in-time capture of the remote
// station topology. Snapshots are superseded by newer ones, never edited.
//
// State responses come in two shapes: older firmware reports a flat list of
// station names plus system-level devices (kept in Devices), newer firmware
// nests devices per station.
type SystemSnapshot struct {
	OrderID     string       `json:"order_id"`
	Kind        SnapshotKind `json:"kind"`
	TakenAt     time.Time    `json:"taken_at"`
	Running     *bool        `json:"running,omitempty"`
	User        string       `json:"user,omitempty"`
	MonitorTime string       `json:"monitor_time,omitempty"`
	Stations    []Station    `json:"stations"`
	Devices     []Device     `json:"devices,omitempty"`
}

// Station is one monitoring station in the remote system.
type Station struct {
	Name         string       `json:"name"`
	Type         string       `json:"type,omitempty"` // F fixed, M mobile
	Controller   string       `json:"controller,omitempty"`
	ControllerPC string       `json:"controller_pc,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Running      bool         `json:"running"`
	User         string       `json:"user,omitempty"`
	Devices      []Device     `json:"devices,omitempty"`
	Paths        []SignalPath `json:"paths,omitempty"`
}

// Device is a receiver or controller attached to a station, as reported by
// a state query.
type Device struct {
	Name   string `json:"name"`
	State  string `json:"state,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// SignalPath is a named antenna + receiver chain with its own frequency
// span and capability set, as reported by a parameter query.
type SignalPath struct {
	Name     string       `json:"name"`
	FreqLow  float64      `json:"freq_low,omitempty"`
	FreqHigh float64      `json:"freq_high,omitempty"`
	Devices  []PathDevice `json:"devices,omitempty"`
}

// PathDevice carries the capability lists of one device on a signal path.
// DirectionFinding and TaskKinds are heuristic derivations, not instrument
// fields; see the capabilities config section.
type PathDevice struct {
	Name             string   `json:"name"`
	Driver           string   `json:"driver,omitempty"`
	Detectors        []string `json:"detectors,omitempty"`
	Bandwidths       []string `json:"bandwidths,omitempty"`
	Attenuators      []string `json:"attenuators,omitempty"`
	Demodulations    []string `json:"demodulations,omitempty"`
	Parameters       []string `json:"parameters,omitempty"`
	TaskKinds        []string `json:"task_kinds,omitempty"`
	DirectionFinding bool     `json:"direction_finding"`
	TDOA             bool     `json:"tdoa"`
}

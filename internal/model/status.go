package model

import "fmt"

// OrderState is the lifecycle state of an order as carried in the
// instrument's documents. The string values are the wire contract,
// including the space in "In Process".
type OrderState string

const (
	OrderStateOpen      OrderState = "Open"
	OrderStateInProcess OrderState = "In Process"
	OrderStateForwarded OrderState = "Forwarded"
	OrderStateFinished  OrderState = "Finished"
	OrderStateUnknown   OrderState = "Unknown"
)

type AMMStatus string

const (
	AMMStatusDraft   AMMStatus = "draft"
	AMMStatusActive  AMMStatus = "active"
	AMMStatusPaused  AMMStatus = "paused"
	AMMStatusStopped AMMStatus = "stopped"
	AMMStatusError   AMMStatus = "error"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

var terminalOrderStates = map[OrderState]bool{
	OrderStateFinished:  true,
	OrderStateForwarded: true,
	OrderStateUnknown:   true,
}

// Order transitions are driven exclusively by observed response files.
// Unknown is the terminal escape for unrecoverable parse failures and is
// reachable from any non-terminal state. A response may carry a final state
// directly, so Open → Finished without an intermediate In Process is legal.
var validOrderTransitions = map[OrderState]map[OrderState]bool{
	OrderStateOpen: {
		OrderStateInProcess: true,
		OrderStateFinished:  true,
		OrderStateForwarded: true,
		OrderStateUnknown:   true,
	},
	OrderStateInProcess: {
		OrderStateFinished:  true,
		OrderStateForwarded: true,
		OrderStateUnknown:   true,
	},
}

// AMM configurations move freely between the operator-driven states; error
// is set by the scheduler and cleared by restarting the configuration.
var validAMMTransitions = map[AMMStatus]map[AMMStatus]bool{
	AMMStatusDraft: {
		AMMStatusActive:  true,
		AMMStatusStopped: true,
	},
	AMMStatusActive: {
		AMMStatusPaused:  true,
		AMMStatusStopped: true,
		AMMStatusError:   true,
	},
	AMMStatusPaused: {
		AMMStatusActive:  true,
		AMMStatusStopped: true,
	},
	AMMStatusError: {
		AMMStatusActive:  true,
		AMMStatusStopped: true,
	},
	AMMStatusStopped: {
		AMMStatusActive: true,
	},
}

func IsTerminalOrderState(s OrderState) bool {
	return terminalOrderStates[s]
}

// ValidateOrderTransition reports whether from → to is a legal lifecycle
// step. Same-state transitions are permitted so re-decoding a response is
// idempotent.
func ValidateOrderTransition(from, to OrderState) error {
	if from == to {
		return nil
	}
	if IsTerminalOrderState(from) {
		return fmt.Errorf("cannot transition from terminal order state %q", from)
	}
	allowed, ok := validOrderTransitions[from]
	if !ok {
		return fmt.Errorf("unknown order state %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid order transition: %q → %q", from, to)
	}
	return nil
}

func ValidateAMMTransition(from, to AMMStatus) error {
	if from == to {
		return nil
	}
	allowed, ok := validAMMTransitions[from]
	if !ok {
		return fmt.Errorf("unknown configuration status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid configuration transition: %q → %q", from, to)
	}
	return nil
}

// ParseOrderState maps a header state string to a known state, defaulting
// unrecognized values to Unknown rather than failing the decode.
func ParseOrderState(s string) OrderState {
	switch OrderState(s) {
	case OrderStateOpen, OrderStateInProcess, OrderStateForwarded, OrderStateFinished, OrderStateUnknown:
		return OrderState(s)
	default:
		return OrderStateUnknown
	}
}

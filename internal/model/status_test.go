package model

import "testing"

func TestValidateOrderTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  OrderState
		to    OrderState
		valid bool
	}{
		{"open to in process", OrderStateOpen, OrderStateInProcess, true},
		{"open to finished", OrderStateOpen, OrderStateFinished, true},
		{"open to forwarded", OrderStateOpen, OrderStateForwarded, true},
		{"open to unknown", OrderStateOpen, OrderStateUnknown, true},
		{"in process to finished", OrderStateInProcess, OrderStateFinished, true},
		{"in process to unknown", OrderStateInProcess, OrderStateUnknown, true},
		{"same state idempotent", OrderStateFinished, OrderStateFinished, true},
		{"finished to open", OrderStateFinished, OrderStateOpen, false},
		{"forwarded to finished", OrderStateForwarded, OrderStateFinished, false},
		{"unknown to open", OrderStateUnknown, OrderStateOpen, false},
		{"in process to open", OrderStateInProcess, OrderStateOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrderTransition(tt.from, tt.to)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected error for %q → %q", tt.from, tt.to)
			}
		})
	}
}

func TestIsTerminalOrderState(t *testing.T) {
	terminal := []OrderState{OrderStateFinished, OrderStateForwarded, OrderStateUnknown}
	for _, s := range terminal {
		if !IsTerminalOrderState(s) {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []OrderState{OrderStateOpen, OrderStateInProcess} {
		if IsTerminalOrderState(s) {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestValidateAMMTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  AMMStatus
		to    AMMStatus
		valid bool
	}{
		{"draft to active", AMMStatusDraft, AMMStatusActive, true},
		{"active to paused", AMMStatusActive, AMMStatusPaused, true},
		{"paused to active", AMMStatusPaused, AMMStatusActive, true},
		{"active to error", AMMStatusActive, AMMStatusError, true},
		{"error to active", AMMStatusError, AMMStatusActive, true},
		{"stopped to active", AMMStatusStopped, AMMStatusActive, true},
		{"draft to paused", AMMStatusDraft, AMMStatusPaused, false},
		{"stopped to paused", AMMStatusStopped, AMMStatusPaused, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAMMTransition(tt.from, tt.to)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected error for %q → %q", tt.from, tt.to)
			}
		})
	}
}

func TestParseOrderState(t *testing.T) {
	tests := []struct {
		in   string
		want OrderState
	}{
		{"Open", OrderStateOpen},
		{"In Process", OrderStateInProcess},
		{"Finished", OrderStateFinished},
		{"Forwarded", OrderStateForwarded},
		{"Unknown", OrderStateUnknown},
		{"garbage", OrderStateUnknown},
		{"", OrderStateUnknown},
	}
	for _, tt := range tests {
		if got := ParseOrderState(tt.in); got != tt.want {
			t.Errorf("ParseOrderState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package model

import (
	"testing"
	"time"
)

func TestIDGenerator_Next(t *testing.T) {
	fixed := time.Date(2025, 9, 30, 10, 15, 0, 123*1e6, time.Local)
	g := NewIDGeneratorAt(func() time.Time { return fixed })

	id, err := g.Next(OrderTypeStateQuery)
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if id != "GSS300925101500123" {
		t.Errorf("got %q, want %q", id, "GSS300925101500123")
	}
	if !ValidateOrderID(id) {
		t.Errorf("generated ID %q does not match grammar", id)
	}
}

func TestIDGenerator_InvalidType(t *testing.T) {
	g := NewIDGenerator()
	if _, err := g.Next("XXX"); err == nil {
		t.Error("expected error for unknown order type")
	}
}

func TestIDGenerator_MonotonicWithinMillisecond(t *testing.T) {
	fixed := time.Date(2025, 9, 30, 10, 15, 0, 0, time.Local)
	g := NewIDGeneratorAt(func() time.Time { return fixed })

	seen := make(map[string]bool)
	var prev string
	for i := 0; i < 100; i++ {
		id, err := g.Next(OrderTypeMeasurement)
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("IDs not increasing: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestValidateOrderID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"valid measurement", "OR300925101500123", true},
		{"valid state query", "GSS300925101500123", true},
		{"valid param query", "GSP010126235959999", true},
		{"valid frequency query", "IFL300925101500123", true},
		{"valid transmitter query", "ITL300925101500123", true},
		{"unknown prefix", "GMS300925101500123", false},
		{"lowercase prefix", "gss300925101500123", false},
		{"short timestamp", "GSS30092510150012", false},
		{"long timestamp", "GSS3009251015001234", false},
		{"dashed form", "GSS-300925-101500123", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateOrderID(tt.id); got != tt.valid {
				t.Errorf("ValidateOrderID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestSplitOrderID(t *testing.T) {
	prefix, date, clock, err := SplitOrderID("GSS300925101500123")
	if err != nil {
		t.Fatalf("SplitOrderID returned error: %v", err)
	}
	if prefix != OrderTypeStateQuery {
		t.Errorf("prefix: got %q, want %q", prefix, OrderTypeStateQuery)
	}
	if date != "300925" {
		t.Errorf("date: got %q, want %q", date, "300925")
	}
	if clock != "101500123" {
		t.Errorf("clock: got %q, want %q", clock, "101500123")
	}

	if _, _, _, err := SplitOrderID("bogus"); err == nil {
		t.Error("expected error for malformed identifier")
	}
}

func TestParseIDTime(t *testing.T) {
	want := time.Date(2025, 9, 30, 10, 15, 0, 123*1e6, time.Local)
	got, err := ParseIDTime("GSS300925101500123")
	if err != nil {
		t.Fatalf("ParseIDTime returned error: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIDRoundTrip(t *testing.T) {
	g := NewIDGenerator()
	id, err := g.Next(OrderTypeParamQuery)
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	ts, err := ParseIDTime(id)
	if err != nil {
		t.Fatalf("ParseIDTime returned error: %v", err)
	}
	rebuilt := "GSP" + FormatIDTimestamp(ts)
	if rebuilt != id {
		t.Errorf("round trip: got %q, want %q", rebuilt, id)
	}
}

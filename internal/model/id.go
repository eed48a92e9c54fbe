package model

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Order identifiers follow the instrument's filename grammar: the type
// prefix concatenated with a DDMMYY date and an HHMMSSmmm time, no
// separators. The same fields render into the exchange filename with
// dashes, so an identifier and its filename are mutually derivable.
//
// Identifiers sort lexicographically by creation time within one day,
// which is what the instrument relies on for its own ordering.

var idRegex = regexp.MustCompile(`^(OR|GSS|GSP|IFL|ITL)(\d{6})(\d{9})$`)

// IDGenerator mints unique order identifiers. Timestamps are forced
// strictly monotonic at millisecond resolution, so two orders created in
// the same millisecond never collide.
type IDGenerator struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NewIDGeneratorAt uses the given clock. Tests pin time with it.
func NewIDGeneratorAt(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// Next returns a fresh identifier for the given order type.
func (g *IDGenerator) Next(t OrderType) (string, error) {
	if !ValidOrderType(t) {
		return "", fmt.Errorf("unknown order type %q", t)
	}

	g.mu.Lock()
	ts := g.now().Truncate(time.Millisecond)
	if !ts.After(g.last) {
		ts = g.last.Add(time.Millisecond)
	}
	g.last = ts
	g.mu.Unlock()

	return string(t) + FormatIDTimestamp(ts), nil
}

// FormatIDTimestamp renders the DDMMYY+HHMMSSmmm portion of an identifier.
func FormatIDTimestamp(ts time.Time) string {
	return ts.Format("020106150405") + fmt.Sprintf("%03d", ts.Nanosecond()/1e6)
}

// ValidateOrderID reports whether id matches the identifier grammar.
func ValidateOrderID(id string) bool {
	return idRegex.MatchString(id)
}

// SplitOrderID breaks an identifier into its prefix, date, and time parts.
func SplitOrderID(id string) (prefix OrderType, date, clock string, err error) {
	m := idRegex.FindStringSubmatch(id)
	if m == nil {
		return "", "", "", fmt.Errorf("malformed order identifier %q", id)
	}
	return OrderType(m[1]), m[2], m[3], nil
}

// ParseIDTime recovers the creation instant encoded in an identifier.
// The two-digit year is interpreted in the 2000s.
func ParseIDTime(id string) (time.Time, error) {
	_, date, clock, err := SplitOrderID(id)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.ParseInLocation("020106150405", date+clock[:6], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse identifier timestamp: %w", err)
	}
	var ms int
	if _, err := fmt.Sscanf(clock[6:], "%03d", &ms); err != nil {
		return time.Time{}, fmt.Errorf("parse identifier milliseconds: %w", err)
	}
	return ts.Add(time.Duration(ms) * time.Millisecond), nil
}

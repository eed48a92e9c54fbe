package acd

import (
	"strings"

	"github.com/hqmon/argusd/internal/model"
)

// CapabilityMatcher derives the capability flags the instrument does not
// report directly: direction finding from measurement parameter names, TDOA
// support from device families, and task sets from driver names. The tables
// come from configuration; an empty section falls back to the built-in
// defaults for the known receiver families.
type CapabilityMatcher struct {
	dfIndicators []string
	tdoaDevices  []string
	driverTasks  map[string][]string
	defaultTasks []string
}

func NewCapabilityMatcher(cfg model.CapabilitiesConfig) *CapabilityMatcher {
	if len(cfg.DFIndicators) == 0 && len(cfg.TDOADevices) == 0 &&
		len(cfg.DriverTasks) == 0 && len(cfg.DefaultTasks) == 0 {
		cfg = model.DefaultCapabilities()
	}
	m := &CapabilityMatcher{
		driverTasks:  make(map[string][]string, len(cfg.DriverTasks)),
		defaultTasks: cfg.DefaultTasks,
	}
	for _, s := range cfg.DFIndicators {
		m.dfIndicators = append(m.dfIndicators, strings.ToLower(s))
	}
	for _, s := range cfg.TDOADevices {
		m.tdoaDevices = append(m.tdoaDevices, strings.ToUpper(s))
	}
	for driver, tasks := range cfg.DriverTasks {
		m.driverTasks[strings.ToUpper(driver)] = tasks
	}
	return m
}

// DirectionFinding reports whether any measurement parameter name mentions
// a bearing indicator.
func (m *CapabilityMatcher) DirectionFinding(params []string) bool {
	for _, p := range params {
		low := strings.ToLower(p)
		for _, ind := range m.dfIndicators {
			if strings.Contains(low, ind) {
				return true
			}
		}
	}
	return false
}

// TDOA reports whether any of the given names contains a TDOA-capable
// device family.
func (m *CapabilityMatcher) TDOA(names ...string) bool {
	for _, n := range names {
		if n == "" {
			continue
		}
		up := strings.ToUpper(n)
		for _, dev := range m.tdoaDevices {
			if strings.Contains(up, dev) {
				return true
			}
		}
	}
	return false
}

// TasksForDriver returns the measurement tasks a driver supports. Unknown
// drivers get the default set.
func (m *CapabilityMatcher) TasksForDriver(driver string) []string {
	if tasks, ok := m.driverTasks[strings.ToUpper(driver)]; ok {
		return append([]string(nil), tasks...)
	}
	return append([]string(nil), m.defaultTasks...)
}

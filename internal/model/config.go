// Package model defines the data structures for argusd's configuration,
// orders, snapshots, schedules, and captures.
package model

type Config struct {
	SchemaVersion int                `yaml:"schema_version"`
	Project       ProjectConfig      `yaml:"project"`
	Order         OrderConfig        `yaml:"order"`
	Exchange      ExchangeConfig     `yaml:"exchange"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Capture       CaptureConfig      `yaml:"capture"`
	Retention     RetentionConfig    `yaml:"retention"`
	Store         StoreConfig        `yaml:"store"`
	Daemon        DaemonConfig       `yaml:"daemon"`
	Logging       LoggingConfig      `yaml:"logging"`
	Capabilities  CapabilitiesConfig `yaml:"capabilities"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Created     string `yaml:"created"`
}

// OrderConfig is the identity stamped into every outgoing order header.
type OrderConfig struct {
	Sender          string `yaml:"sender"`
	SenderPC        string `yaml:"sender_pc"`
	Creator         string `yaml:"creator"`
	ProtocolVersion string `yaml:"protocol_version"`
}

// ExchangeConfig locates the instrument's file-drop directories. Paths are
// relative to the .argusd/ root unless absolute; in production deployments
// inbox/outbox usually point at a mounted instrument share.
type ExchangeConfig struct {
	InboxDir           string  `yaml:"inbox_dir"`
	OutboxDir          string  `yaml:"outbox_dir"`
	ArchiveDir         string  `yaml:"archive_dir"`
	WatcherDebounceSec float64 `yaml:"watcher_debounce_sec"`
}

type SchedulerConfig struct {
	TickSec     int `yaml:"tick_sec"`
	DebounceSec int `yaml:"debounce_sec"`
}

type CaptureConfig struct {
	Bind          string `yaml:"bind"`
	Port          int    `yaml:"port"`
	DataDir       string `yaml:"data_dir"`
	ReadBufferKiB int    `yaml:"read_buffer_kib"`
}

type RetentionConfig struct {
	Days             int     `yaml:"days"`
	SweepIntervalSec int     `yaml:"sweep_interval_sec"`
	DiskThreshold    float64 `yaml:"disk_threshold"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CapabilitiesConfig holds the heuristic tables used to derive device
// capabilities from GSP responses. The matching approximates information the
// instrument never states explicitly; deployments with unusual device names
// override these tables instead of patching code.
type CapabilitiesConfig struct {
	DFIndicators []string            `yaml:"df_indicators"`
	TDOADevices  []string            `yaml:"tdoa_devices"`
	DriverTasks  map[string][]string `yaml:"driver_tasks"`
	DefaultTasks []string            `yaml:"default_tasks"`
}

// DefaultCapabilities returns the capability tables observed on the known
// receiver families. Used when the config section is empty.
func DefaultCapabilities() CapabilitiesConfig {
	return CapabilitiesConfig{
		DFIndicators: []string{"bearing", "azimuth", "df", "direction"},
		TDOADevices:  []string{"EB500", "EM100XT", "EM100", "EB500_DF"},
		DriverTasks: map[string][]string{
			"EB500":     {"FFM", "SCAN", "DSCAN", "LOCATION"},
			"DDF550":    {"FFM", "SCAN", "DSCAN"},
			"ANTENNA08": {"FFM", "SCAN"},
			"ZS12x":     {"FFM", "SCAN"},
			"S_UMS300":  {"FFM", "SCAN", "PSCAN"},
			"AU600Ctrl": {"FFM", "SCAN"},
			"EM100":     {"FFM", "SCAN"},
		},
		DefaultTasks: []string{"FFM", "SCAN"},
	}
}

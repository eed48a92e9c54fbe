package yaml

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hqmon/argusd/internal/model"
)

// CurrentSchemaVersion is the config file generation this build writes and
// the newest it can read.
const CurrentSchemaVersion = 1

// LoadConfig reads and parses config.yaml. The schema version gate rejects
// files written by a newer build instead of silently dropping fields.
func LoadConfig(path string) (*model.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SchemaVersion < 1 {
		return nil, fmt.Errorf("invalid schema_version %d (must be >= 1)", cfg.SchemaVersion)
	}
	if cfg.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d (max supported: %d)",
			cfg.SchemaVersion, CurrentSchemaVersion)
	}
	return &cfg, nil
}

// SaveConfig writes the config atomically, stamping the current schema
// version when unset.
func SaveConfig(path string, cfg *model.Config) error {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	return AtomicWrite(path, cfg)
}

// Package setup scaffolds the .argusd/ runtime directory.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hqmon/argusd/internal/model"
	atomicyaml "github.com/hqmon/argusd/internal/yaml"
	"github.com/hqmon/argusd/templates"
)

// DirName is the runtime directory created inside a project directory.
const DirName = ".argusd"

// Run initializes .argusd/ under projectDir. projectName overrides the
// auto-detected name (the directory basename when empty). Fails if the
// directory already exists.
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	dirs := []string{
		"exchange/inbox",
		"exchange/outbox",
		"archive/orders",
		"archive/responses",
		"archive/quarantine",
		"captures",
		"store",
		"logs",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	if err := atomicyaml.SaveConfig(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	return nil
}

// DefaultConfigBytes returns the embedded config template. Used as the
// last-resort fallback when a corrupt config has no usable backup.
func DefaultConfigBytes() ([]byte, error) {
	return fs.ReadFile(templates.FS, "config.yaml")
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := DefaultConfigBytes()
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg.Project.Created = time.Now().Format(time.RFC3339)

	return &cfg, nil
}

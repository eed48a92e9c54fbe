package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a corrupt file into <argusDir>/quarantine under a
// timestamped name and returns the destination path.
func Quarantine(argusDir, filePath string) (string, error) {
	quarantineDir := filepath.Join(argusDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405"))
	quarantinePath := filepath.Join(quarantineDir, name)

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return quarantinePath, nil
}

// RestoreFromBackup replaces filePath with its .bak sibling after checking
// the backup still parses.
func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := validateYAML(content); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// RecoverConfig handles an unreadable config file: quarantine it, then
// restore the .bak, and when the backup is missing or equally corrupt, fall
// back to the supplied default content. The caller keeps running with
// whatever this leaves at filePath.
func RecoverConfig(argusDir, filePath string, fallback []byte) error {
	if _, err := os.Stat(filePath); err == nil {
		if _, err := Quarantine(argusDir, filePath); err != nil {
			return fmt.Errorf("quarantine failed: %w", err)
		}
	}

	if err := RestoreFromBackup(filePath); err == nil {
		return nil
	}

	if len(fallback) == 0 {
		return fmt.Errorf("no backup and no fallback content for %s", filePath)
	}
	if err := AtomicWriteRaw(filePath, fallback); err != nil {
		return fmt.Errorf("write fallback config: %w", err)
	}
	return nil
}

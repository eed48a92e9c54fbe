package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxAuditSize is the rotation threshold for the audit trail.
	DefaultMaxAuditSize = 100 * 1024 * 1024
	auditFileExtension  = ".jsonl"
	auditArchiveDir     = "archive"
)

// AuditEntry is one line of the append-only audit trail. Every order
// submission, response, schedule run, and retention sweep leaves an entry,
// so the trail reconstructs what the daemon did and when.
type AuditEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	OrderID   string                 `json:"order_id,omitempty"`
	ConfigID  string                 `json:"config_id,omitempty"`
	File      string                 `json:"file,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger appends JSONL entries to a single file and rotates it into an
// archive subdirectory when it exceeds maxSize.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	logPath     string
	rotations   int
}

// NewAuditLogger opens (or creates) the audit trail at logPath.
func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxAuditSize
	}

	logger := &AuditLogger{
		logPath: logPath,
		maxSize: maxSize,
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Log appends one entry. Common identifiers are lifted out of details into
// their own columns so the trail stays grep-able.
func (l *AuditLogger) Log(eventType string, details map[string]interface{}) error {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
	}
	if orderID, ok := details["order_id"].(string); ok {
		entry.OrderID = orderID
	}
	if configID, ok := details["config_id"].(string); ok {
		entry.ConfigID = configID
	}
	if file, ok := details["file"].(string); ok {
		entry.File = file
	}
	return l.writeEntry(&entry)
}

func (l *AuditLogger) writeEntry(entry *AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), auditArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create audit archive directory: %w", err)
	}

	// The rotation counter keeps archive names unique within one second.
	l.rotations++
	baseName := filepath.Base(l.logPath)
	stem := baseName[:len(baseName)-len(auditFileExtension)]
	archiveName := fmt.Sprintf("%s.%s.%d%s", stem, time.Now().Format("20060102_150405"), l.rotations, auditFileExtension)
	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}

	return l.openLogFile()
}

// Close syncs and closes the trail.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return err
		}
		return l.file.Close()
	}
	return nil
}

// CurrentSize returns the size of the active audit file.
func (l *AuditLogger) CurrentSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}

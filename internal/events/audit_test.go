package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAuditLogger_AppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	logger, err := NewAuditLogger(logPath, 0)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer logger.Close()

	entries := []map[string]interface{}{
		{"order_id": "OR300925101500000", "file": "OR-300925-101500000-O.xml"},
		{"order_id": "GSS300925101501000"},
	}
	for _, details := range entries {
		if err := logger.Log("order_submitted", details); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	file, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer file.Close()

	var lines []AuditEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, entry)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lines))
	}
	if lines[0].OrderID != "OR300925101500000" {
		t.Errorf("OrderID not lifted from details: %+v", lines[0])
	}
	if lines[0].File != "OR-300925-101500000-O.xml" {
		t.Errorf("File not lifted from details: %+v", lines[0])
	}
	if lines[0].EventType != "order_submitted" {
		t.Errorf("EventType = %q", lines[0].EventType)
	}
	if lines[0].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	// Tiny rotation threshold so a handful of entries triggers it.
	logger, err := NewAuditLogger(logPath, 256)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 10; i++ {
		if err := logger.Log("schedule_executed", map[string]interface{}{
			"config_id": "cfg-0001",
			"padding":   "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx",
		}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	archived, err := filepath.Glob(filepath.Join(dir, auditArchiveDir, "audit.*.jsonl"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(archived) == 0 {
		t.Fatal("expected at least one rotated audit file")
	}

	// Active file still exists and is below the threshold.
	stat, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("stat active log: %v", err)
	}
	if stat.Size() > 256 {
		t.Errorf("active log size %d exceeds rotation threshold", stat.Size())
	}
}

func TestAuditLogger_ReopensExisting(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	first, err := NewAuditLogger(logPath, 0)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	if err := first.Log("order_submitted", map[string]interface{}{"order_id": "X"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	size := first.CurrentSize()
	first.Close()

	second, err := NewAuditLogger(logPath, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if second.CurrentSize() != size {
		t.Errorf("reopened size = %d, want %d", second.CurrentSize(), size)
	}
}

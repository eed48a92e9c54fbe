package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hqmon/argusd/internal/model"
)

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(model.LoggingConfig{Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Error("info message should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Error("warn message missing from output")
	}
}

func TestNewWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(model.LoggingConfig{Level: "loud"}, &buf)

	log.Info().Msg("visible")
	if !bytes.Contains(buf.Bytes(), []byte("visible")) {
		t.Error("info message missing with fallback level")
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(model.LoggingConfig{}, &buf), "transport")

	log.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "transport" {
		t.Errorf("component field: got %v, want %q", entry["component"], "transport")
	}
}

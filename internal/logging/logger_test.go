package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelWarn, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be dropped, got %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message missing from output %q", out)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelDebug, &buf).With(WithField("vendor", "benco"))

	logger.Info("Fetched page", WithFields(map[string]interface{}{"page": 2}), WithField("count", 10))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["vendor"] != "benco" {
		t.Errorf("vendor = %v, want benco", entry["vendor"])
	}
	if entry["page"] != float64(2) {
		t.Errorf("page = %v, want 2", entry["page"])
	}
	if entry["count"] != float64(10) {
		t.Errorf("count = %v, want 10", entry["count"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	logger.Info("should not panic")
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLoggerWritesJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ServiceName: "uniauth", Environment: "test", Level: "debug", Output: &buf})

	logger.Debug("merged", "aliases", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if entry["service"] != "uniauth" || entry["env"] != "test" {
		t.Fatalf("expected service/env fields, got %v", entry)
	}
	if entry["msg"] != "merged" {
		t.Fatalf("expected msg merged, got %v", entry["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ServiceName: "uniauth", Level: "info", Output: &buf})
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
}

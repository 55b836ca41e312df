package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestGetLevel(t *testing.T) {
	if got := GetLevel("warn"); got != "WARN" {
		t.Errorf("GetLevel(warn) = %s", got)
	}
	if got := GetLevel("loud"); got != "INFO" {
		t.Errorf("GetLevel(loud) = %s", got)
	}
}

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(Config{Level: "info", Output: &buf})
	log.Debug("hidden")
	log.Info("Decision resolved", "decision_id", "d1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "Decision resolved" || entry["decision_id"] != "d1" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if ts, _ := entry["time"].(string); len(ts) != len("2006-01-02 15:04:05") {
		t.Errorf("unexpected timestamp format: %q", ts)
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithFormat_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		dropped slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{" error ", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"verbose", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewWithFormat(&bytes.Buffer{}, tt.level, "json")
			if !logger.Enabled(ctx, tt.enabled) {
				t.Fatalf("expected %s enabled", tt.enabled)
			}
			if logger.Enabled(ctx, tt.dropped) {
				t.Fatalf("expected %s dropped", tt.dropped)
			}
		})
	}
}

func TestNewWithFormat_TextAndJSON(t *testing.T) {
	var jsonBuf bytes.Buffer
	NewWithFormat(&jsonBuf, "info", "json").Info("synced", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(jsonBuf.Bytes(), &entry); err != nil {
		t.Fatalf("json output not decodable: %v", err)
	}
	if entry["msg"] != "synced" || entry["rows"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}

	var textBuf bytes.Buffer
	NewWithFormat(&textBuf, "info", " Text ").Info("synced", "rows", 3)
	if out := textBuf.String(); !strings.Contains(out, "msg=synced") || !strings.Contains(out, "rows=3") {
		t.Fatalf("unexpected text output %q", out)
	}
}

func TestWithRun_AddsRunAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithFormat(&buf, "info", "json").WithRun("sheet-1", "도수 2025", "manual")
	logger.Info("run finished")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["source_id"] != "sheet-1" || entry["tab"] != "도수 2025" || entry["kind"] != "manual" {
		t.Fatalf("run attributes missing: %v", entry)
	}
}

func TestWithRun_NilReceiver(t *testing.T) {
	var logger *Logger
	if scoped := logger.WithRun("s", "t", "rf"); scoped == nil || scoped.Logger == nil {
		t.Fatal("expected a usable logger from nil receiver")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("discard logger should not enable debug")
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("sync started", map[string]interface{}{"pending": 3})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "sync started" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Context["pending"] != float64(3) {
		t.Errorf("context lost: %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("noise")
	logger.Info("more noise")
	logger.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "kept") {
		t.Errorf("wrong line survived: %s", lines[0])
	}
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.ErrorWithCode("upload failed", "REMOTE_REJECTED", errors.New("409"),
		map[string]interface{}{"table": "sales"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Code != "REMOTE_REJECTED" || entry.Error != "409" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestWarnWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.WarnWithCode("degraded sequence", "SEQUENCE_COLLISION_UNRESOLVED")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Level != "WARN" || entry.Code != "SEQUENCE_COLLISION_UNRESOLVED" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestMergeContext(t *testing.T) {
	merged := mergeContext(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2},
	)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("unexpected merge: %v", merged)
	}
	if mergeContext() != nil {
		t.Error("empty context must stay nil")
	}
}

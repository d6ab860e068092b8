package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger_JSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "debug", Console: true, Stream: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	WithFileOperation(log, "/videos/a.mp4", "transcode").Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	for _, key := range []string{"timestamp", "level", "message", "file", "operation"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing key %q in %v", key, entry)
		}
	}
	if entry["message"] != "started" || entry["operation"] != "transcode" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "error", Console: true, Stream: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != logrus.ErrorLevel {
		t.Errorf("level = %v", log.GetLevel())
	}
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at error level, got %q", buf.String())
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	log, err := NewLogger(LoggerConfig{Level: "info", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	WithFile(log, "clip.mkv").Warn("probe failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "probe failed") {
		t.Errorf("log file content = %q", data)
	}
}

func TestEntryHelpers(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "info", Console: true, Stream: &buf})
	if err != nil {
		t.Fatal(err)
	}

	WithOperation(log, "scan").Info("one")
	WithFields(log, logrus.Fields{"run_id": "abc"}).Info("two")
	WithFile(log, "clip.mp4").Info("three")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	want := []struct{ key, value string }{{"operation", "scan"}, {"run_id", "abc"}, {"file", "clip.mp4"}}
	for i, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d not JSON: %q", i, line)
		}
		if entry[want[i].key] != want[i].value {
			t.Errorf("line %d: %s = %v, want %s", i, want[i].key, entry[want[i].key], want[i].value)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.FilePath != "video-compressor.log" || !cfg.Console {
		t.Errorf("DefaultConfig = %+v", cfg)
	}
}

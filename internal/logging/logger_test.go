package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leozw/pulse-monitor/internal/config"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pulse.log")
	log, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("test_message_from_logging_test")
	log.Debug("filtered_debug_message")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "test_message_from_logging_test") {
		t.Fatalf("log file missing message: %s", data)
	}
	if strings.Contains(string(data), "filtered_debug_message") {
		t.Fatalf("debug message should be filtered at info level")
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := New(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected error for bad format")
	}
}

func TestNew_Console(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("console ok")
}

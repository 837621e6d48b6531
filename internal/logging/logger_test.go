// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")

	logger, err := New(FileConfig("info", path))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("stream finalized", zap.String("session_id", "session-1"))
	logger.Debug("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"session_id":"session-1"`) {
		t.Errorf("log line missing field: %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug line should be filtered at info level: %s", out)
	}
}

func TestNewOrNop_InvalidLevel(t *testing.T) {
	logger := NewOrNop(Config{Level: "nope", OutputPaths: []string{"stderr"}})
	if logger == nil {
		t.Fatal("NewOrNop returned nil")
	}
	logger.Info("does not panic")
}

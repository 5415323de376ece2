package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.input); got != tc.expected {
			t.Fatalf("parseLevel(%q) = %v, expected %v", tc.input, got, tc.expected)
		}
	}
}

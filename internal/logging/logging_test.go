package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zapcore.Level
	}{
		{"production", "", zapcore.InfoLevel},
		{"production", "WARN", zapcore.WarnLevel},
		{EnvDevelopment, "debug", zapcore.DebugLevel},
	}
	for _, tc := range cases {
		logger, err := New("frauddwh", tc.env, tc.level)
		if err != nil {
			t.Fatalf("new(%s,%s): %v", tc.env, tc.level, err)
		}
		if !logger.Core().Enabled(tc.want) {
			t.Fatalf("level %s should be enabled", tc.want)
		}
		if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
			t.Fatalf("level %s should be disabled", tc.want-1)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("frauddwh", "production", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

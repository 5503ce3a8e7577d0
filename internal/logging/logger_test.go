package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level, format string
		want          zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"WARN", "json", zapcore.WarnLevel},
		{"nonsense", "json", zapcore.InfoLevel},
	}
	for _, c := range cases {
		l, err := New(c.level, c.format)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", c.level, c.format, err)
		}
		if !l.Core().Enabled(c.want) || (c.want > zapcore.DebugLevel && l.Core().Enabled(c.want-1)) {
			t.Fatalf("New(%q): wrong level", c.level)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected nop logger")
	}
}

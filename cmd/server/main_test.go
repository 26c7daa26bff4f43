package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger(t *testing.T) {
	if got := newLogger("debug").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := newLogger("nonsense").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("invalid level should fall back to info, got %v", got)
	}

	t.Setenv("LOG_FORMAT", "json")
	if got := newLogger("warn").GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", got)
	}
}

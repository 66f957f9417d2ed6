package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewBuildsUsableLogger(t *testing.T) {
	logger, err := New("info", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	logger.Info("hello")
}

func TestNewJSONOutput(t *testing.T) {
	logger, err := New("debug", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestLevelToZapMapping(t *testing.T) {
	cases := map[string]zapcore.Level{
		"trace":    zapcore.DebugLevel,
		"debug":    zapcore.DebugLevel,
		"warning":  zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"fatality": zapcore.ErrorLevel,
		"info":     zapcore.InfoLevel,
		"unknown":  zapcore.InfoLevel,
		"":         zapcore.InfoLevel,
	}
	for level, want := range cases {
		if got := levelToZap(level); got != want {
			t.Errorf("levelToZap(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestNopDiscardsOutput(t *testing.T) {
	logger := Nop()
	if logger == nil {
		t.Fatal("expected a non-nil no-op logger")
	}
	logger.Info("this should be discarded")
	logger.Error("this too")
}

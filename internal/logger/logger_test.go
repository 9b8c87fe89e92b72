package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}
	l, err = New(Config{Level: "WARN"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn")
	}
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := L
	t.Cleanup(func() { L = prev })

	Set(nil)
	if L != prev {
		t.Fatalf("Set(nil) replaced the logger")
	}
	Set(zap.New(core))
	L.Info("applied", Component("migrator"), Backend("sqlite"), Migration("001"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	got := entries[0].ContextMap()
	if got["component"] != "migrator" || got["backend"] != "sqlite" || got["migration"] != "001" {
		t.Fatalf("fields = %v", got)
	}
}

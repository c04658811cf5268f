package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresGlobalLogger(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	if err := Init("debug"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if !Logger().Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logger to enable debug level")
	}
}

func TestInitFallsBackToWarn(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	if err := Init("chatty"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if Logger().Core().Enabled(zap.InfoLevel) {
		t.Fatal("info should be disabled for an unknown level")
	}
	if !Logger().Core().Enabled(zap.WarnLevel) {
		t.Fatal("warn should be enabled for an unknown level")
	}
}

func TestWithModuleAddsField(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	t.Cleanup(func() { Set(nil) })
	Set(zap.New(core))

	WithModule("flow").Info("hello")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["module"]; got != "flow" {
		t.Fatalf("module=%v", got)
	}
}

func TestSetNilInstallsNop(t *testing.T) {
	Set(nil)
	if Logger() == nil {
		t.Fatal("expected non-nil logger")
	}
}

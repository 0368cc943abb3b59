package logger

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
	logger.Info(context.Background(), "test message", String("k", "v"))
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
}

func TestLoggerContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	InitWith(zap.New(core))

	ctx := WithFields(context.Background(), String("run_id", "r1"))
	ctx = WithFields(ctx, String("code", "AAA"))
	Named("growth").Warn(ctx, "regression failed", Error(errors.New("boom")), Int("points", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "growth" {
		t.Errorf("logger name = %q", e.LoggerName)
	}
	fields := e.ContextMap()
	if fields["run_id"] != "r1" || fields["code"] != "AAA" {
		t.Errorf("context fields missing: %v", fields)
	}
	if fields["points"] != int64(3) {
		t.Errorf("points = %v", fields["points"])
	}
	if fields["error"] != "boom" {
		t.Errorf("error = %v", fields["error"])
	}
}

func TestSetLevelString(t *testing.T) {
	for _, l := range []string{"debug", "info", "", "WARN", "warning", "error"} {
		if err := SetLevelString(l); err != nil {
			t.Errorf("SetLevelString(%q): %v", l, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	_ = SetLevelString("info")
}

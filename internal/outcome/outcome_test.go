package outcome

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWritesFailuresAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	Failed(errors.New("smtp down")).Log(logger, "lead notification", zap.String("profile_id", "p-1"))
	Skipped("missing config").Log(logger, "lead notification")
	Succeeded().Log(logger, "lead notification")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected three entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected failure at warn, got %s", entries[0].Level)
	}
	if entries[0].ContextMap()["outcome"] != "failed" || entries[0].ContextMap()["profile_id"] != "p-1" {
		t.Fatalf("unexpected failure fields: %v", entries[0].ContextMap())
	}
	if entries[1].ContextMap()["reason"] != "missing config" {
		t.Fatalf("expected skip reason, got %v", entries[1].ContextMap())
	}
	if entries[2].Level != zapcore.DebugLevel {
		t.Fatalf("expected success at debug, got %s", entries[2].Level)
	}
}

func TestStatusPredicates(t *testing.T) {
	if !Succeeded().Succeeded() || Succeeded().Failed() {
		t.Fatalf("succeeded predicates wrong")
	}
	if !Failed(errors.New("x")).Failed() {
		t.Fatalf("failed predicate wrong")
	}
	if Skipped("e2e").Succeeded() || Skipped("e2e").Failed() {
		t.Fatalf("skipped should be neither succeeded nor failed")
	}
}

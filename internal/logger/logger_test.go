package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretsAndHashesStudents(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core))

	l.Info("auth", "api_key", "sk-123", "student_id", "alice", "topic_id", 7)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", fields["api_key"])
	}
	sid, _ := fields["student_id"].(string)
	if !strings.HasPrefix(sid, "hash:") || strings.Contains(sid, "alice") {
		t.Errorf("student_id = %q, want hashed value", sid)
	}
	if fields["topic_id"] != int64(7) {
		t.Errorf("topic_id = %v, want 7", fields["topic_id"])
	}
}

func TestWithKeepsHashing(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("student_id", "bob")
	l.Debug("x")

	fields := logs.All()[0].ContextMap()
	if fields["student_id"] == "bob" {
		t.Error("student_id leaked through With")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestHashesSessionIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core))
	l.Info("session", "session_id", "5f1c")

	sid, _ := logs.All()[0].ContextMap()["session_id"].(string)
	if !strings.HasPrefix(sid, "hash:") {
		t.Errorf("session_id = %q, want hashed value", sid)
	}
}

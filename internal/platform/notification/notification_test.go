package notification

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecorder_CapturesNotifications(t *testing.T) {
	rec := NewRecorder()
	rec.SendSystemNotification(context.Background(), "claims.batch", SeverityWarning, "3 claims failed validation", map[string]string{"batch_size": "10"})
	rec.SendSystemNotification(context.Background(), "jobs", SeverityCritical, "handler panicked", nil)

	sent := rec.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sent))
	}
	if sent[0].Topic != "claims.batch" || sent[0].Severity != SeverityWarning {
		t.Errorf("unexpected first notification: %+v", sent[0])
	}
	if sent[0].Context["batch_size"] != "10" {
		t.Errorf("expected context preserved, got %v", sent[0].Context)
	}
	if sent[1].ID == "" || sent[1].CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be populated")
	}
}

func TestLogNotifier_DoesNotPanic(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityCritical} {
		n.SendSystemNotification(context.Background(), "claims", sev, "message", map[string]string{"claim_id": "abc"})
	}
}

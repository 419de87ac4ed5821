// Package notification delivers operational notifications raised by the
// claims engine (failed jobs, rejected submission groups, reconciliation
// anomalies). Delivery is fire-and-forget: a failing notifier must never
// abort the operation that raised the notification.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Severity classifies a system notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is a single operator-facing message.
type Notification struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier is the delivery collaborator. Implementations must be safe for
// concurrent use.
type Notifier interface {
	SendSystemNotification(ctx context.Context, topic string, severity Severity, message string, nctx map[string]string)
}

// LogNotifier writes notifications to the structured log. It is the default
// sink when no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendSystemNotification(_ context.Context, topic string, severity Severity, message string, nctx map[string]string) {
	evt := n.logger.Info()
	switch severity {
	case SeverityWarning:
		evt = n.logger.Warn()
	case SeverityCritical:
		evt = n.logger.Error()
	}
	for k, v := range nctx {
		evt = evt.Str(k, v)
	}
	evt.Str("topic", topic).Msg(message)
}

// Recorder is a thread-safe in-memory Notifier used in tests and development.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendSystemNotification(_ context.Context, topic string, severity Severity, message string, nctx map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{
		ID:        uuid.New().String(),
		Topic:     topic,
		Severity:  severity,
		Message:   message,
		Context:   nctx,
		CreatedAt: time.Now(),
	})
}

// Sent returns a copy of all recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

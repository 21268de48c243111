package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/LabCore/internal/port/audit"
	"github.com/Strob0t/LabCore/internal/port/messagequeue"
)

const publishTimeout = 2 * time.Second

// AuditSink publishes isolation events as JSON. Publishing failures are
// logged and never reach the rejected operation.
type AuditSink struct {
	queue   messagequeue.Queue
	subject string
}

// NewAuditSink returns a sink publishing on subject.
func NewAuditSink(q messagequeue.Queue, subject string) *AuditSink {
	return &AuditSink{queue: q, subject: subject}
}

// Record implements audit.Sink.
func (s *AuditSink) Record(ctx context.Context, ev audit.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "audit event encode failed", "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.queue.Publish(pubCtx, s.subject, data); err != nil {
		slog.ErrorContext(ctx, "audit event publish failed",
			"subject", s.subject, "op", ev.Op, "entity", ev.Entity, "error", err)
	}
}

var _ audit.Sink = (*AuditSink)(nil)

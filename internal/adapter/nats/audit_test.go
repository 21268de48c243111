package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LabCore/internal/port/audit"
	"github.com/Strob0t/LabCore/internal/port/messagequeue"
)

type published struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (f *fakeQueue) Drain() error      { return nil }
func (f *fakeQueue) Close() error      { return nil }
func (f *fakeQueue) IsConnected() bool { return true }

func TestAuditSinkPublishesEvent(t *testing.T) {
	q := &fakeQueue{}
	sink := NewAuditSink(q, messagequeue.SubjectIsolationDenied)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.Record(context.Background(), audit.Event{
		Op:       "find_by_id",
		Entity:   "Client",
		Reason:   "missing tenant context",
		TenantID: "",
		At:       at,
	})

	if len(q.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.msgs))
	}
	if q.msgs[0].subject != "isolation.denied" {
		t.Fatalf("unexpected subject %s", q.msgs[0].subject)
	}
	var got audit.Event
	if err := json.Unmarshal(q.msgs[0].data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Op != "find_by_id" || got.Entity != "Client" || !got.At.Equal(at) {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestAuditSinkSwallowsPublishError(t *testing.T) {
	q := &fakeQueue{err: errors.New("nats down")}
	sink := NewAuditSink(q, "isolation.denied")

	// Must not panic or block.
	sink.Record(context.Background(), audit.Event{Op: "create", Entity: "Invoice"})
}

func TestAuditSinkIgnoresCallerCancellation(t *testing.T) {
	q := &fakeQueue{}
	sink := NewAuditSink(q, "isolation.denied")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Record(ctx, audit.Event{Op: "count", Entity: "Case"})

	if len(q.msgs) != 1 {
		t.Fatal("expected event to be published despite cancelled request context")
	}
}

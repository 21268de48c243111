// Package audit defines the port for recording isolation failures.
package audit

import (
	"context"
	"time"
)

// Event describes one operation rejected by tenant isolation. It never
// carries row data.
type Event struct {
	Op        string    `json:"op"`
	Entity    string    `json:"entity"`
	Reason    string    `json:"reason"`
	TenantID  string    `json:"tenant_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives isolation events. Implementations must not block the caller
// for long and must not fail the operation that produced the event.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(context.Context, Event) {}

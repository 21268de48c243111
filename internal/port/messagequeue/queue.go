// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject that
	// arrive after the call. Every subscriber receives every message.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used by LabCore. All of them fall under the LABCORE stream.
const (
	// SubjectIsolationDenied carries audit.Event payloads.
	SubjectIsolationDenied = "isolation.denied"

	// SubjectMembershipChanged carries the user ID whose memberships changed,
	// so every process drops its cached copy.
	SubjectMembershipChanged = "memberships.changed"
)

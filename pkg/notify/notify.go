// Package notify delivers fire-and-forget user notifications.
//
// The engine reports unmatched artifacts, unmatched labels, and per-pair
// failures through a Notifier; implementations must never block event
// processing.
package notify

import (
	"context"
	"log"
	"sync"
)

// Notifier sends a message to a user. Implementations are fire-and-forget:
// delivery failures are swallowed, never surfaced to the engine.
type Notifier interface {
	Notify(ctx context.Context, user, message string)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, user, message string)

// Notify calls f.
func (f Func) Notify(ctx context.Context, user, message string) {
	f(ctx, user, message)
}

// --- Log notifier ---

// LogNotifier writes notifications to the standard logger.
// Useful for debugging and the CLI transports.
type LogNotifier struct {
	prefix string
}

// LogNotifierOption configures LogNotifier.
type LogNotifierOption func(*LogNotifier)

// WithPrefix sets the log prefix.
func WithPrefix(prefix string) LogNotifierOption {
	return func(n *LogNotifier) {
		n.prefix = prefix
	}
}

// NewLogNotifier creates a new log-based notifier.
func NewLogNotifier(opts ...LogNotifierOption) *LogNotifier {
	n := &LogNotifier{prefix: "[notify]"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, user, message string) {
	log.Printf("%s user=%s %s", n.prefix, user, message)
}

// --- Noop notifier ---

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that does nothing.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// Notify does nothing.
func (n *NoopNotifier) Notify(context.Context, string, string) {}

// --- Queue notifier ---

// QueueNotifier buffers notifications per user so a polling transport can
// drain them later. The buffer is bounded; when full, the oldest message
// is dropped.
type QueueNotifier struct {
	mu     sync.Mutex
	limit  int
	byUser map[string][]string
}

// NewQueueNotifier creates a queue notifier keeping at most limit messages
// per user (0 means a default of 100).
func NewQueueNotifier(limit int) *QueueNotifier {
	if limit <= 0 {
		limit = 100
	}
	return &QueueNotifier{
		limit:  limit,
		byUser: make(map[string][]string),
	}
}

// Notify enqueues the message.
func (n *QueueNotifier) Notify(_ context.Context, user, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	q := append(n.byUser[user], message)
	if len(q) > n.limit {
		q = q[len(q)-n.limit:]
	}
	n.byUser[user] = q
}

// Drain removes and returns all queued messages for a user.
func (n *QueueNotifier) Drain(user string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	q := n.byUser[user]
	delete(n.byUser, user)
	return q
}

// Verify interface compliance.
var (
	_ Notifier = (Func)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*NoopNotifier)(nil)
	_ Notifier = (*QueueNotifier)(nil)
)

// Package notifier delivers best-effort notifications after a successful
// attachment commit. Delivery is fire-and-forget: failures are logged and
// swallowed, never surfaced to the uploader.
package notifier

import (
	"context"
)

// Notifier sends a short human-readable message to a sink.
type Notifier interface {
	// Send reports whether delivery succeeded. Callers ignore the result
	// beyond logging.
	Send(ctx context.Context, message string) bool
}

// Multi fans a message out to several sinks.
type Multi []Notifier

// Send delivers to every sink; true when at least one delivery succeeded.
func (m Multi) Send(ctx context.Context, message string) bool {
	ok := false
	for _, n := range m {
		if n == nil {
			continue
		}
		if n.Send(ctx, message) {
			ok = true
		}
	}
	return ok
}

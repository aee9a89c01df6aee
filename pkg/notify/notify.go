// Package notify delivers pairing notifications outside the booking commit path.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notifier delivers one message to a set of participants. Delivery is best
// effort; callers log failures and never undo the work that triggered it.
type Notifier interface {
	Notify(ctx context.Context, participantIDs []string, message string) error
}

// Notification is the payload queued by the Dispatcher and published by sinks.
type Notification struct {
	ParticipantIDs []string  `json:"participant_ids"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// LogNotifier prints notifications to stdout.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, participantIDs []string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Printf("📣 Notify: [%s] -> %s\n", strings.Join(participantIDs, ", "), message)
	return nil
}

// Multi fans a notification out to every sink and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, participantIDs []string, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, participantIDs, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

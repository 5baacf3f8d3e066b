// Package notify defines the notification hand-off used when a location
// reminder fires, and simple notifiers that compose delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Reason tells why a notification was produced.
type Reason string

const (
	// ReasonTrigger is a proximity trigger firing.
	ReasonTrigger Reason = "trigger"
	// ReasonImmediate is a reminder created while already inside its region.
	ReasonImmediate Reason = "immediate"
	// ReasonEvicted tells the user a reminder lost its trigger to the ceiling.
	ReasonEvicted Reason = "evicted"
)

// Notification is one message handed to the delivery collaborator.
type Notification struct {
	ReminderID  int32     `json:"reminderId"`
	ReminderUID string    `json:"reminderUid"`
	Message     string    `json:"message"`
	PlaceName   string    `json:"placeName,omitempty"`
	Reason      Reason    `json:"reason"`
	FiredAt     time.Time `json:"firedAt"`
}

// Text renders the notification for plain-text channels.
func (n Notification) Text() string {
	switch n.Reason {
	case ReasonEvicted:
		return fmt.Sprintf("No longer monitoring %q: the trigger limit was reached.", n.Message)
	default:
		if n.PlaceName != "" {
			return fmt.Sprintf("Reminder near %s: %s", n.PlaceName, n.Message)
		}
		return "Reminder: " + n.Message
	}
}

// Notifier delivers notifications. Delivery is fire-and-forget for the
// caller; an error is only logged.
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Log writes notifications to the structured log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Deliver(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "reminder notification",
		"reminder_id", n.ReminderID,
		"reason", n.Reason,
		"place", n.PlaceName,
		"message", n.Message)
	return nil
}

// Multi fans a notification out to every notifier. One failing channel does
// not stop the others.
type Multi []Notifier

func (m Multi) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

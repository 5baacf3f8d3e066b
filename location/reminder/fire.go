package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hrygo/geominder/internal/logging"
	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/plugin/notify"
	"github.com/hrygo/geominder/store"
)

// FireResult tells how a trigger-fired event was handled.
type FireResult string

const (
	FireDelivered FireResult = "delivered"
	FireCooldown  FireResult = "cooldown"
	FireSnoozed   FireResult = "snoozed"
	FireInactive  FireResult = "inactive"
	FireUnknown   FireResult = "unknown"
)

// HandleTriggerFired delivers the reminder owning triggerID unless it fired
// within the cooldown or is snoozed. Unknown trigger ids are ignored. The
// reminder stays PENDING after delivery. Events for one reminder are handled
// one at a time.
func (o *Orchestrator) HandleTriggerFired(ctx context.Context, triggerID string) (FireResult, error) {
	ctx = logging.With(ctx, "trigger_id", triggerID)
	logger := logging.FromContext(ctx)

	found, err := o.store.GetReminderByTriggerID(ctx, triggerID)
	if err != nil {
		return "", location.NewError(location.CodeUnknown, "handle_trigger", err)
	}
	if found == nil {
		logger.Debug("ignoring event for unknown trigger")
		o.cfg.Metrics.RecordTriggerEvent(string(FireUnknown))
		return FireUnknown, nil
	}

	unlock := o.locks.Lock(found.ID)
	defer unlock()

	// Re-read under the lock so the cooldown check sees the latest fire.
	r, err := o.store.GetReminder(ctx, found.ID)
	if err != nil {
		return "", location.NewError(location.CodeUnknown, "handle_trigger", err)
	}
	result := o.evaluateFire(r)
	if result != FireDelivered {
		logger.Debug("suppressed trigger event", "reminder_id", found.ID, "result", result)
		o.cfg.Metrics.RecordTriggerEvent(string(result))
		return result, nil
	}

	firedTs := o.cfg.Now().Unix()
	if _, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: r.ID, LastFiredTs: &firedTs}); err != nil {
		return "", location.NewError(location.CodeUnknown, "handle_trigger", err)
	}

	var placeName string
	if rows, err := o.store.ListReminderTriggers(ctx, &store.FindReminderTrigger{TriggerID: &triggerID}); err == nil && len(rows) > 0 {
		placeName = rows[0].PlaceName
	}
	o.deliver(ctx, notify.Notification{
		ReminderID:  r.ID,
		ReminderUID: r.UID,
		Message:     r.Message,
		PlaceName:   placeName,
		Reason:      notify.ReasonTrigger,
	})
	logger.Info("delivered location reminder", "reminder_id", r.ID)
	o.cfg.Metrics.RecordTriggerEvent(string(FireDelivered))
	return FireDelivered, nil
}

func (o *Orchestrator) evaluateFire(r *store.Reminder) FireResult {
	if r == nil || r.Kind != store.ReminderLocationBased || r.Status != store.ReminderPending {
		return FireInactive
	}
	now := o.cfg.Now().Unix()
	if r.SnoozedUntilTs != nil && now < *r.SnoozedUntilTs {
		return FireSnoozed
	}
	if r.LastFiredTs != nil && now-*r.LastFiredTs < int64(o.cfg.Cooldown/time.Second) {
		return FireCooldown
	}
	return FireDelivered
}

// SnoozeReminder suppresses deliveries of reminder id for d.
func (o *Orchestrator) SnoozeReminder(ctx context.Context, id int32, d time.Duration) (*store.Reminder, error) {
	const op = "snooze_reminder"

	if d <= 0 {
		return nil, location.NewError(location.CodeInvalidInput, op, errors.New("snooze duration must be positive"))
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	r, err := o.store.GetReminder(ctx, id)
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}
	if r == nil {
		return nil, location.NewError(location.CodeNotFound, op, fmt.Errorf("reminder %d: %w", id, store.ErrNotFound))
	}
	if r.Status != store.ReminderPending && r.Status != store.ReminderPendingPosition {
		return nil, location.NewError(location.CodeInvalidInput, op, fmt.Errorf("reminder %d is %s", id, r.Status))
	}

	until := o.cfg.Now().Add(d).Unix()
	updated, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: id, SnoozedUntilTs: &until})
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}
	return updated, nil
}

package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/geominder/internal/logging"
	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/plugin/notify"
	"github.com/hrygo/geominder/store"
)

// DeleteLocationReminder removes every trigger of reminder id and deletes
// the record. Deleting the last reminder holding triggers stops monitoring.
func (o *Orchestrator) DeleteLocationReminder(ctx context.Context, id int32) error {
	const op = "delete_reminder"
	ctx = logging.With(ctx, "reminder_id", id)

	unlock := o.locks.Lock(id)
	defer unlock()

	r, err := o.store.GetReminder(ctx, id)
	if err != nil {
		return location.NewError(location.CodeUnknown, op, err)
	}
	if r == nil {
		return location.NewError(location.CodeNotFound, op, fmt.Errorf("reminder %d: %w", id, store.ErrNotFound))
	}

	o.unregister(ctx, r)

	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if err := o.store.DeleteReminder(ctx, &store.DeleteReminder{ID: id}); err != nil {
		return location.NewError(location.CodeUnknown, op, err)
	}
	if holdsTrigger(r) {
		if err := o.session.Release(ctx); err != nil {
			logging.FromContext(ctx).Warn("failed to stop monitoring", "error", err)
		}
	}
	logging.FromContext(ctx).Info("deleted location reminder")
	return nil
}

// CompleteReminder marks reminder id done and removes its triggers.
// Completing a completed reminder is a no-op.
func (o *Orchestrator) CompleteReminder(ctx context.Context, id int32) (*store.Reminder, error) {
	const op = "complete_reminder"
	ctx = logging.With(ctx, "reminder_id", id)

	unlock := o.locks.Lock(id)
	defer unlock()

	r, err := o.store.GetReminder(ctx, id)
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}
	if r == nil {
		return nil, location.NewError(location.CodeNotFound, op, fmt.Errorf("reminder %d: %w", id, store.ErrNotFound))
	}
	if r.Status == store.ReminderCompleted {
		return r, nil
	}

	o.unregister(ctx, r)
	if err := o.store.DeleteReminderTriggers(ctx, &store.DeleteReminderTrigger{ReminderID: &id}); err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}

	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	completed, cleared := store.ReminderCompleted, ""
	updated, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: id, Status: &completed, TriggerID: &cleared})
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}
	if holdsTrigger(r) {
		if err := o.session.Release(ctx); err != nil {
			logging.FromContext(ctx).Warn("failed to stop monitoring", "error", err)
		}
	}
	return updated, nil
}

// unregister removes every registered trigger of r from the device. Failures
// are logged; a trigger that survives fires as an unknown id and is ignored.
func (o *Orchestrator) unregister(ctx context.Context, r *store.Reminder) {
	logger := logging.FromContext(ctx)

	rows, err := o.store.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &r.ID})
	if err != nil {
		logger.Warn("failed to list reminder triggers", "error", err)
	}
	ids := make(map[string]bool, len(rows)+1)
	for _, row := range rows {
		ids[row.TriggerID] = true
	}
	if r.TriggerID != nil {
		ids[*r.TriggerID] = true
	}
	for id := range ids {
		if err := o.registry.Remove(ctx, id); err != nil {
			logger.Warn("failed to remove trigger", "trigger_id", id, "error", err)
		}
	}
}

// ResumeResult summarizes a ResumeDeferred pass.
type ResumeResult struct {
	Registered int `json:"registered"`
	Immediate  int `json:"immediate"`
	Failed     int `json:"failed"`
}

// ResumeDeferred plans and registers the category reminders that were
// deferred for lack of a position. Reminders that still cannot be planned
// stay deferred.
func (o *Orchestrator) ResumeDeferred(ctx context.Context, position location.Coordinate) (ResumeResult, error) {
	var result ResumeResult
	if !position.Valid() {
		return result, location.NewError(location.CodeInvalidInput, "resume_deferred", fmt.Errorf("position out of range: %s", position))
	}

	status, kind := store.ReminderPendingPosition, store.ReminderLocationBased
	deferred, err := o.store.ListReminders(ctx, &store.FindReminder{Status: &status, Kind: &kind})
	if err != nil {
		return result, location.NewError(location.CodeUnknown, "resume_deferred", err)
	}

	for _, r := range deferred {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, evicted := o.resumeOne(logging.With(ctx, "reminder_id", r.ID), r.ID, position)
		o.handleEvictions(ctx, evicted)
		switch outcome {
		case "registered":
			result.Registered++
		case "immediate":
			result.Immediate++
		case "failed":
			result.Failed++
		}
	}
	return result, nil
}

func (o *Orchestrator) resumeOne(ctx context.Context, id int32, position location.Coordinate) (string, []geofence.Eviction) {
	logger := logging.FromContext(ctx)

	unlock := o.locks.Lock(id)
	defer unlock()

	r, err := o.store.GetReminder(ctx, id)
	if err != nil || r == nil || r.Status != store.ReminderPendingPosition {
		return "", nil
	}
	data, err := location.ParseLocationData(deref(r.LocationData))
	if err != nil {
		logger.Warn("skipping deferred reminder with unreadable location data", "error", err)
		return "failed", nil
	}

	targets, err := o.planCategory(ctx, data, position)
	if err != nil {
		logger.Info("deferred reminder still cannot be planned", "error", err)
		return "failed", nil
	}

	if inside, hit := insideAny(&position, targets); inside {
		pending, firedTs := store.ReminderPending, o.cfg.Now().Unix()
		if _, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: id, Status: &pending, LastFiredTs: &firedTs}); err != nil {
			logger.Warn("failed to update deferred reminder", "error", err)
			return "failed", nil
		}
		o.deliver(ctx, notify.Notification{
			ReminderID:  r.ID,
			ReminderUID: r.UID,
			Message:     r.Message,
			PlaceName:   hit.name,
			Reason:      notify.ReasonImmediate,
		})
		return "immediate", nil
	}

	if targets, err = o.fitCapacity(targets); err != nil {
		logger.Info("deferred reminder has no trigger capacity", "error", err)
		return "failed", nil
	}

	_, evicted, err := o.registerReminder(ctx, r, targets)
	if err != nil {
		logger.Warn("failed to register deferred reminder", "error", err)
		return "failed", evicted
	}
	return "registered", evicted
}

// ReregisterResult summarizes a ReregisterAll pass.
type ReregisterResult struct {
	Registered int `json:"registered"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ReregisterAll registers the persisted triggers of every active location
// reminder again, after a process or device restart. Reminders without
// location data, coordinates or trigger ids are skipped and logged.
func (o *Orchestrator) ReregisterAll(ctx context.Context) (ReregisterResult, error) {
	var result ReregisterResult

	reminders, err := o.store.ListActiveLocationReminders(ctx)
	if err != nil {
		return result, location.NewError(location.CodeUnknown, "reregister_all", err)
	}
	// Oldest first, so a ceiling hit while restoring evicts the same
	// reminders a live process would have.
	sort.SliceStable(reminders, func(i, j int) bool {
		if reminders[i].CreatedTs != reminders[j].CreatedTs {
			return reminders[i].CreatedTs < reminders[j].CreatedTs
		}
		return reminders[i].ID < reminders[j].ID
	})

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		evicted []geofence.Eviction
		sem     = semaphore.NewWeighted(int64(o.cfg.Parallelism))
	)
	for _, r := range reminders {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(r *store.Reminder) {
			defer wg.Done()
			defer sem.Release(1)

			outcome, ev := o.reregister(logging.With(ctx, "reminder_id", r.ID), r)

			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, ev...)
			switch outcome {
			case "registered":
				result.Registered++
			case "skipped":
				result.Skipped++
			default:
				result.Failed++
			}
		}(r)
	}
	wg.Wait()

	o.handleEvictions(ctx, evicted)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := o.syncMonitoring(ctx); err != nil {
		logging.FromContext(ctx).Warn("failed to reconcile monitoring", "error", err)
	}
	logging.FromContext(ctx).Info("re-registered location reminders",
		"registered", result.Registered, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (o *Orchestrator) reregister(ctx context.Context, r *store.Reminder) (string, []geofence.Eviction) {
	logger := logging.FromContext(ctx)

	if r.LocationData == nil {
		logger.Warn("skipping reminder without location data")
		return "skipped", nil
	}
	data, err := location.ParseLocationData(*r.LocationData)
	if err != nil {
		logger.Warn("skipping reminder with unreadable location data", "error", err)
		return "skipped", nil
	}

	rows, err := o.store.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &r.ID})
	if err != nil {
		logger.Warn("failed to list reminder triggers", "error", err)
		return "failed", nil
	}
	if len(rows) == 0 {
		coordinate, ok := data.Coordinate()
		if !ok || r.TriggerID == nil {
			logger.Warn("skipping reminder without coordinates or trigger id")
			return "skipped", nil
		}
		row := &store.ReminderTrigger{
			TriggerID:    *r.TriggerID,
			ReminderID:   r.ID,
			Latitude:     coordinate.Latitude,
			Longitude:    coordinate.Longitude,
			RadiusMeters: data.Radius(),
			PlaceName:    data.Name(),
		}
		if err := o.store.CreateReminderTriggers(ctx, []*store.ReminderTrigger{row}); err != nil {
			logger.Warn("failed to restore trigger row", "error", err)
			return "failed", nil
		}
		rows = []*store.ReminderTrigger{row}
	}

	triggers := make([]geofence.Trigger, 0, len(rows))
	for _, row := range rows {
		triggers = append(triggers, geofence.Trigger{
			ID:           row.TriggerID,
			Owner:        owner(r.ID),
			Coordinate:   location.Coordinate{Latitude: row.Latitude, Longitude: row.Longitude},
			RadiusMeters: row.RadiusMeters,
			CreatedTs:    r.CreatedTs,
		})
	}
	outcome, err := o.registry.RegisterBatch(ctx, triggers)
	if err != nil {
		logger.Warn("failed to re-register triggers", "error", err)
		return "failed", outcome.Evicted
	}
	return "registered", outcome.Evicted
}

// Watch follows the store's active location reminders and keeps the
// monitoring session in line with them until ctx is done.
func (o *Orchestrator) Watch(ctx context.Context) error {
	updates, err := o.store.SubscribeActiveLocationReminders(ctx)
	if err != nil {
		return err
	}
	for range updates {
		if err := o.syncMonitoring(ctx); err != nil {
			logging.FromContext(ctx).Warn("failed to reconcile monitoring", "error", err)
		}
	}
	return ctx.Err()
}

// syncMonitoring sets the monitoring reference count to the number of
// reminders that hold triggers according to the store.
func (o *Orchestrator) syncMonitoring(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	active, err := o.store.ListActiveLocationReminders(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, r := range active {
		if holdsTrigger(r) {
			n++
		}
	}
	return o.session.Reconcile(ctx, n)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

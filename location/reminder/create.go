package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/geominder/internal/logging"
	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/plugin/notify"
	"github.com/hrygo/geominder/store"
)

// CreateResult describes a created location reminder.
type CreateResult struct {
	ReminderID int32 `json:"reminderId"`
	// TriggerIDs are the registered triggers, empty for immediate or deferred
	// reminders.
	TriggerIDs []string `json:"triggerIds,omitempty"`
	// Immediate is set when the reminder was delivered at creation because
	// the device was already inside the target region.
	Immediate bool `json:"immediate,omitempty"`
	// Deferred is set for category reminders waiting for a position.
	Deferred bool `json:"deferred,omitempty"`
	// Evicted lists reminders that lost their triggers to make room.
	Evicted []int32 `json:"evicted,omitempty"`
}

// target is one region a reminder should be monitored at.
type target struct {
	coordinate location.Coordinate
	radius     float64
	name       string
}

// CreateFromCommand interprets text and creates the reminder it describes.
// Text without location intent returns matched=false and no error.
func (o *Orchestrator) CreateFromCommand(ctx context.Context, text string) (*CreateResult, bool, error) {
	cmd, ok := o.interpreter.Parse(text)
	if !ok {
		return nil, false, nil
	}
	result, err := o.CreateReminder(ctx, cmd.Message, cmd.LocationData())
	return result, true, err
}

// CreateReminder persists a location reminder and registers its triggers.
// Errors carry INVALID_INPUT, RESOLUTION_FAILED, REGISTRATION_FAILED or
// CEILING_EXCEEDED. On error nothing stays persisted or registered.
func (o *Orchestrator) CreateReminder(ctx context.Context, message string, data location.LocationData) (*CreateResult, error) {
	const op = "create_reminder"

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, o.createFailed(data, location.NewError(location.CodeInvalidInput, op, errors.New("message is blank")))
	}
	if err := data.Validate(); err != nil {
		return nil, o.createFailed(data, location.NewError(location.CodeInvalidInput, op, err))
	}

	var (
		result *CreateResult
		err    error
	)
	switch data.LocationType {
	case location.SpecificPlace:
		result, err = o.createSpecific(ctx, message, data)
	case location.GenericCategory:
		result, err = o.createCategory(ctx, message, data)
	}
	if err != nil {
		return nil, o.createFailed(data, err)
	}

	outcome := "registered"
	switch {
	case result.Immediate:
		outcome = "immediate"
	case result.Deferred:
		outcome = "deferred"
	}
	o.cfg.Metrics.RecordReminderCreated(string(data.LocationType), outcome)
	return result, nil
}

func (o *Orchestrator) createFailed(data location.LocationData, err error) error {
	o.cfg.Metrics.RecordReminderCreated(string(data.LocationType), string(location.CodeOf(err)))
	return err
}

func (o *Orchestrator) createSpecific(ctx context.Context, message string, data location.LocationData) (*CreateResult, error) {
	const op = "create_reminder"

	coordinate, ok := data.Coordinate()
	radius := data.Radius()
	if !ok {
		place, err := o.resolver.Resolve(ctx, data.Name())
		if err != nil {
			if location.IsCode(err, location.CodeInvalidInput) {
				return nil, location.NewError(location.CodeInvalidInput, op, err)
			}
			return nil, location.NewError(location.CodeResolutionFailed, op, err)
		}
		coordinate = place.Coordinate
		if place.Source == location.SourceSaved && place.RadiusMeters > 0 {
			radius = place.RadiusMeters
		}
	}
	data = data.WithCoordinate(coordinate)
	data.RadiusMeters = radius

	targets := []target{{coordinate: coordinate, radius: radius, name: data.Name()}}
	return o.persistAndRegister(ctx, message, data, targets, o.currentPosition(ctx))
}

func (o *Orchestrator) createCategory(ctx context.Context, message string, data location.LocationData) (*CreateResult, error) {
	data.RadiusMeters = data.Radius()
	position := o.currentPosition(ctx)
	if position == nil {
		return o.createDeferred(ctx, message, data)
	}

	targets, err := o.planCategory(ctx, data, *position)
	if err != nil {
		return nil, err
	}
	if inside, _ := insideAny(position, targets); !inside {
		if targets, err = o.fitCapacity(targets); err != nil {
			return nil, err
		}
	}
	return o.persistAndRegister(ctx, message, data, targets, position)
}

// planCategory returns the places of the category around position, nearest
// first.
func (o *Orchestrator) planCategory(ctx context.Context, data location.LocationData, position location.Coordinate) ([]target, error) {
	const op = "plan_category"

	places, err := o.resolver.FindNearby(ctx, data.Category(), position, o.cfg.SearchRadius)
	if err != nil {
		if location.IsCode(err, location.CodeInvalidInput) {
			return nil, location.NewError(location.CodeInvalidInput, op, err)
		}
		return nil, location.NewError(location.CodeResolutionFailed, op, err)
	}
	if len(places) == 0 {
		return nil, location.NewError(location.CodeResolutionFailed, op,
			fmt.Errorf("no %s within %.0f m", data.Category(), o.cfg.SearchRadius))
	}

	targets := make([]target, 0, len(places))
	for _, p := range places {
		targets = append(targets, target{coordinate: p.Coordinate, radius: data.Radius(), name: p.Name})
	}
	return targets, nil
}

// fitCapacity trims targets to the remaining trigger capacity. With no
// capacity left the evict policy keeps the nearest target and the deny
// policy fails with CEILING_EXCEEDED.
func (o *Orchestrator) fitCapacity(targets []target) ([]target, error) {
	capacity := o.registry.Remaining()
	if capacity == 0 {
		if o.registry.Policy() != geofence.PolicyEvict {
			return nil, location.NewError(location.CodeCeilingExceeded, "plan_category", geofence.ErrCeilingExceeded)
		}
		capacity = 1
	}
	if len(targets) > capacity {
		targets = targets[:capacity]
	}
	return targets, nil
}

// createDeferred persists a category reminder that waits for a known position.
func (o *Orchestrator) createDeferred(ctx context.Context, message string, data location.LocationData) (*CreateResult, error) {
	blob, err := data.Marshal()
	if err != nil {
		return nil, location.NewError(location.CodeInvalidInput, "defer_reminder", err)
	}
	r, err := o.store.CreateReminder(ctx, &store.Reminder{
		Message:      message,
		Status:       store.ReminderPendingPosition,
		Kind:         store.ReminderLocationBased,
		LocationData: &blob,
	})
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, "defer_reminder", err)
	}
	slog.Info("category reminder deferred until a position is known", "reminder_id", r.ID, "category", data.Category())
	return &CreateResult{ReminderID: r.ID, Deferred: true}, nil
}

// persistAndRegister stores the reminder before registering its triggers.
// When position is already inside a target, the reminder is delivered now
// and the registry is never called.
func (o *Orchestrator) persistAndRegister(ctx context.Context, message string, data location.LocationData, targets []target, position *location.Coordinate) (*CreateResult, error) {
	const op = "create_reminder"

	blob, err := data.Marshal()
	if err != nil {
		return nil, location.NewError(location.CodeInvalidInput, op, err)
	}

	inside, hit := insideAny(position, targets)
	create := &store.Reminder{
		Message:      message,
		Status:       store.ReminderPending,
		Kind:         store.ReminderLocationBased,
		LocationData: &blob,
	}
	if inside {
		firedTs := o.cfg.Now().Unix()
		create.LastFiredTs = &firedTs
	}
	r, err := o.store.CreateReminder(ctx, create)
	if err != nil {
		return nil, location.NewError(location.CodeUnknown, op, err)
	}
	ctx = logging.With(ctx, "reminder_id", r.ID)

	if inside {
		logging.FromContext(ctx).Info("already inside target region, delivering now", "place", hit.name)
		o.deliver(ctx, notify.Notification{
			ReminderID:  r.ID,
			ReminderUID: r.UID,
			Message:     r.Message,
			PlaceName:   hit.name,
			Reason:      notify.ReasonImmediate,
		})
		return &CreateResult{ReminderID: r.ID, Immediate: true}, nil
	}

	ids, evicted, err := o.registerReminder(ctx, r, targets)
	o.handleEvictions(ctx, evicted)
	if err != nil {
		if delErr := o.store.DeleteReminder(context.WithoutCancel(ctx), &store.DeleteReminder{ID: r.ID}); delErr != nil {
			logging.FromContext(ctx).Warn("failed to remove reminder after registration failure", "error", delErr)
		} else {
			logging.FromContext(ctx).Warn("removed reminder after registration failure", "error", err)
		}
		return nil, err
	}
	return &CreateResult{ReminderID: r.ID, TriggerIDs: ids, Evicted: evictedOwners(evicted)}, nil
}

// registerReminder persists trigger rows for r, registers them and marks r
// as holding triggers. On failure trigger rows and registrations made by
// this call are removed; the reminder record itself is left to the caller.
// Evictions are returned even on failure and must be handled by the caller
// after releasing any per-reminder lock.
func (o *Orchestrator) registerReminder(ctx context.Context, r *store.Reminder, targets []target) ([]string, []geofence.Eviction, error) {
	const op = "register_reminder"
	logger := logging.FromContext(ctx)

	rows := make([]*store.ReminderTrigger, 0, len(targets))
	triggers := make([]geofence.Trigger, 0, len(targets))
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		id := o.cfg.NewTriggerID()
		ids = append(ids, id)
		rows = append(rows, &store.ReminderTrigger{
			TriggerID:    id,
			ReminderID:   r.ID,
			Latitude:     t.coordinate.Latitude,
			Longitude:    t.coordinate.Longitude,
			RadiusMeters: t.radius,
			PlaceName:    t.name,
		})
		triggers = append(triggers, geofence.Trigger{
			ID:           id,
			Owner:        owner(r.ID),
			Coordinate:   t.coordinate,
			RadiusMeters: t.radius,
			CreatedTs:    r.CreatedTs,
		})
	}

	if err := o.store.CreateReminderTriggers(ctx, rows); err != nil {
		return nil, nil, location.NewError(location.CodeRegistrationFailed, op, err)
	}
	dropRows := func() {
		if err := o.store.DeleteReminderTriggers(context.WithoutCancel(ctx), &store.DeleteReminderTrigger{ReminderID: &r.ID}); err != nil {
			logger.Warn("failed to remove trigger rows", "error", err)
		}
	}

	outcome, err := o.registry.RegisterBatch(ctx, triggers)
	if err != nil {
		dropRows()
		return nil, outcome.Evicted, err
	}

	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	pending := store.ReminderPending
	if _, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: r.ID, Status: &pending, TriggerID: &ids[0]}); err != nil {
		cleanup := context.WithoutCancel(ctx)
		for _, id := range ids {
			if rmErr := o.registry.Remove(cleanup, id); rmErr != nil {
				logger.Warn("failed to remove trigger during compensation", "trigger_id", id, "error", rmErr)
			}
		}
		dropRows()
		return nil, outcome.Evicted, location.NewError(location.CodeRegistrationFailed, op, err)
	}
	if err := o.session.Acquire(ctx); err != nil {
		logger.Warn("failed to start monitoring", "error", err)
	}
	logger.Info("registered location reminder", "triggers", len(ids))
	return ids, outcome.Evicted, nil
}

// handleEvictions drops the trigger rows of evicted triggers and tells the
// owners. A reminder left without triggers stops holding monitoring.
func (o *Orchestrator) handleEvictions(ctx context.Context, evicted []geofence.Eviction) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range evicted {
		id, ok := ownerID(e.Owner)
		if !ok {
			continue
		}
		o.evictTrigger(ctx, id, e.TriggerID)
	}
}

func (o *Orchestrator) evictTrigger(ctx context.Context, reminderID int32, triggerID string) {
	unlock := o.locks.Lock(reminderID)
	defer unlock()

	logger := slog.With("reminder_id", reminderID, "trigger_id", triggerID)
	if err := o.store.DeleteReminderTriggers(ctx, &store.DeleteReminderTrigger{TriggerID: &triggerID}); err != nil {
		logger.Warn("failed to drop evicted trigger row", "error", err)
	}
	r, err := o.store.GetReminder(ctx, reminderID)
	if err != nil || r == nil {
		return
	}
	remaining, err := o.store.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &reminderID})
	if err != nil {
		logger.Warn("failed to list remaining triggers", "error", err)
		return
	}
	if len(remaining) > 0 {
		if r.TriggerID != nil && *r.TriggerID == triggerID {
			if _, err := o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: r.ID, TriggerID: &remaining[0].TriggerID}); err != nil {
				logger.Warn("failed to repoint reminder trigger", "error", err)
			}
		}
		return
	}

	o.lifecycleMu.Lock()
	held := holdsTrigger(r)
	cleared := ""
	_, err = o.store.UpdateReminder(ctx, &store.UpdateReminder{ID: r.ID, TriggerID: &cleared})
	if err == nil && held {
		if relErr := o.session.Release(ctx); relErr != nil {
			logger.Warn("failed to stop monitoring", "error", relErr)
		}
	}
	o.lifecycleMu.Unlock()
	if err != nil {
		logger.Warn("failed to clear evicted reminder trigger", "error", err)
		return
	}

	logger.Info("reminder lost its last trigger to the ceiling")
	o.deliver(ctx, notify.Notification{
		ReminderID:  r.ID,
		ReminderUID: r.UID,
		Message:     r.Message,
		Reason:      notify.ReasonEvicted,
	})
}

func insideAny(position *location.Coordinate, targets []target) (bool, target) {
	if position == nil {
		return false, target{}
	}
	for _, t := range targets {
		if location.IsWithinRadius(*position, t.coordinate, t.radius) {
			return true, t
		}
	}
	return false, target{}
}

func evictedOwners(evicted []geofence.Eviction) []int32 {
	var owners []int32
	seen := make(map[int32]bool)
	for _, e := range evicted {
		id, ok := ownerID(e.Owner)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		owners = append(owners, id)
	}
	return owners
}

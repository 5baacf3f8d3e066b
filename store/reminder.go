package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReminderStatus is the lifecycle status of a reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderCompleted ReminderStatus = "COMPLETED"
	ReminderCancelled ReminderStatus = "CANCELLED"
	// ReminderPendingPosition marks a category reminder waiting for the first
	// known position before its triggers can be planned.
	ReminderPendingPosition ReminderStatus = "PENDING_POSITION"
)

// ReminderKind tells what schedules a reminder.
type ReminderKind string

const (
	ReminderTimeBased     ReminderKind = "TIME_BASED"
	ReminderLocationBased ReminderKind = "LOCATION_BASED"
)

// Reminder is a user task. Location reminders carry serialized LocationData
// and the id of their first registered trigger.
type Reminder struct {
	ID             int32
	UID            string
	Message        string
	DueTs          *int64
	Status         ReminderStatus
	Kind           ReminderKind
	LocationData   *string
	TriggerID      *string
	LastFiredTs    *int64
	SnoozedUntilTs *int64
	CreatedTs      int64
	UpdatedTs      int64
}

// FindReminder is the find condition for reminders.
type FindReminder struct {
	ID     *int32
	UID    *string
	Status *ReminderStatus
	Kind   *ReminderKind
	Limit  *int
}

// UpdateReminder is the update condition for reminders. Nil fields are left
// unchanged. An empty TriggerID clears the column.
type UpdateReminder struct {
	ID             int32
	Message        *string
	Status         *ReminderStatus
	TriggerID      *string
	LastFiredTs    *int64
	SnoozedUntilTs *int64
	UpdatedTs      *int64
}

// DeleteReminder is the delete condition for reminders.
type DeleteReminder struct {
	ID int32
}

// CreateReminder persists a reminder and assigns its UID and timestamps.
func (s *Store) CreateReminder(ctx context.Context, create *Reminder) (*Reminder, error) {
	if create.UID == "" {
		create.UID = uuid.NewString()
	}
	if create.Status == "" {
		create.Status = ReminderPending
	}
	ts := s.now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = ts
	}
	create.UpdatedTs = ts

	reminder, err := s.driver.CreateReminder(ctx, create)
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return reminder, nil
}

func (s *Store) ListReminders(ctx context.Context, find *FindReminder) ([]*Reminder, error) {
	return s.driver.ListReminders(ctx, find)
}

// GetReminder returns the reminder with id, or nil when none exists.
func (s *Store) GetReminder(ctx context.Context, id int32) (*Reminder, error) {
	list, err := s.driver.ListReminders(ctx, &FindReminder{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetReminderByTriggerID returns the reminder owning triggerID, or nil.
func (s *Store) GetReminderByTriggerID(ctx context.Context, triggerID string) (*Reminder, error) {
	triggers, err := s.driver.ListReminderTriggers(ctx, &FindReminderTrigger{TriggerID: &triggerID})
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, nil
	}
	return s.GetReminder(ctx, triggers[0].ReminderID)
}

// ListActiveLocationReminders returns every PENDING location reminder.
func (s *Store) ListActiveLocationReminders(ctx context.Context) ([]*Reminder, error) {
	status, kind := ReminderPending, ReminderLocationBased
	return s.driver.ListReminders(ctx, &FindReminder{Status: &status, Kind: &kind})
}

func (s *Store) UpdateReminder(ctx context.Context, update *UpdateReminder) (*Reminder, error) {
	if update.UpdatedTs == nil {
		ts := s.now().Unix()
		update.UpdatedTs = &ts
	}
	reminder, err := s.driver.UpdateReminder(ctx, update)
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return reminder, nil
}

// DeleteReminder removes the reminder together with its trigger rows.
func (s *Store) DeleteReminder(ctx context.Context, delete *DeleteReminder) error {
	if err := s.driver.DeleteReminderTriggers(ctx, &DeleteReminderTrigger{ReminderID: &delete.ID}); err != nil {
		return errors.Wrap(err, "failed to delete reminder triggers")
	}
	if err := s.driver.DeleteReminder(ctx, delete); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

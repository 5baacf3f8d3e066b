package store

import "context"

// ReminderTrigger is one proximity region registered for a reminder.
// A category reminder owns one row per nearby place.
type ReminderTrigger struct {
	TriggerID    string
	ReminderID   int32
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	PlaceName    string
	CreatedTs    int64
}

// FindReminderTrigger is the find condition for reminder triggers.
type FindReminderTrigger struct {
	TriggerID  *string
	ReminderID *int32
}

// DeleteReminderTrigger deletes by trigger id, by reminder id, or both.
type DeleteReminderTrigger struct {
	TriggerID  *string
	ReminderID *int32
}

// CreateReminderTriggers persists triggers in one transaction.
func (s *Store) CreateReminderTriggers(ctx context.Context, creates []*ReminderTrigger) error {
	if len(creates) == 0 {
		return nil
	}
	ts := s.now().Unix()
	for _, create := range creates {
		if create.CreatedTs == 0 {
			create.CreatedTs = ts
		}
	}
	if err := s.driver.CreateReminderTriggers(ctx, creates); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

func (s *Store) ListReminderTriggers(ctx context.Context, find *FindReminderTrigger) ([]*ReminderTrigger, error) {
	return s.driver.ListReminderTriggers(ctx, find)
}

func (s *Store) DeleteReminderTriggers(ctx context.Context, delete *DeleteReminderTrigger) error {
	if err := s.driver.DeleteReminderTriggers(ctx, delete); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

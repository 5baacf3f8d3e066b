package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	// GetDB returns the underlying handle, or nil for drivers without one.
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Reminder model related methods.
	CreateReminder(ctx context.Context, create *Reminder) (*Reminder, error)
	ListReminders(ctx context.Context, find *FindReminder) ([]*Reminder, error)
	UpdateReminder(ctx context.Context, update *UpdateReminder) (*Reminder, error)
	DeleteReminder(ctx context.Context, delete *DeleteReminder) error

	// ReminderTrigger model related methods.
	CreateReminderTriggers(ctx context.Context, creates []*ReminderTrigger) error
	ListReminderTriggers(ctx context.Context, find *FindReminderTrigger) ([]*ReminderTrigger, error)
	DeleteReminderTriggers(ctx context.Context, delete *DeleteReminderTrigger) error

	// SavedPlace model related methods.
	CreateSavedPlace(ctx context.Context, create *SavedPlace) (*SavedPlace, error)
	ListSavedPlaces(ctx context.Context, find *FindSavedPlace) ([]*SavedPlace, error)
	UpdateSavedPlace(ctx context.Context, update *UpdateSavedPlace) (*SavedPlace, error)
	DeleteSavedPlace(ctx context.Context, delete *DeleteSavedPlace) error
}

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/internal/profile"
	"github.com/hrygo/geominder/store"
)

func TestPlaceholders(t *testing.T) {
	p := &placeholders{}
	assert.Equal(t, "$1", p.add("a"))
	assert.Equal(t, "$2", p.add(int32(7)))
	assert.Equal(t, []any{"a", int32(7)}, p.args)
	assert.Equal(t, "TRUE", joinAnd(nil))
	assert.Equal(t, "a = $1 AND b = $2", joinAnd([]string{"a = $1", "b = $2"}))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(assert.AnError))
}

// TestPostgresDriver runs against a live database when
// GEOMINDER_TEST_POSTGRES_DSN is set.
func TestPostgresDriver(t *testing.T) {
	dsn := os.Getenv("GEOMINDER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GEOMINDER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	driver, err := NewDB(&profile.Profile{DSN: dsn})
	require.NoError(t, err)
	defer driver.Close()
	require.NoError(t, driver.Migrate(ctx))
	require.NoError(t, driver.Migrate(ctx))

	reminder, err := driver.CreateReminder(ctx, &store.Reminder{
		UID: "pg-test-uid", Message: "buy milk", Status: store.ReminderPending, Kind: store.ReminderLocationBased,
		CreatedTs: 1, UpdatedTs: 1,
	})
	require.NoError(t, err)
	defer func() {
		_ = driver.DeleteReminderTriggers(ctx, &store.DeleteReminderTrigger{ReminderID: &reminder.ID})
		_ = driver.DeleteReminder(ctx, &store.DeleteReminder{ID: reminder.ID})
	}()

	require.NoError(t, driver.CreateReminderTriggers(ctx, []*store.ReminderTrigger{
		{TriggerID: "pg-a", ReminderID: reminder.ID, Latitude: 1, Longitude: 2, RadiusMeters: 200, CreatedTs: 1},
		{TriggerID: "pg-b", ReminderID: reminder.ID, Latitude: 3, Longitude: 4, RadiusMeters: 200, CreatedTs: 2},
	}))
	triggers, err := driver.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &reminder.ID})
	require.NoError(t, err)
	assert.Len(t, triggers, 2)

	place, err := driver.CreateSavedPlace(ctx, &store.SavedPlace{Name: "PG Home", Latitude: 1, Longitude: 2, RadiusMeters: 100, CreatedTs: 1})
	require.NoError(t, err)
	defer func() { _ = driver.DeleteSavedPlace(ctx, &store.DeleteSavedPlace{ID: place.ID}) }()

	_, err = driver.CreateSavedPlace(ctx, &store.SavedPlace{Name: "pg home", Latitude: 1, Longitude: 2, RadiusMeters: 100, CreatedTs: 1})
	assert.ErrorIs(t, err, store.ErrDuplicateName)
}

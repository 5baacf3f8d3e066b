package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/internal/profile"
	"github.com/hrygo/geominder/store"
	"github.com/hrygo/geominder/store/db/memory"
)

func newTestStore(t *testing.T, limit int) *store.Store {
	t.Helper()
	s := store.New(memory.NewDB(), &profile.Profile{SavedPlaceLimit: limit})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateReminderDefaults(t *testing.T) {
	s := newTestStore(t, 20)
	s.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	ctx := context.Background()

	r, err := s.CreateReminder(ctx, &store.Reminder{Message: "buy milk", Kind: store.ReminderLocationBased})
	require.NoError(t, err)
	assert.NotEmpty(t, r.UID)
	assert.Equal(t, store.ReminderPending, r.Status)
	assert.Equal(t, int64(1_700_000_000), r.CreatedTs)
	assert.Equal(t, r.CreatedTs, r.UpdatedTs)
}

func TestStore_ReminderByTriggerID(t *testing.T) {
	s := newTestStore(t, 20)
	ctx := context.Background()

	r, err := s.CreateReminder(ctx, &store.Reminder{Message: "buy milk", Kind: store.ReminderLocationBased})
	require.NoError(t, err)
	require.NoError(t, s.CreateReminderTriggers(ctx, []*store.ReminderTrigger{
		{TriggerID: "t-1", ReminderID: r.ID, Latitude: 1, Longitude: 1, RadiusMeters: 200},
		{TriggerID: "t-2", ReminderID: r.ID, Latitude: 2, Longitude: 2, RadiusMeters: 200},
	}))

	got, err := s.GetReminderByTriggerID(ctx, "t-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	got, err = s.GetReminderByTriggerID(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)

	t.Run("delete removes trigger rows", func(t *testing.T) {
		require.NoError(t, s.DeleteReminder(ctx, &store.DeleteReminder{ID: r.ID}))
		triggers, err := s.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &r.ID})
		require.NoError(t, err)
		assert.Empty(t, triggers)
	})
}

func TestStore_SavedPlaceLimitAndNames(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateSavedPlace(ctx, &store.SavedPlace{Name: fmt.Sprintf("place-%d", i), Latitude: 1, Longitude: 1})
		require.NoError(t, err)
	}

	_, err := s.CreateSavedPlace(ctx, &store.SavedPlace{Name: "one too many", Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, store.ErrSavedPlaceLimit)

	list, err := s.ListSavedPlaces(ctx, &store.FindSavedPlace{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, store.DefaultSavedPlaceRadius, list[0].RadiusMeters)

	require.NoError(t, s.DeleteSavedPlace(ctx, &store.DeleteSavedPlace{ID: list[0].ID}))

	_, err = s.CreateSavedPlace(ctx, &store.SavedPlace{Name: "PLACE-1", Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, store.ErrDuplicateName)

	_, err = s.CreateSavedPlace(ctx, &store.SavedPlace{Name: "   ", Latitude: 1, Longitude: 1})
	assert.Error(t, err)

	home, err := s.CreateSavedPlace(ctx, &store.SavedPlace{Name: " Home ", Latitude: 52.5, Longitude: 13.4})
	require.NoError(t, err)
	assert.Equal(t, "Home", home.Name)

	found, err := s.GetSavedPlaceByName(ctx, "HOME")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, home.ID, found.ID)

	rename := "place-2"
	_, err = s.UpdateSavedPlace(ctx, &store.UpdateSavedPlace{ID: home.ID, Name: &rename})
	assert.ErrorIs(t, err, store.ErrDuplicateName)

	same := "home"
	updated, err := s.UpdateSavedPlace(ctx, &store.UpdateSavedPlace{ID: home.ID, Name: &same})
	require.NoError(t, err)
	assert.Equal(t, "home", updated.Name)
}

func TestStore_SubscribeActiveLocationReminders(t *testing.T) {
	s := newTestStore(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.SubscribeActiveLocationReminders(ctx)
	require.NoError(t, err)

	initial := <-ch
	assert.Empty(t, initial)

	r, err := s.CreateReminder(ctx, &store.Reminder{Message: "buy milk", Kind: store.ReminderLocationBased})
	require.NoError(t, err)
	_, err = s.CreateReminder(ctx, &store.Reminder{Message: "standup", Kind: store.ReminderTimeBased})
	require.NoError(t, err)

	// Only the latest snapshot is kept for a slow reader.
	snapshot := <-ch
	require.Len(t, snapshot, 1)
	assert.Equal(t, r.ID, snapshot[0].ID)

	completed := store.ReminderCompleted
	_, err = s.UpdateReminder(ctx, &store.UpdateReminder{ID: r.ID, Status: &completed})
	require.NoError(t, err)
	assert.Empty(t, <-ch)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

// Package memory is an in-process store driver for tests and ephemeral runs.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/store"
)

type DB struct {
	mu sync.RWMutex

	nextReminderID int32
	nextPlaceID    int32
	reminders      map[int32]store.Reminder
	triggers       map[string]store.ReminderTrigger
	places         map[int32]store.SavedPlace
}

// NewDB returns an empty in-memory driver.
func NewDB() store.Driver {
	return &DB{
		reminders: make(map[int32]store.Reminder),
		triggers:  make(map[string]store.ReminderTrigger),
		places:    make(map[int32]store.SavedPlace),
	}
}

func (d *DB) GetDB() *sql.DB { return nil }

func (d *DB) Close() error { return nil }

func (d *DB) Migrate(context.Context) error { return nil }

func (d *DB) CreateReminder(_ context.Context, create *store.Reminder) (*store.Reminder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextReminderID++
	r := copyReminder(*create)
	r.ID = d.nextReminderID
	d.reminders[r.ID] = r
	out := copyReminder(r)
	return &out, nil
}

func (d *DB) ListReminders(_ context.Context, find *store.FindReminder) ([]*store.Reminder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.Reminder, 0, len(d.reminders))
	for _, r := range d.reminders {
		if find.ID != nil && r.ID != *find.ID {
			continue
		}
		if find.UID != nil && r.UID != *find.UID {
			continue
		}
		if find.Status != nil && r.Status != *find.Status {
			continue
		}
		if find.Kind != nil && r.Kind != *find.Kind {
			continue
		}
		out := copyReminder(r)
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit != nil && *find.Limit < len(list) {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *DB) UpdateReminder(_ context.Context, update *store.UpdateReminder) (*store.Reminder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.reminders[update.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "reminder %d", update.ID)
	}
	if update.Message != nil {
		r.Message = *update.Message
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.TriggerID != nil {
		if *update.TriggerID == "" {
			r.TriggerID = nil
		} else {
			r.TriggerID = ptr(*update.TriggerID)
		}
	}
	if update.LastFiredTs != nil {
		r.LastFiredTs = ptr(*update.LastFiredTs)
	}
	if update.SnoozedUntilTs != nil {
		r.SnoozedUntilTs = ptr(*update.SnoozedUntilTs)
	}
	if update.UpdatedTs != nil {
		r.UpdatedTs = *update.UpdatedTs
	}
	d.reminders[r.ID] = r
	out := copyReminder(r)
	return &out, nil
}

func (d *DB) DeleteReminder(_ context.Context, del *store.DeleteReminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.reminders[del.ID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "reminder %d", del.ID)
	}
	delete(d.reminders, del.ID)
	return nil
}

func (d *DB) CreateReminderTriggers(_ context.Context, creates []*store.ReminderTrigger) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range creates {
		if _, ok := d.triggers[c.TriggerID]; ok {
			return errors.Errorf("trigger %s already exists", c.TriggerID)
		}
	}
	for _, c := range creates {
		d.triggers[c.TriggerID] = *c
	}
	return nil
}

func (d *DB) ListReminderTriggers(_ context.Context, find *store.FindReminderTrigger) ([]*store.ReminderTrigger, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.ReminderTrigger, 0)
	for _, t := range d.triggers {
		if find.TriggerID != nil && t.TriggerID != *find.TriggerID {
			continue
		}
		if find.ReminderID != nil && t.ReminderID != *find.ReminderID {
			continue
		}
		out := t
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].TriggerID < list[j].TriggerID
	})
	return list, nil
}

func (d *DB) DeleteReminderTriggers(_ context.Context, del *store.DeleteReminderTrigger) error {
	if del.TriggerID == nil && del.ReminderID == nil {
		return errors.New("delete reminder triggers requires a condition")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, t := range d.triggers {
		if del.TriggerID != nil && t.TriggerID != *del.TriggerID {
			continue
		}
		if del.ReminderID != nil && t.ReminderID != *del.ReminderID {
			continue
		}
		delete(d.triggers, id)
	}
	return nil
}

func (d *DB) CreateSavedPlace(_ context.Context, create *store.SavedPlace) (*store.SavedPlace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.places {
		if strings.EqualFold(p.Name, create.Name) {
			return nil, store.ErrDuplicateName
		}
	}
	d.nextPlaceID++
	p := *create
	p.ID = d.nextPlaceID
	d.places[p.ID] = p
	out := p
	return &out, nil
}

func (d *DB) ListSavedPlaces(_ context.Context, find *store.FindSavedPlace) ([]*store.SavedPlace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.SavedPlace, 0, len(d.places))
	for _, p := range d.places {
		if find.ID != nil && p.ID != *find.ID {
			continue
		}
		if find.Name != nil && !strings.EqualFold(p.Name, strings.TrimSpace(*find.Name)) {
			continue
		}
		out := p
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *DB) UpdateSavedPlace(_ context.Context, update *store.UpdateSavedPlace) (*store.SavedPlace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.places[update.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "saved place %d", update.ID)
	}
	if update.Name != nil {
		for id, other := range d.places {
			if id != p.ID && strings.EqualFold(other.Name, *update.Name) {
				return nil, store.ErrDuplicateName
			}
		}
		p.Name = *update.Name
	}
	if update.Latitude != nil {
		p.Latitude = *update.Latitude
	}
	if update.Longitude != nil {
		p.Longitude = *update.Longitude
	}
	if update.RadiusMeters != nil {
		p.RadiusMeters = *update.RadiusMeters
	}
	d.places[p.ID] = p
	out := p
	return &out, nil
}

func (d *DB) DeleteSavedPlace(_ context.Context, del *store.DeleteSavedPlace) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.places[del.ID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "saved place %d", del.ID)
	}
	delete(d.places, del.ID)
	return nil
}

func copyReminder(r store.Reminder) store.Reminder {
	r.DueTs = clone(r.DueTs)
	r.LocationData = clone(r.LocationData)
	r.TriggerID = clone(r.TriggerID)
	r.LastFiredTs = clone(r.LastFiredTs)
	r.SnoozedUntilTs = clone(r.SnoozedUntilTs)
	return r
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return ptr(*p)
}

func ptr[T any](v T) *T {
	return &v
}

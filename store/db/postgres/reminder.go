package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/geominder/store"
)

const reminderColumns = `id, uid, message, due_ts, status, kind, location_data, trigger_id, last_fired_ts, snoozed_until_ts, created_ts, updated_ts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*store.Reminder, error) {
	var r store.Reminder
	err := row.Scan(
		&r.ID,
		&r.UID,
		&r.Message,
		&r.DueTs,
		&r.Status,
		&r.Kind,
		&r.LocationData,
		&r.TriggerID,
		&r.LastFiredTs,
		&r.SnoozedUntilTs,
		&r.CreatedTs,
		&r.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) CreateReminder(ctx context.Context, create *store.Reminder) (*store.Reminder, error) {
	query := `
		INSERT INTO reminder (uid, message, due_ts, status, kind, location_data, trigger_id, last_fired_ts, snoozed_until_ts, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + reminderColumns
	reminder, err := scanReminder(d.db.QueryRowContext(ctx, query,
		create.UID,
		create.Message,
		create.DueTs,
		create.Status,
		create.Kind,
		create.LocationData,
		create.TriggerID,
		create.LastFiredTs,
		create.SnoozedUntilTs,
		create.CreatedTs,
		create.UpdatedTs,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return reminder, nil
}

func (d *DB) ListReminders(ctx context.Context, find *store.FindReminder) ([]*store.Reminder, error) {
	p := &placeholders{}
	where := []string{}

	if v := find.ID; v != nil {
		where = append(where, "id = "+p.add(*v))
	}
	if v := find.UID; v != nil {
		where = append(where, "uid = "+p.add(*v))
	}
	if v := find.Status; v != nil {
		where = append(where, "status = "+p.add(*v))
	}
	if v := find.Kind; v != nil {
		where = append(where, "kind = "+p.add(*v))
	}

	query := `SELECT ` + reminderColumns + ` FROM reminder WHERE ` + joinAnd(where) + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += " LIMIT " + p.add(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Reminder, 0)
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		list = append(list, reminder)
	}
	return list, rows.Err()
}

func (d *DB) UpdateReminder(ctx context.Context, update *store.UpdateReminder) (*store.Reminder, error) {
	p := &placeholders{}
	set := []string{}

	if v := update.Message; v != nil {
		set = append(set, "message = "+p.add(*v))
	}
	if v := update.Status; v != nil {
		set = append(set, "status = "+p.add(*v))
	}
	if v := update.TriggerID; v != nil {
		if *v == "" {
			set = append(set, "trigger_id = NULL")
		} else {
			set = append(set, "trigger_id = "+p.add(*v))
		}
	}
	if v := update.LastFiredTs; v != nil {
		set = append(set, "last_fired_ts = "+p.add(*v))
	}
	if v := update.SnoozedUntilTs; v != nil {
		set = append(set, "snoozed_until_ts = "+p.add(*v))
	}
	if v := update.UpdatedTs; v != nil {
		set = append(set, "updated_ts = "+p.add(*v))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	query := `UPDATE reminder SET ` + strings.Join(set, ", ") + ` WHERE id = ` + p.add(update.ID) + ` RETURNING ` + reminderColumns
	reminder, err := scanReminder(d.db.QueryRowContext(ctx, query, p.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reminder %d: %w", update.ID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}
	return reminder, nil
}

func (d *DB) DeleteReminder(ctx context.Context, delete *store.DeleteReminder) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM reminder WHERE id = $1`, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reminder %d: %w", delete.ID, store.ErrNotFound)
	}
	return nil
}

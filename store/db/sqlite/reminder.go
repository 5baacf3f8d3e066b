package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

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
	stmt := `
		INSERT INTO reminder (uid, message, due_ts, status, kind, location_data, trigger_id, last_fired_ts, snoozed_until_ts, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + reminderColumns
	reminder, err := scanReminder(d.db.QueryRowContext(ctx, stmt,
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
		return nil, errors.Wrap(err, "failed to create reminder")
	}
	return reminder, nil
}

func (d *DB) ListReminders(ctx context.Context, find *store.FindReminder) ([]*store.Reminder, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "status = ?"), append(args, *v)
	}
	if v := find.Kind; v != nil {
		where, args = append(where, "kind = ?"), append(args, *v)
	}

	query := `SELECT ` + reminderColumns + ` FROM reminder WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reminders")
	}
	defer rows.Close()

	list := make([]*store.Reminder, 0)
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		list = append(list, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateReminder(ctx context.Context, update *store.UpdateReminder) (*store.Reminder, error) {
	set, args := []string{}, []any{}

	if v := update.Message; v != nil {
		set, args = append(set, "message = ?"), append(args, *v)
	}
	if v := update.Status; v != nil {
		set, args = append(set, "status = ?"), append(args, *v)
	}
	if v := update.TriggerID; v != nil {
		if *v == "" {
			set = append(set, "trigger_id = NULL")
		} else {
			set, args = append(set, "trigger_id = ?"), append(args, *v)
		}
	}
	if v := update.LastFiredTs; v != nil {
		set, args = append(set, "last_fired_ts = ?"), append(args, *v)
	}
	if v := update.SnoozedUntilTs; v != nil {
		set, args = append(set, "snoozed_until_ts = ?"), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := `UPDATE reminder SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING ` + reminderColumns
	reminder, err := scanReminder(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "reminder %d", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update reminder")
	}
	return reminder, nil
}

func (d *DB) DeleteReminder(ctx context.Context, delete *store.DeleteReminder) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM reminder WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete reminder")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "reminder %d", delete.ID)
	}
	return nil
}

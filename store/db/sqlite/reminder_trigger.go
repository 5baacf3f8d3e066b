package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/store"
)

func (d *DB) CreateReminderTriggers(ctx context.Context, creates []*store.ReminderTrigger) error {
	if len(creates) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reminder_trigger (trigger_id, reminder_id, latitude, longitude, radius_meters, place_name, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, create := range creates {
		_, err := stmt.ExecContext(ctx,
			create.TriggerID,
			create.ReminderID,
			create.Latitude,
			create.Longitude,
			create.RadiusMeters,
			create.PlaceName,
			create.CreatedTs,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to create reminder trigger %s", create.TriggerID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (d *DB) ListReminderTriggers(ctx context.Context, find *store.FindReminderTrigger) ([]*store.ReminderTrigger, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.TriggerID; v != nil {
		where, args = append(where, "trigger_id = ?"), append(args, *v)
	}
	if v := find.ReminderID; v != nil {
		where, args = append(where, "reminder_id = ?"), append(args, *v)
	}

	query := `SELECT trigger_id, reminder_id, latitude, longitude, radius_meters, place_name, created_ts
		FROM reminder_trigger
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, trigger_id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reminder triggers")
	}
	defer rows.Close()

	list := make([]*store.ReminderTrigger, 0)
	for rows.Next() {
		var t store.ReminderTrigger
		if err := rows.Scan(
			&t.TriggerID,
			&t.ReminderID,
			&t.Latitude,
			&t.Longitude,
			&t.RadiusMeters,
			&t.PlaceName,
			&t.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder trigger")
		}
		list = append(list, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) DeleteReminderTriggers(ctx context.Context, delete *store.DeleteReminderTrigger) error {
	where, args := []string{}, []any{}
	if v := delete.TriggerID; v != nil {
		where, args = append(where, "trigger_id = ?"), append(args, *v)
	}
	if v := delete.ReminderID; v != nil {
		where, args = append(where, "reminder_id = ?"), append(args, *v)
	}
	if len(where) == 0 {
		return errors.New("delete reminder triggers requires a condition")
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM reminder_trigger WHERE `+strings.Join(where, " AND "), args...); err != nil {
		return errors.Wrap(err, "failed to delete reminder triggers")
	}
	return nil
}

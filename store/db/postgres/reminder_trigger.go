package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hrygo/geominder/store"
)

// CreateReminderTriggers bulk-loads the rows with COPY inside one transaction.
func (d *DB) CreateReminderTriggers(ctx context.Context, creates []*store.ReminderTrigger) error {
	if len(creates) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("reminder_trigger",
		"trigger_id", "reminder_id", "latitude", "longitude", "radius_meters", "place_name", "created_ts"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, create := range creates {
		if _, err := stmt.ExecContext(ctx,
			create.TriggerID,
			create.ReminderID,
			create.Latitude,
			create.Longitude,
			create.RadiusMeters,
			create.PlaceName,
			create.CreatedTs,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy reminder trigger %s: %w", create.TriggerID, err)
		}
	}
	// An argument-less Exec flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush reminder triggers: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *DB) ListReminderTriggers(ctx context.Context, find *store.FindReminderTrigger) ([]*store.ReminderTrigger, error) {
	p := &placeholders{}
	where := []string{}
	if v := find.TriggerID; v != nil {
		where = append(where, "trigger_id = "+p.add(*v))
	}
	if v := find.ReminderID; v != nil {
		where = append(where, "reminder_id = "+p.add(*v))
	}

	query := `SELECT trigger_id, reminder_id, latitude, longitude, radius_meters, place_name, created_ts
		FROM reminder_trigger
		WHERE ` + joinAnd(where) + `
		ORDER BY created_ts ASC, trigger_id ASC`

	rows, err := d.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder triggers: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ReminderTrigger, 0)
	for rows.Next() {
		var t store.ReminderTrigger
		if err := rows.Scan(&t.TriggerID, &t.ReminderID, &t.Latitude, &t.Longitude, &t.RadiusMeters, &t.PlaceName, &t.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan reminder trigger: %w", err)
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

func (d *DB) DeleteReminderTriggers(ctx context.Context, delete *store.DeleteReminderTrigger) error {
	p := &placeholders{}
	where := []string{}
	if v := delete.TriggerID; v != nil {
		where = append(where, "trigger_id = "+p.add(*v))
	}
	if v := delete.ReminderID; v != nil {
		where = append(where, "reminder_id = "+p.add(*v))
	}
	if len(where) == 0 {
		return errors.New("delete reminder triggers requires a condition")
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM reminder_trigger WHERE `+joinAnd(where), p.args...); err != nil {
		return fmt.Errorf("failed to delete reminder triggers: %w", err)
	}
	return nil
}

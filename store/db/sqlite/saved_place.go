package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/store"
)

const savedPlaceColumns = `id, name, latitude, longitude, radius_meters, created_ts`

func scanSavedPlace(row rowScanner) (*store.SavedPlace, error) {
	var p store.SavedPlace
	if err := row.Scan(&p.ID, &p.Name, &p.Latitude, &p.Longitude, &p.RadiusMeters, &p.CreatedTs); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) CreateSavedPlace(ctx context.Context, create *store.SavedPlace) (*store.SavedPlace, error) {
	stmt := `
		INSERT INTO saved_place (name, latitude, longitude, radius_meters, created_ts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + savedPlaceColumns
	place, err := scanSavedPlace(d.db.QueryRowContext(ctx, stmt,
		create.Name,
		create.Latitude,
		create.Longitude,
		create.RadiusMeters,
		create.CreatedTs,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, errors.Wrap(err, "failed to create saved place")
	}
	return place, nil
}

func (d *DB) ListSavedPlaces(ctx context.Context, find *store.FindSavedPlace) ([]*store.SavedPlace, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.Name; v != nil {
		where, args = append(where, "name = ? COLLATE NOCASE"), append(args, strings.TrimSpace(*v))
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+savedPlaceColumns+` FROM saved_place WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list saved places")
	}
	defer rows.Close()

	list := make([]*store.SavedPlace, 0)
	for rows.Next() {
		place, err := scanSavedPlace(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan saved place")
		}
		list = append(list, place)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateSavedPlace(ctx context.Context, update *store.UpdateSavedPlace) (*store.SavedPlace, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = ?"), append(args, *v)
	}
	if v := update.Latitude; v != nil {
		set, args = append(set, "latitude = ?"), append(args, *v)
	}
	if v := update.Longitude; v != nil {
		set, args = append(set, "longitude = ?"), append(args, *v)
	}
	if v := update.RadiusMeters; v != nil {
		set, args = append(set, "radius_meters = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := `UPDATE saved_place SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING ` + savedPlaceColumns
	place, err := scanSavedPlace(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "saved place %d", update.ID)
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, errors.Wrap(err, "failed to update saved place")
	}
	return place, nil
}

func (d *DB) DeleteSavedPlace(ctx context.Context, delete *store.DeleteSavedPlace) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM saved_place WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete saved place")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "saved place %d", delete.ID)
	}
	return nil
}

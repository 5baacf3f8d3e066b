package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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
	query := `
		INSERT INTO saved_place (name, latitude, longitude, radius_meters, created_ts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + savedPlaceColumns
	place, err := scanSavedPlace(d.db.QueryRowContext(ctx, query,
		create.Name, create.Latitude, create.Longitude, create.RadiusMeters, create.CreatedTs))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create saved place: %w", err)
	}
	return place, nil
}

func (d *DB) ListSavedPlaces(ctx context.Context, find *store.FindSavedPlace) ([]*store.SavedPlace, error) {
	p := &placeholders{}
	where := []string{}
	if v := find.ID; v != nil {
		where = append(where, "id = "+p.add(*v))
	}
	if v := find.Name; v != nil {
		where = append(where, "LOWER(name) = LOWER("+p.add(strings.TrimSpace(*v))+")")
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+savedPlaceColumns+` FROM saved_place WHERE `+joinAnd(where)+` ORDER BY id ASC`, p.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved places: %w", err)
	}
	defer rows.Close()

	list := make([]*store.SavedPlace, 0)
	for rows.Next() {
		place, err := scanSavedPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved place: %w", err)
		}
		list = append(list, place)
	}
	return list, rows.Err()
}

func (d *DB) UpdateSavedPlace(ctx context.Context, update *store.UpdateSavedPlace) (*store.SavedPlace, error) {
	p := &placeholders{}
	set := []string{}
	if v := update.Name; v != nil {
		set = append(set, "name = "+p.add(*v))
	}
	if v := update.Latitude; v != nil {
		set = append(set, "latitude = "+p.add(*v))
	}
	if v := update.Longitude; v != nil {
		set = append(set, "longitude = "+p.add(*v))
	}
	if v := update.RadiusMeters; v != nil {
		set = append(set, "radius_meters = "+p.add(*v))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	query := `UPDATE saved_place SET ` + strings.Join(set, ", ") + ` WHERE id = ` + p.add(update.ID) + ` RETURNING ` + savedPlaceColumns
	place, err := scanSavedPlace(d.db.QueryRowContext(ctx, query, p.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("saved place %d: %w", update.ID, store.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update saved place: %w", err)
	}
	return place, nil
}

func (d *DB) DeleteSavedPlace(ctx context.Context, delete *store.DeleteSavedPlace) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM saved_place WHERE id = $1`, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete saved place: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("saved place %d: %w", delete.ID, store.ErrNotFound)
	}
	return nil
}

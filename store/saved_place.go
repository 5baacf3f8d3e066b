package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSavedPlaceRadius is used when a saved place is created without a radius.
const DefaultSavedPlaceRadius = 100.0

// SavedPlace is a user-named coordinate such as "home".
type SavedPlace struct {
	ID           int32
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	CreatedTs    int64
}

// FindSavedPlace is the find condition for saved places. Name matches
// case-insensitively.
type FindSavedPlace struct {
	ID   *int32
	Name *string
}

// UpdateSavedPlace is the update condition for saved places.
type UpdateSavedPlace struct {
	ID           int32
	Name         *string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
}

// DeleteSavedPlace is the delete condition for saved places.
type DeleteSavedPlace struct {
	ID int32
}

// CreateSavedPlace persists a saved place, enforcing the unique name and the
// saved-place limit.
func (s *Store) CreateSavedPlace(ctx context.Context, create *SavedPlace) (*SavedPlace, error) {
	create.Name = strings.TrimSpace(create.Name)
	if create.Name == "" {
		return nil, errors.New("saved place name is required")
	}
	if create.RadiusMeters <= 0 {
		create.RadiusMeters = DefaultSavedPlaceRadius
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = s.now().Unix()
	}

	s.placeMu.Lock()
	defer s.placeMu.Unlock()

	existing, err := s.driver.ListSavedPlaces(ctx, &FindSavedPlace{})
	if err != nil {
		return nil, err
	}
	if len(existing) >= s.savedPlaceLimit() {
		return nil, ErrSavedPlaceLimit
	}
	for _, place := range existing {
		if strings.EqualFold(place.Name, create.Name) {
			return nil, ErrDuplicateName
		}
	}
	return s.driver.CreateSavedPlace(ctx, create)
}

func (s *Store) ListSavedPlaces(ctx context.Context, find *FindSavedPlace) ([]*SavedPlace, error) {
	return s.driver.ListSavedPlaces(ctx, find)
}

// GetSavedPlaceByName looks a saved place up by case-insensitive name.
func (s *Store) GetSavedPlaceByName(ctx context.Context, name string) (*SavedPlace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	list, err := s.driver.ListSavedPlaces(ctx, &FindSavedPlace{Name: &name})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateSavedPlace(ctx context.Context, update *UpdateSavedPlace) (*SavedPlace, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, errors.New("saved place name is required")
		}
		update.Name = &name

		s.placeMu.Lock()
		defer s.placeMu.Unlock()
		existing, err := s.driver.ListSavedPlaces(ctx, &FindSavedPlace{Name: &name})
		if err != nil {
			return nil, err
		}
		for _, place := range existing {
			if place.ID != update.ID {
				return nil, ErrDuplicateName
			}
		}
	}
	return s.driver.UpdateSavedPlace(ctx, update)
}

func (s *Store) DeleteSavedPlace(ctx context.Context, delete *DeleteSavedPlace) error {
	return s.driver.DeleteSavedPlace(ctx, delete)
}

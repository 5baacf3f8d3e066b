package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/internal/profile"
)

var (
	// ErrNotFound is returned when a lookup by id matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when a saved place name is already taken
	// (names compare case-insensitively).
	ErrDuplicateName = errors.New("saved place name already exists")
	// ErrSavedPlaceLimit is returned when creating a saved place would exceed
	// the configured limit.
	ErrSavedPlaceLimit = errors.New("saved place limit reached")
)

// DefaultSavedPlaceLimit bounds saved places when the profile leaves it unset.
const DefaultSavedPlaceLimit = 20

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
	now     func() time.Time

	// placeMu serializes saved-place creation so the limit check and insert
	// are atomic.
	placeMu sync.Mutex

	watchers *watchHub
	// publishMu orders snapshot reads with their broadcast.
	publishMu sync.Mutex
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:   driver,
		profile:  profile,
		now:      time.Now,
		watchers: newWatchHub(),
	}
}

// SetClock overrides the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate creates or upgrades the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.watchers.closeAll()
	return s.driver.Close()
}

func (s *Store) savedPlaceLimit() int {
	if s.profile != nil && s.profile.SavedPlaceLimit > 0 {
		return s.profile.SavedPlaceLimit
	}
	return DefaultSavedPlaceLimit
}

// Package resolver turns place names and categories into coordinates. It
// consults saved places first, then an expiring geocoding cache, then the
// geocoding collaborator.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/cache"
	"github.com/hrygo/geominder/location/metrics"
	"github.com/hrygo/geominder/store"
)

const (
	// DefaultTimeout bounds every geocode and nearby-search call.
	DefaultTimeout = 10 * time.Second
	// MaxNearbyResults caps FindNearby results.
	MaxNearbyResults = 10
	// coordinateDecimals is the rounding applied to nearby cache keys, about
	// 110 m of latitude, so GPS jitter reuses the same entry.
	coordinateDecimals = 3
)

// Geocoder converts free text to addresses.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]location.Address, error)
}

// NearbySearcher finds places carrying any of tags within radiusMeters of origin.
type NearbySearcher interface {
	SearchNearby(ctx context.Context, tags []location.Tag, origin location.Coordinate, radiusMeters float64, limit int) ([]location.Place, error)
}

// SavedPlaceStore looks saved places up by case-insensitive name.
type SavedPlaceStore interface {
	GetSavedPlaceByName(ctx context.Context, name string) (*store.SavedPlace, error)
}

// geocodeEntry is a cached geocode outcome; a nil result records "no match".
type geocodeEntry struct {
	result *location.PlaceResult
}

// Config configures a Resolver.
type Config struct {
	Catalog       *location.Catalog
	Timeout       time.Duration
	CacheTTL      time.Duration
	CacheCapacity int
	Now           func() time.Time
	Metrics       *metrics.Exporter
}

// Resolver resolves names and categories. It is safe for concurrent use.
type Resolver struct {
	geocoder Geocoder
	nearby   NearbySearcher
	saved    SavedPlaceStore
	catalog  *location.Catalog
	timeout  time.Duration
	metrics  *metrics.Exporter

	geocodeCache *cache.LRUCache[string, geocodeEntry]
	nearbyCache  *cache.LRUCache[string, []location.Place]

	geocodeGroup singleflight.Group
	nearbyGroup  singleflight.Group
}

// New creates a Resolver. Either collaborator may be nil; the corresponding
// lookups then fail with SERVICE_UNAVAILABLE.
func New(geocoder Geocoder, nearby NearbySearcher, saved SavedPlaceStore, cfg Config) *Resolver {
	if cfg.Catalog == nil {
		cfg.Catalog = location.DefaultCatalog()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	var opts []cache.Option
	if cfg.Now != nil {
		opts = append(opts, cache.WithClock(cfg.Now))
	}
	return &Resolver{
		geocoder:     geocoder,
		nearby:       nearby,
		saved:        saved,
		catalog:      cfg.Catalog,
		timeout:      cfg.Timeout,
		metrics:      cfg.Metrics,
		geocodeCache: cache.NewLRUCache[string, geocodeEntry](cfg.CacheCapacity, cfg.CacheTTL, opts...),
		nearbyCache:  cache.NewLRUCache[string, []location.Place](cfg.CacheCapacity, cfg.CacheTTL, opts...),
	}
}

// Resolve returns coordinates for name. Order: blank check, saved place,
// geocode cache, live geocode. Failures carry INVALID_INPUT, NOT_FOUND,
// NETWORK_ERROR, SERVICE_UNAVAILABLE or UNKNOWN.
func (r *Resolver) Resolve(ctx context.Context, name string) (*location.PlaceResult, error) {
	const op = "resolve"

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, location.NewError(location.CodeInvalidInput, op, errors.New("place name is blank"))
	}

	saved, err := r.LookupSaved(ctx, trimmed)
	if err != nil {
		// A broken saved-place store should not block geocoding.
		slog.Warn("saved place lookup failed", "name", trimmed, "error", err)
	}
	if saved != nil {
		return &location.PlaceResult{
			Name:         saved.Name,
			RadiusMeters: saved.RadiusMeters,
			Source:       location.SourceSaved,
			Coordinate:   location.Coordinate{Latitude: saved.Latitude, Longitude: saved.Longitude},
		}, nil
	}

	key := strings.ToLower(strings.Join(strings.Fields(trimmed), " "))
	if entry, ok := r.geocodeCache.Get(key); ok {
		r.metrics.RecordCacheLookup("geocode", true)
		if entry.result == nil {
			return nil, location.NewError(location.CodeNotFound, op, fmt.Errorf("no match for %q (cached)", trimmed))
		}
		result := *entry.result
		result.Source = location.SourceCache
		return &result, nil
	}
	r.metrics.RecordCacheLookup("geocode", false)

	// The shared call outlives any one caller and is bounded by the resolver
	// timeout instead.
	shared := context.WithoutCancel(ctx)
	ch := r.geocodeGroup.DoChan(key, func() (any, error) {
		return r.geocodeLive(shared, key, trimmed)
	})
	select {
	case <-ctx.Done():
		return nil, location.NewError(classify(ctx.Err()), op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*location.PlaceResult)
		return &result, nil
	}
}

func (r *Resolver) geocodeLive(ctx context.Context, key, query string) (*location.PlaceResult, error) {
	const op = "resolve"

	if r.geocoder == nil {
		return nil, location.NewError(location.CodeServiceUnavailable, op, errors.New("no geocoder configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	addresses, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		code := classify(err)
		r.metrics.RecordRemoteCall("geocode", string(code), time.Since(start))
		return nil, location.NewError(code, op, err)
	}
	r.metrics.RecordRemoteCall("geocode", "", time.Since(start))

	var valid []location.Address
	for _, a := range addresses {
		if a.Coordinate.Valid() {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		r.geocodeCache.Set(key, geocodeEntry{})
		return nil, location.NewError(location.CodeNotFound, op, fmt.Errorf("no match for %q", query))
	}

	result := &location.PlaceResult{
		Name:         query,
		Address:      valid[0].Formatted(),
		RadiusMeters: location.DefaultPlaceRadius,
		Source:       location.SourceGeocoder,
		Coordinate:   valid[0].Coordinate,
	}
	cached := *result
	r.geocodeCache.Set(key, geocodeEntry{result: &cached})
	return result, nil
}

// LookupSaved returns the saved place called name, or nil.
func (r *Resolver) LookupSaved(ctx context.Context, name string) (*store.SavedPlace, error) {
	if r.saved == nil || strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return r.saved.GetSavedPlaceByName(ctx, name)
}

// FindNearby returns up to MaxNearbyResults places of category within
// radiusMeters of origin, nearest first. Categories without search tags
// return an empty list without a network call.
func (r *Resolver) FindNearby(ctx context.Context, category location.PlaceCategory, origin location.Coordinate, radiusMeters float64) ([]location.Place, error) {
	const op = "find_nearby"

	tags := r.catalog.Tags(category)
	if len(tags) == 0 {
		return []location.Place{}, nil
	}
	if !origin.Valid() {
		return nil, location.NewError(location.CodeInvalidInput, op, fmt.Errorf("origin out of range: %s", origin))
	}
	if radiusMeters <= 0 {
		return nil, location.NewError(location.CodeInvalidInput, op, errors.New("search radius must be positive"))
	}

	key := nearbyKey(category, origin, radiusMeters)
	if places, ok := r.nearbyCache.Get(key); ok {
		r.metrics.RecordCacheLookup("nearby", true)
		return clonePlaces(places), nil
	}
	r.metrics.RecordCacheLookup("nearby", false)

	shared := context.WithoutCancel(ctx)
	ch := r.nearbyGroup.DoChan(key, func() (any, error) {
		return r.searchLive(shared, key, category, tags, origin, radiusMeters)
	})
	select {
	case <-ctx.Done():
		return nil, location.NewError(classify(ctx.Err()), op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clonePlaces(res.Val.([]location.Place)), nil
	}
}

func (r *Resolver) searchLive(ctx context.Context, key string, category location.PlaceCategory, tags []location.Tag, origin location.Coordinate, radiusMeters float64) ([]location.Place, error) {
	const op = "find_nearby"

	if r.nearby == nil {
		return nil, location.NewError(location.CodeServiceUnavailable, op, errors.New("no nearby search configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	found, err := r.nearby.SearchNearby(ctx, tags, origin, radiusMeters, MaxNearbyResults)
	if err != nil {
		code := classify(err)
		r.metrics.RecordRemoteCall("nearby", string(code), time.Since(start))
		return nil, location.NewError(code, op, err)
	}
	r.metrics.RecordRemoteCall("nearby", "", time.Since(start))

	places := make([]location.Place, 0, len(found))
	for _, p := range found {
		if !p.Coordinate.Valid() {
			continue
		}
		p.Category = category
		places = append(places, p)
	}
	sort.SliceStable(places, func(i, j int) bool {
		return location.Distance(origin, places[i].Coordinate) < location.Distance(origin, places[j].Coordinate)
	})
	if len(places) > MaxNearbyResults {
		places = places[:MaxNearbyResults]
	}

	r.nearbyCache.Set(key, places)
	return places, nil
}

// ClearExpired drops expired entries from both caches and returns how many
// were removed.
func (r *Resolver) ClearExpired() int {
	return r.geocodeCache.ClearExpired() + r.nearbyCache.ClearExpired()
}

// ClearAll empties both caches.
func (r *Resolver) ClearAll() {
	r.geocodeCache.Clear()
	r.nearbyCache.Clear()
}

// CacheStats reports cache sizes for diagnostics.
type CacheStats struct {
	GeocodeEntries int `json:"geocodeEntries"`
	NearbyEntries  int `json:"nearbyEntries"`
}

// Stats returns the current cache sizes.
func (r *Resolver) Stats() CacheStats {
	return CacheStats{
		GeocodeEntries: r.geocodeCache.Size(),
		NearbyEntries:  r.nearbyCache.Size(),
	}
}

func nearbyKey(category location.PlaceCategory, origin location.Coordinate, radiusMeters float64) string {
	rounded := location.RoundCoordinate(origin, coordinateDecimals)
	return fmt.Sprintf("%s|%.3f|%.3f|%.0f", category, rounded.Latitude, rounded.Longitude, radiusMeters)
}

func clonePlaces(places []location.Place) []location.Place {
	out := make([]location.Place, len(places))
	copy(out, places)
	return out
}

// classify maps a collaborator failure to an engine error code. Timeouts
// and cancellations count as network failures.
func classify(err error) location.ErrorCode {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return location.CodeNetworkError
	case errors.Is(err, location.ErrInvalidQuery):
		return location.CodeInvalidInput
	case errors.Is(err, location.ErrServiceUnavailable):
		return location.CodeServiceUnavailable
	case errors.As(err, &netErr):
		return location.CodeNetworkError
	default:
		return location.CodeUnknown
	}
}

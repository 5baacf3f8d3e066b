// Package location holds the domain types shared by the location-triggered
// reminder engine: coordinates, place taxonomy and the attached LocationData.
package location

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// LocationType tells whether a reminder targets one place or a class of places.
type LocationType string

const (
	SpecificPlace   LocationType = "SPECIFIC_PLACE"
	GenericCategory LocationType = "GENERIC_CATEGORY"
)

// PlaceCategory is a class of places a generic reminder can fire at.
type PlaceCategory string

const (
	CategoryStore      PlaceCategory = "STORE"
	CategoryGrocery    PlaceCategory = "GROCERY"
	CategoryPharmacy   PlaceCategory = "PHARMACY"
	CategoryGasStation PlaceCategory = "GAS_STATION"
	CategoryRestaurant PlaceCategory = "RESTAURANT"
	CategoryCustom     PlaceCategory = "CUSTOM"
)

// Categories lists every known category in declaration order.
var Categories = []PlaceCategory{
	CategoryStore,
	CategoryGrocery,
	CategoryPharmacy,
	CategoryGasStation,
	CategoryRestaurant,
	CategoryCustom,
}

// Valid reports whether c is one of the known categories.
func (c PlaceCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	// DefaultPlaceRadius is used for SPECIFIC_PLACE when no radius is given.
	DefaultPlaceRadius = 100.0
	// DefaultCategoryRadius is used for GENERIC_CATEGORY when no radius is given.
	DefaultCategoryRadius = 200.0
)

// DefaultRadius returns the default trigger radius in meters for t.
func DefaultRadius(t LocationType) float64 {
	if t == GenericCategory {
		return DefaultCategoryRadius
	}
	return DefaultPlaceRadius
}

// LocationData is attached to a LOCATION_BASED reminder and never mutated
// after that.
type LocationData struct {
	LocationType  LocationType   `json:"locationType"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	RadiusMeters  float64        `json:"radiusMeters"`
	PlaceName     *string        `json:"placeName,omitempty"`
	PlaceCategory *PlaceCategory `json:"placeCategory,omitempty"`
}

// NewSpecificPlace builds LocationData for a named place without coordinates.
func NewSpecificPlace(name string) LocationData {
	return LocationData{
		LocationType: SpecificPlace,
		RadiusMeters: DefaultPlaceRadius,
		PlaceName:    &name,
	}
}

// NewGenericCategory builds LocationData for a category of places.
func NewGenericCategory(category PlaceCategory) LocationData {
	return LocationData{
		LocationType:  GenericCategory,
		RadiusMeters:  DefaultCategoryRadius,
		PlaceCategory: &category,
	}
}

// WithCoordinate returns a copy of d pinned to c.
func (d LocationData) WithCoordinate(c Coordinate) LocationData {
	lat, lon := c.Latitude, c.Longitude
	d.Latitude = &lat
	d.Longitude = &lon
	return d
}

// Coordinate returns the pinned coordinate, if both components are present.
func (d LocationData) Coordinate() (Coordinate, bool) {
	if d.Latitude == nil || d.Longitude == nil {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: *d.Latitude, Longitude: *d.Longitude}, true
}

// Name returns the place name or an empty string.
func (d LocationData) Name() string {
	if d.PlaceName == nil {
		return ""
	}
	return *d.PlaceName
}

// Category returns the place category or an empty category.
func (d LocationData) Category() PlaceCategory {
	if d.PlaceCategory == nil {
		return ""
	}
	return *d.PlaceCategory
}

// Radius returns RadiusMeters, falling back to the type default.
func (d LocationData) Radius() float64 {
	if d.RadiusMeters > 0 {
		return d.RadiusMeters
	}
	return DefaultRadius(d.LocationType)
}

// Validate checks the per-type invariants.
func (d LocationData) Validate() error {
	switch d.LocationType {
	case SpecificPlace:
		if strings.TrimSpace(d.Name()) == "" {
			return errors.New("specific place requires a place name")
		}
	case GenericCategory:
		if d.PlaceCategory == nil || !d.PlaceCategory.Valid() {
			return errors.New("generic category requires a known place category")
		}
	default:
		return errors.Errorf("unknown location type %q", d.LocationType)
	}
	if d.RadiusMeters < 0 {
		return errors.New("radius must not be negative")
	}
	if c, ok := d.Coordinate(); ok && !c.Valid() {
		return errors.Errorf("coordinate out of range: %s", c)
	}
	if (d.Latitude == nil) != (d.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	return nil
}

// Marshal serializes d into the blob persisted with the reminder.
func (d LocationData) Marshal() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal location data")
	}
	return string(b), nil
}

// ParseLocationData decodes a blob written by Marshal.
func ParseLocationData(raw string) (LocationData, error) {
	var d LocationData
	if strings.TrimSpace(raw) == "" {
		return d, errors.New("empty location data")
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, errors.Wrap(err, "failed to unmarshal location data")
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}

// ParsedLocationCommand is the transient result of interpreting free text.
type ParsedLocationCommand struct {
	Message       string
	LocationType  LocationType
	PlaceName     string
	PlaceCategory PlaceCategory
}

// LocationData converts the parsed command into reminder LocationData.
func (p ParsedLocationCommand) LocationData() LocationData {
	if p.LocationType == GenericCategory {
		return NewGenericCategory(p.PlaceCategory)
	}
	return NewSpecificPlace(p.PlaceName)
}

// Place is a point of interest returned by a nearby search.
type Place struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category PlaceCategory `json:"category"`
	Coordinate
}

// PlaceSource records where a resolved coordinate came from.
type PlaceSource string

const (
	SourceSaved    PlaceSource = "saved"
	SourceCache    PlaceSource = "cache"
	SourceGeocoder PlaceSource = "geocoder"
)

// PlaceResult is a successfully resolved place name.
type PlaceResult struct {
	Name         string      `json:"name"`
	Address      string      `json:"address,omitempty"`
	RadiusMeters float64     `json:"radiusMeters,omitempty"`
	Source       PlaceSource `json:"source"`
	Coordinate
}

// Address is one geocoding match.
type Address struct {
	Coordinate
	Lines []string
}

// Formatted joins the address lines.
func (a Address) Formatted() string {
	return strings.Join(a.Lines, ", ")
}

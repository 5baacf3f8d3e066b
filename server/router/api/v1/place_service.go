package v1

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/geominder/internal/logging"
	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/reminder"
	"github.com/hrygo/geominder/store"
)

// SavedPlaceRequest creates or patches a saved place. Nil fields are left
// unchanged on patch.
type SavedPlaceRequest struct {
	Name         *string  `json:"name,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters *float64 `json:"radiusMeters,omitempty"`
}

// SavedPlaceView is the API representation of a saved place.
type SavedPlaceView struct {
	ID           int32   `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
	CreatedTs    int64   `json:"createdTs"`
}

func convertSavedPlaceFromStore(p *store.SavedPlace) *SavedPlaceView {
	return &SavedPlaceView{
		ID:           p.ID,
		Name:         p.Name,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		RadiusMeters: p.RadiusMeters,
		CreatedTs:    p.CreatedTs,
	}
}

func (s *APIV1Service) ListSavedPlaces(c echo.Context) error {
	places, err := s.Store.ListSavedPlaces(c.Request().Context(), &store.FindSavedPlace{})
	if err != nil {
		return toHTTPError(err)
	}
	views := make([]*SavedPlaceView, 0, len(places))
	for _, p := range places {
		views = append(views, convertSavedPlaceFromStore(p))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *APIV1Service) CreateSavedPlace(c echo.Context) error {
	var req SavedPlaceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return badRequest("name is required")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return badRequest("latitude and longitude are required")
	}
	if err := validatePlace(req); err != nil {
		return err
	}

	create := &store.SavedPlace{
		Name:      *req.Name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	}
	if req.RadiusMeters != nil {
		create.RadiusMeters = *req.RadiusMeters
	}

	ctx := c.Request().Context()
	place, err := s.Store.CreateSavedPlace(ctx, create)
	if err != nil {
		return toHTTPError(err)
	}
	s.refreshPlaceNames(ctx)
	return c.JSON(http.StatusCreated, convertSavedPlaceFromStore(place))
}

func (s *APIV1Service) UpdateSavedPlace(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req SavedPlaceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return badRequest("name must not be empty")
	}
	if err := validatePlace(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	place, err := s.Store.UpdateSavedPlace(ctx, &store.UpdateSavedPlace{
		ID:           id,
		Name:         req.Name,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMeters: req.RadiusMeters,
	})
	if err != nil {
		return toHTTPError(err)
	}
	s.refreshPlaceNames(ctx)
	return c.JSON(http.StatusOK, convertSavedPlaceFromStore(place))
}

func (s *APIV1Service) DeleteSavedPlace(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Store.DeleteSavedPlace(ctx, &store.DeleteSavedPlace{ID: id}); err != nil {
		return toHTTPError(err)
	}
	s.refreshPlaceNames(ctx)
	return c.NoContent(http.StatusNoContent)
}

// ResolvePlace resolves ?name= the way reminder creation does.
func (s *APIV1Service) ResolvePlace(c echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		return badRequest("name is required")
	}
	result, err := s.Resolver.Resolve(c.Request().Context(), name)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// FindNearbyPlaces searches ?category= around ?latitude=&longitude= within
// ?radius= meters, defaulting to the reminder search radius.
func (s *APIV1Service) FindNearbyPlaces(c echo.Context) error {
	category := location.PlaceCategory(strings.ToUpper(c.QueryParam("category")))
	if !category.Valid() {
		return badRequest("unknown category: " + c.QueryParam("category"))
	}
	lat, errLat := strconv.ParseFloat(c.QueryParam("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.QueryParam("longitude"), 64)
	if errLat != nil || errLon != nil {
		return badRequest("latitude and longitude are required")
	}
	radius := reminder.DefaultSearchRadius
	if raw := c.QueryParam("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			return badRequest("invalid radius: " + raw)
		}
		radius = r
	}

	places, err := s.Resolver.FindNearby(c.Request().Context(), category, location.Coordinate{Latitude: lat, Longitude: lon}, radius)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, places)
}

func validatePlace(req SavedPlaceRequest) error {
	if req.Latitude != nil && req.Longitude != nil {
		c := location.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if !c.Valid() {
			return badRequest("coordinate out of range: " + c.String())
		}
	}
	if req.RadiusMeters != nil && *req.RadiusMeters <= 0 {
		return badRequest("radius must be positive")
	}
	return nil
}

// refreshPlaceNames lets the command interpreter recognize saved place names
// right after they change.
func (s *APIV1Service) refreshPlaceNames(ctx context.Context) {
	if err := s.Orchestrator.RefreshPlaceNames(ctx); err != nil {
		logging.FromContext(ctx).Warn("failed to refresh place names", "error", err)
	}
}

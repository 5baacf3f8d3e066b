package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/reminder"
	"github.com/hrygo/geominder/store"
)

// ReminderView is the API representation of a reminder.
type ReminderView struct {
	ID             int32                  `json:"id"`
	UID            string                 `json:"uid"`
	Message        string                 `json:"message"`
	Status         store.ReminderStatus   `json:"status"`
	Kind           store.ReminderKind     `json:"kind"`
	Location       *location.LocationData `json:"location,omitempty"`
	TriggerID      string                 `json:"triggerId,omitempty"`
	LastFiredTs    *int64                 `json:"lastFiredTs,omitempty"`
	SnoozedUntilTs *int64                 `json:"snoozedUntilTs,omitempty"`
	CreatedTs      int64                  `json:"createdTs"`
	UpdatedTs      int64                  `json:"updatedTs"`
	Triggers       []TriggerView          `json:"triggers,omitempty"`
}

// TriggerView is one persisted trigger region.
type TriggerView struct {
	TriggerID    string  `json:"triggerId"`
	PlaceName    string  `json:"placeName,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
}

func convertReminderFromStore(r *store.Reminder) *ReminderView {
	view := &ReminderView{
		ID:             r.ID,
		UID:            r.UID,
		Message:        r.Message,
		Status:         r.Status,
		Kind:           r.Kind,
		LastFiredTs:    r.LastFiredTs,
		SnoozedUntilTs: r.SnoozedUntilTs,
		CreatedTs:      r.CreatedTs,
		UpdatedTs:      r.UpdatedTs,
	}
	if r.TriggerID != nil {
		view.TriggerID = *r.TriggerID
	}
	if r.LocationData != nil {
		if data, err := location.ParseLocationData(*r.LocationData); err == nil {
			view.Location = &data
		}
	}
	return view
}

// CommandRequest carries free text such as "remind me to buy milk when I get to the store".
type CommandRequest struct {
	Text string `json:"text"`
}

// CommandResponse reports whether the text was a location command.
type CommandResponse struct {
	Handled bool                   `json:"handled"`
	Result  *reminder.CreateResult `json:"result,omitempty"`
}

// ParseCommand creates a location reminder from free text. Text without
// location intent is answered with handled=false.
func (s *APIV1Service) ParseCommand(c echo.Context) error {
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest("text is required")
	}

	result, handled, err := s.Orchestrator.CreateFromCommand(c.Request().Context(), req.Text)
	if err != nil {
		return toHTTPError(err)
	}
	if !handled {
		return c.JSON(http.StatusOK, CommandResponse{})
	}
	return c.JSON(http.StatusCreated, CommandResponse{Handled: true, Result: result})
}

// CreateReminderRequest creates a location reminder from structured input.
type CreateReminderRequest struct {
	Message       string                 `json:"message"`
	LocationType  location.LocationType  `json:"locationType"`
	PlaceName     string                 `json:"placeName,omitempty"`
	PlaceCategory location.PlaceCategory `json:"placeCategory,omitempty"`
	Latitude      *float64               `json:"latitude,omitempty"`
	Longitude     *float64               `json:"longitude,omitempty"`
	RadiusMeters  float64                `json:"radiusMeters,omitempty"`
}

func (r CreateReminderRequest) locationData() location.LocationData {
	var data location.LocationData
	if r.LocationType == location.GenericCategory {
		data = location.NewGenericCategory(r.PlaceCategory)
	} else {
		data = location.NewSpecificPlace(r.PlaceName)
		data.LocationType = r.LocationType
	}
	if r.RadiusMeters != 0 {
		data.RadiusMeters = r.RadiusMeters
	}
	data.Latitude = r.Latitude
	data.Longitude = r.Longitude
	return data
}

func (s *APIV1Service) CreateReminder(c echo.Context) error {
	var req CreateReminderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	result, err := s.Orchestrator.CreateReminder(c.Request().Context(), req.Message, req.locationData())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// ListReminders lists location reminders. ?active=true restricts the list
// to reminders the engine still monitors; ?status filters by status.
func (s *APIV1Service) ListReminders(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		list []*store.Reminder
		err  error
	)
	if c.QueryParam("active") == "true" {
		list, err = s.Orchestrator.GetActiveLocationReminders(ctx)
	} else {
		kind := store.ReminderLocationBased
		find := &store.FindReminder{Kind: &kind}
		if status := c.QueryParam("status"); status != "" {
			st := store.ReminderStatus(strings.ToUpper(status))
			find.Status = &st
		}
		list, err = s.Store.ListReminders(ctx, find)
	}
	if err != nil {
		return toHTTPError(err)
	}

	views := make([]*ReminderView, 0, len(list))
	for _, r := range list {
		views = append(views, convertReminderFromStore(r))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *APIV1Service) GetReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	r, err := s.Store.GetReminder(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}
	if r == nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrorResponse{
			Code:    string(location.CodeNotFound),
			Message: "reminder not found",
		})
	}

	rows, err := s.Store.ListReminderTriggers(ctx, &store.FindReminderTrigger{ReminderID: &id})
	if err != nil {
		return toHTTPError(err)
	}
	view := convertReminderFromStore(r)
	for _, row := range rows {
		view.Triggers = append(view.Triggers, TriggerView{
			TriggerID:    row.TriggerID,
			PlaceName:    row.PlaceName,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
			RadiusMeters: row.RadiusMeters,
		})
	}
	return c.JSON(http.StatusOK, view)
}

func (s *APIV1Service) DeleteReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.Orchestrator.DeleteLocationReminder(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) CompleteReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := s.Orchestrator.CompleteReminder(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, convertReminderFromStore(r))
}

// SnoozeRequest snoozes a reminder for Minutes.
type SnoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (s *APIV1Service) SnoozeReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req SnoozeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	r, err := s.Orchestrator.SnoozeReminder(c.Request().Context(), id, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, convertReminderFromStore(r))
}

// ReregisterReminders re-registers every active reminder, as done at startup.
func (s *APIV1Service) ReregisterReminders(c echo.Context) error {
	result, err := s.Orchestrator.ReregisterAll(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

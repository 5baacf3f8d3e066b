package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/geominder/internal/logging"
	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/location/reminder"
	"github.com/hrygo/geominder/location/resolver"
	"github.com/hrygo/geominder/server/device"
)

// PositionResponse reports the effects of a position update.
type PositionResponse struct {
	Entered []string              `json:"entered"`
	Resumed reminder.ResumeResult `json:"resumed"`
}

// UpdatePosition records a device fix. Regions entered by the fix fire their
// reminders, and deferred category reminders are planned around it.
func (s *APIV1Service) UpdatePosition(c echo.Context) error {
	var req location.Coordinate
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if !req.Valid() {
		return badRequest("coordinate out of range: " + req.String())
	}
	ctx := c.Request().Context()

	entered, err := s.Bridge.UpdatePosition(ctx, req)
	if err != nil {
		return badRequest(err.Error())
	}
	resumed, err := s.Orchestrator.ResumeDeferred(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}
	if entered == nil {
		entered = []string{}
	}
	return c.JSON(http.StatusOK, PositionResponse{Entered: entered, Resumed: resumed})
}

// EnterResponse reports how an enter event was handled.
type EnterResponse struct {
	TriggerID string              `json:"triggerId"`
	Result    reminder.FireResult `json:"result"`
}

// EnterTrigger accepts an enter event reported by a device that does its own
// region monitoring.
func (s *APIV1Service) EnterTrigger(c echo.Context) error {
	triggerID := c.Param("id")
	ctx := logging.With(c.Request().Context(), "trigger_id", triggerID)

	if !s.Bridge.MarkInside(triggerID) {
		logging.FromContext(ctx).Debug("enter event for unregistered region")
	}
	result, err := s.Orchestrator.HandleTriggerFired(ctx, triggerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, EnterResponse{TriggerID: triggerID, Result: result})
}

// Diagnostics is a snapshot of the engine state.
type Diagnostics struct {
	Version          string               `json:"version"`
	Monitoring       bool                 `json:"monitoring"`
	MonitorRefs      int                  `json:"monitorRefs"`
	TriggerCeiling   int                  `json:"triggerCeiling"`
	TriggerRemaining int                  `json:"triggerRemaining"`
	CeilingPolicy    geofence.Policy      `json:"ceilingPolicy"`
	ActiveTriggers   []string             `json:"activeTriggers"`
	Regions          []device.RegionState `json:"regions"`
	Position         *location.Coordinate `json:"position,omitempty"`
	PositionAt       *time.Time           `json:"positionAt,omitempty"`
	Caches           resolver.CacheStats  `json:"caches"`
	ActiveReminders  int                  `json:"activeReminders"`
}

func (s *APIV1Service) GetDiagnostics(c echo.Context) error {
	active, err := s.Orchestrator.GetActiveLocationReminders(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}

	d := Diagnostics{
		Monitoring:       s.Session.Running(),
		MonitorRefs:      s.Session.Count(),
		TriggerCeiling:   s.Registry.Ceiling(),
		TriggerRemaining: s.Registry.Remaining(),
		CeilingPolicy:    s.Registry.Policy(),
		ActiveTriggers:   s.Registry.Active(),
		Regions:          s.Bridge.Regions(),
		Caches:           s.Resolver.Stats(),
		ActiveReminders:  len(active),
	}
	if s.Profile != nil {
		d.Version = s.Profile.Version
	}
	if position, at := s.Bridge.Position(); position != nil {
		d.Position = position
		d.PositionAt = &at
	}
	return c.JSON(http.StatusOK, d)
}

package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/geominder/internal/profile"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/location/metrics"
	"github.com/hrygo/geominder/location/reminder"
	"github.com/hrygo/geominder/location/resolver"
	"github.com/hrygo/geominder/server/device"
	"github.com/hrygo/geominder/store"
)

type APIV1Service struct {
	// Engine
	Orchestrator *reminder.Orchestrator
	Resolver     *resolver.Resolver
	Registry     *geofence.Registry
	Session      *geofence.MonitorSession
	Bridge       *device.Bridge

	// Shared Infra
	Profile *profile.Profile
	Store   *store.Store
	Metrics *metrics.Exporter
}

// RegisterRoutes mounts the REST handlers on echoServer.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	})

	apiGroup := echoServer.Group("/api/v1", corsHandler)
	apiGroup.POST("/commands", s.ParseCommand)

	reminderGroup := apiGroup.Group("/reminders")
	reminderGroup.GET("", s.ListReminders)
	reminderGroup.POST("", s.CreateReminder)
	reminderGroup.GET("/:id", s.GetReminder)
	reminderGroup.DELETE("/:id", s.DeleteReminder)
	reminderGroup.POST("/:id/complete", s.CompleteReminder)
	reminderGroup.POST("/:id/snooze", s.SnoozeReminder)
	reminderGroup.POST("/reregister", s.ReregisterReminders)

	placeGroup := apiGroup.Group("/places")
	placeGroup.GET("", s.ListSavedPlaces)
	placeGroup.POST("", s.CreateSavedPlace)
	placeGroup.GET("/resolve", s.ResolvePlace)
	placeGroup.GET("/nearby", s.FindNearbyPlaces)
	placeGroup.PATCH("/:id", s.UpdateSavedPlace)
	placeGroup.DELETE("/:id", s.DeleteSavedPlace)

	deviceGroup := apiGroup.Group("/device")
	deviceGroup.POST("/position", s.UpdatePosition)
	deviceGroup.POST("/triggers/:id/enter", s.EnterTrigger)

	apiGroup.GET("/diagnostics", s.GetDiagnostics)

	if s.Metrics != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
}

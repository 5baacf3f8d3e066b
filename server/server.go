package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/geominder/internal/profile"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/location/metrics"
	"github.com/hrygo/geominder/location/reminder"
	"github.com/hrygo/geominder/location/resolver"
	"github.com/hrygo/geominder/plugin/email"
	"github.com/hrygo/geominder/plugin/nominatim"
	"github.com/hrygo/geominder/plugin/notify"
	"github.com/hrygo/geominder/plugin/overpass"
	"github.com/hrygo/geominder/plugin/telegram"
	"github.com/hrygo/geominder/plugin/webhook"
	apiv1 "github.com/hrygo/geominder/server/router/api/v1"
	"github.com/hrygo/geominder/server/device"
	"github.com/hrygo/geominder/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	orchestrator *reminder.Orchestrator
	resolver     *resolver.Resolver
	registry     *geofence.Registry
	bridge       *device.Bridge
	janitor      *cron.Cron

	runnerCancelFuncs []context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	exporter := metrics.NewExporter(metrics.DefaultConfig())

	s.resolver = resolver.New(
		nominatim.New(nominatim.Config{
			BaseURL:   profile.NominatimURL,
			UserAgent: profile.UserAgent,
			RPS:       profile.GeocodeRPS,
			Timeout:   profile.GeocodeTimeout,
		}),
		overpass.New(overpass.Config{
			BaseURL:   profile.OverpassURL,
			UserAgent: profile.UserAgent,
			Timeout:   profile.GeocodeTimeout,
		}),
		store,
		resolver.Config{
			Timeout:       profile.GeocodeTimeout,
			CacheTTL:      profile.CacheTTL,
			CacheCapacity: profile.CacheCapacity,
			Metrics:       exporter,
		},
	)

	s.bridge = device.NewBridge(device.Config{
		Ceiling: profile.TriggerCeiling,
		MaxWait: profile.PositionMaxWait,
	})
	s.registry = geofence.NewRegistry(s.bridge, geofence.Config{
		Ceiling:  profile.TriggerCeiling,
		Policy:   geofence.Policy(profile.CeilingPolicy),
		Attempts: profile.RegisterAttempts,
		Metrics:  exporter,
	})
	session := geofence.NewMonitorSession(s.bridge, exporter)

	s.orchestrator = reminder.New(reminder.Deps{
		Store:     store,
		Resolver:  s.resolver,
		Registry:  s.registry,
		Session:   session,
		Positions: s.bridge,
		Notifier:  newNotifier(profile),
	}, reminder.Config{
		Cooldown:        profile.Cooldown,
		PositionTimeout: profile.PositionTimeout,
		Metrics:         exporter,
	})
	s.bridge.SetEnterHandler(func(ctx context.Context, triggerID string) {
		if _, err := s.orchestrator.HandleTriggerFired(ctx, triggerID); err != nil {
			slog.Warn("failed to handle trigger", "trigger_id", triggerID, "error", err)
		}
	})

	apiV1Service := &apiv1.APIV1Service{
		Orchestrator: s.orchestrator,
		Resolver:     s.resolver,
		Registry:     s.registry,
		Session:      session,
		Bridge:       s.bridge,
		Profile:      profile,
		Store:        store,
		Metrics:      exporter,
	}
	apiV1Service.RegisterRoutes(echoServer)

	janitor := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := janitor.AddFunc(profile.CacheSweepSpec, func() {
		if n := s.resolver.ClearExpired(); n > 0 {
			slog.Debug("cleared expired resolver cache entries", "count", n)
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "invalid cache sweep schedule %q", profile.CacheSweepSpec)
	}
	s.janitor = janitor

	return s, nil
}

// newNotifier fans deliveries out to the log and every configured channel.
// A channel that fails to initialize is skipped.
func newNotifier(profile *profile.Profile) notify.Notifier {
	notifiers := notify.Multi{notify.Log{}}
	if profile.WebhookURL != "" {
		notifiers = append(notifiers, webhook.NewNotifier(profile.WebhookURL))
	}
	if profile.TelegramBotToken != "" {
		n, err := telegram.NewNotifier(telegram.Config{
			BotToken: profile.TelegramBotToken,
			ChatID:   profile.TelegramChatID,
		})
		if err != nil {
			slog.Warn("Telegram notifications disabled", "error", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if profile.SMTPHost != "" {
		n, err := email.NewNotifier(email.Config{
			SMTPHost:     profile.SMTPHost,
			SMTPPort:     profile.SMTPPort,
			SMTPUsername: profile.SMTPUsername,
			SMTPPassword: profile.SMTPPassword,
			FromEmail:    profile.SMTPFrom,
			FromName:     "Geominder",
			To:           profile.SMTPTo,
		})
		if err != nil {
			slog.Warn("Email notifications disabled", "error", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	return notifiers
}

// Start restores the registered triggers, starts the background runners and
// begins serving HTTP.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.orchestrator.ReregisterAll(ctx); err != nil {
		return errors.Wrap(err, "failed to re-register reminders")
	}
	if err := s.orchestrator.RefreshPlaceNames(ctx); err != nil {
		slog.Warn("failed to load saved place names", "error", err)
	}

	s.StartBackgroundRunners(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	watchCtx, watchCancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, watchCancel)

	go func() {
		if err := s.orchestrator.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("monitoring watcher stopped", "error", err)
		}
	}()

	s.janitor.Start()
	slog.Info("background runners started", "cache_sweep", s.Profile.CacheSweepSpec)
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	// Stop the background runners.
	<-s.janitor.Stop().Done()
	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("server stopped properly")
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

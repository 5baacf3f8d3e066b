// Package reminder orchestrates location reminders: creation, trigger
// registration, firing with cooldown, and the monitoring lifecycle.
package reminder

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/command"
	"github.com/hrygo/geominder/location/geofence"
	"github.com/hrygo/geominder/location/metrics"
	"github.com/hrygo/geominder/plugin/notify"
	"github.com/hrygo/geominder/store"
)

const (
	// DefaultCooldown is the minimum time between deliveries of one reminder.
	DefaultCooldown = 30 * time.Minute
	// DefaultSearchRadius bounds the nearby search for category reminders.
	DefaultSearchRadius = 1000.0
	// DefaultPositionTimeout bounds current-position lookups during creation.
	DefaultPositionTimeout = 10 * time.Second

	defaultParallelism = 4
)

// PlaceResolver resolves names and categories to coordinates.
type PlaceResolver interface {
	Resolve(ctx context.Context, name string) (*location.PlaceResult, error)
	FindNearby(ctx context.Context, category location.PlaceCategory, origin location.Coordinate, radiusMeters float64) ([]location.Place, error)
}

// Registrar registers proximity triggers under the device ceiling.
type Registrar interface {
	RegisterBatch(ctx context.Context, triggers []geofence.Trigger) (geofence.Outcome, error)
	Remove(ctx context.Context, id string) error
	Remaining() int
	Policy() geofence.Policy
}

// PositionProvider returns the current device position, or nil when it is
// not known.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (*location.Coordinate, error)
}

// Config configures an Orchestrator.
type Config struct {
	Cooldown        time.Duration
	SearchRadius    float64
	PositionTimeout time.Duration
	// Parallelism bounds concurrent re-registrations.
	Parallelism  int
	Now          func() time.Time
	NewTriggerID func() string
	Metrics      *metrics.Exporter
}

// Orchestrator is the location reminder state machine. The store is the
// single source of truth; every decision re-reads persisted state.
type Orchestrator struct {
	store       *store.Store
	interpreter *command.Interpreter
	resolver    PlaceResolver
	registry    Registrar
	session     *geofence.MonitorSession
	positions   PositionProvider
	notifier    notify.Notifier
	cfg         Config

	locks keyedMutex
	// lifecycleMu pairs each store change to a reminder's trigger ownership
	// with the matching monitoring reference change.
	lifecycleMu sync.Mutex
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Store       *store.Store
	Interpreter *command.Interpreter
	Resolver    PlaceResolver
	Registry    Registrar
	Session     *geofence.MonitorSession
	Positions   PositionProvider
	Notifier    notify.Notifier
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = DefaultSearchRadius
	}
	if cfg.PositionTimeout <= 0 {
		cfg.PositionTimeout = DefaultPositionTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTriggerID == nil {
		cfg.NewTriggerID = shortuuid.New
	}
	if deps.Interpreter == nil {
		deps.Interpreter = command.NewInterpreter(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	return &Orchestrator{
		store:       deps.Store,
		interpreter: deps.Interpreter,
		resolver:    deps.Resolver,
		registry:    deps.Registry,
		session:     deps.Session,
		positions:   deps.Positions,
		notifier:    deps.Notifier,
		cfg:         cfg,
		locks:       keyedMutex{locks: make(map[int32]*keyedLock)},
	}
}

// Interpreter returns the command interpreter.
func (o *Orchestrator) Interpreter() *command.Interpreter {
	return o.interpreter
}

// GetActiveLocationReminders returns every PENDING location reminder.
func (o *Orchestrator) GetActiveLocationReminders(ctx context.Context) ([]*store.Reminder, error) {
	return o.store.ListActiveLocationReminders(ctx)
}

// RefreshPlaceNames loads saved place names into the interpreter.
func (o *Orchestrator) RefreshPlaceNames(ctx context.Context) error {
	places, err := o.store.ListSavedPlaces(ctx, &store.FindSavedPlace{})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(places))
	for _, p := range places {
		names = append(names, p.Name)
	}
	o.interpreter.SetPlaceNames(names)
	return nil
}

func (o *Orchestrator) currentPosition(ctx context.Context) *location.Coordinate {
	if o.positions == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PositionTimeout)
	defer cancel()

	pos, err := o.positions.CurrentPosition(ctx)
	if err != nil {
		slog.Debug("current position unavailable", "error", err)
		return nil
	}
	if pos == nil || !pos.Valid() {
		return nil
	}
	return pos
}

func (o *Orchestrator) deliver(ctx context.Context, n notify.Notification) {
	n.FiredAt = o.cfg.Now()
	if err := o.notifier.Deliver(context.WithoutCancel(ctx), n); err != nil {
		slog.Warn("notification delivery failed", "reminder_id", n.ReminderID, "reason", n.Reason, "error", err)
	}
	o.cfg.Metrics.RecordDelivery(string(n.Reason))
}

func owner(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func ownerID(s string) (int32, bool) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(id), true
}

func holdsTrigger(r *store.Reminder) bool {
	return r.Status == store.ReminderPending && r.Kind == store.ReminderLocationBased && r.TriggerID != nil
}

// keyedMutex serializes work per reminder id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int32]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// Lock locks id and returns the unlock function.
func (k *keyedMutex) Lock(id int32) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

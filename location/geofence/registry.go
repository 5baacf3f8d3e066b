// Package geofence registers proximity triggers with the device monitoring
// capability and keeps the active set under the device ceiling.
package geofence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/metrics"
)

const (
	// DefaultCeiling is the device limit on concurrently registered triggers.
	DefaultCeiling = 100
	// DefaultAttempts is how many times one registration call is tried.
	DefaultAttempts = 3

	batchParallelism = 4
)

var (
	// ErrInvalidTrigger marks a trigger the device can never accept. It is
	// not retried.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrCeilingExceeded is returned when the ceiling leaves no room.
	ErrCeilingExceeded = errors.New("trigger ceiling exceeded")
)

// Trigger is one circular proximity region. Owner groups the triggers of one
// reminder so eviction never removes a sibling of the trigger being added.
// CreatedTs is the owner's creation time in unix seconds; eviction takes the
// lowest first, falling back to registration order on ties.
type Trigger struct {
	ID           string
	Owner        string
	Coordinate   location.Coordinate
	RadiusMeters float64
	CreatedTs    int64
}

func (t Trigger) validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTrigger)
	}
	if !t.Coordinate.Valid() {
		return fmt.Errorf("%w: coordinate out of range: %s", ErrInvalidTrigger, t.Coordinate)
	}
	if t.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be positive", ErrInvalidTrigger)
	}
	return nil
}

// Capability is the device proximity-monitoring service.
type Capability interface {
	AddTrigger(ctx context.Context, t Trigger) error
	RemoveTrigger(ctx context.Context, id string) error
	StartMonitoring(ctx context.Context) error
	StopMonitoring(ctx context.Context) error
}

// Policy decides what happens when a registration hits the ceiling.
type Policy string

const (
	// PolicyEvict removes the least-recently-created trigger of another owner.
	PolicyEvict Policy = "evict"
	// PolicyDeny refuses the registration with CEILING_EXCEEDED.
	PolicyDeny Policy = "deny"
)

// Outcome describes a successful or partially applied registration.
type Outcome struct {
	Registered    bool
	AlreadyActive bool
	// Evicted lists trigger ids removed to make room, by owner.
	Evicted []Eviction
}

// Eviction is one trigger removed to make room under the ceiling.
type Eviction struct {
	TriggerID string
	Owner     string
}

// Config configures a Registry.
type Config struct {
	Ceiling        int
	Policy         Policy
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Metrics        *metrics.Exporter
}

type entry struct {
	trigger Trigger
	seq     uint64
}

// Registry tracks triggers registered through this process. Registration
// calls are serialized so the ceiling check and the device call are atomic.
type Registry struct {
	capability Capability
	cfg        Config

	mu     sync.Mutex
	seq    uint64
	active map[string]entry
}

// NewRegistry creates a Registry over capability.
func NewRegistry(capability Capability, cfg Config) *Registry {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Policy != PolicyDeny {
		cfg.Policy = PolicyEvict
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	return &Registry{
		capability: capability,
		cfg:        cfg,
		active:     make(map[string]entry),
	}
}

// Register adds one trigger. Re-registering an active id is a no-op.
func (r *Registry) Register(ctx context.Context, t Trigger) (Outcome, error) {
	return r.RegisterBatch(ctx, []Trigger{t})
}

// RegisterBatch adds every trigger or none. When any registration fails or
// ctx is cancelled, the triggers added by this call are removed again.
// Evictions performed to make room are not undone and are reported in the
// outcome even on error.
func (r *Registry) RegisterBatch(ctx context.Context, triggers []Trigger) (Outcome, error) {
	const op = "register"

	if len(triggers) == 0 {
		return Outcome{}, location.NewError(location.CodeInvalidInput, op, errors.New("no triggers"))
	}
	for _, t := range triggers {
		if err := t.validate(); err != nil {
			r.cfg.Metrics.RecordRegistration("invalid")
			return Outcome{}, location.NewError(location.CodeRegistrationFailed, op, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]Trigger, 0, len(triggers))
	seen := make(map[string]bool, len(triggers))
	owners := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		owners[t.Owner] = true
		if _, ok := r.active[t.ID]; ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		r.cfg.Metrics.RecordRegistration("already_active")
		return Outcome{Registered: true, AlreadyActive: true}, nil
	}

	var outcome Outcome
	overflow := len(r.active) + len(pending) - r.cfg.Ceiling
	if overflow > 0 {
		if r.cfg.Policy == PolicyDeny {
			r.cfg.Metrics.RecordRegistration("ceiling")
			return outcome, location.NewError(location.CodeCeilingExceeded, op,
				fmt.Errorf("%w: %d active, %d requested, ceiling %d", ErrCeilingExceeded, len(r.active), len(pending), r.cfg.Ceiling))
		}
		victims := r.evictionCandidates(owners)
		if len(victims) < overflow {
			r.cfg.Metrics.RecordRegistration("ceiling")
			return outcome, location.NewError(location.CodeCeilingExceeded, op,
				fmt.Errorf("%w: only %d evictable of %d needed", ErrCeilingExceeded, len(victims), overflow))
		}
		for _, victim := range victims[:overflow] {
			if err := r.removeWithRetry(ctx, victim.trigger.ID); err != nil {
				r.cfg.Metrics.RecordRegistration("failed")
				return outcome, location.NewError(location.CodeRegistrationFailed, op, fmt.Errorf("evict %s: %w", victim.trigger.ID, err))
			}
			delete(r.active, victim.trigger.ID)
			outcome.Evicted = append(outcome.Evicted, Eviction{TriggerID: victim.trigger.ID, Owner: victim.trigger.Owner})
			slog.Info("evicted trigger to stay under ceiling", "trigger_id", victim.trigger.ID, "owner", victim.trigger.Owner)
		}
		r.cfg.Metrics.RecordEvictions(len(outcome.Evicted))
	}

	added := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, t := range pending {
		g.Go(func() error {
			if err := r.addWithRetry(gctx, t); err != nil {
				return fmt.Errorf("trigger %s: %w", t.ID, err)
			}
			added[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.rollback(ctx, pending, added)
		r.cfg.Metrics.RecordRegistration("failed")
		r.cfg.Metrics.SetActiveTriggers(len(r.active))
		return outcome, location.NewError(location.CodeRegistrationFailed, op, err)
	}
	if err := ctx.Err(); err != nil {
		r.rollback(ctx, pending, added)
		r.cfg.Metrics.RecordRegistration("cancelled")
		return outcome, location.NewError(location.CodeRegistrationFailed, op, err)
	}

	for _, t := range pending {
		r.seq++
		r.active[t.ID] = entry{trigger: t, seq: r.seq}
	}
	outcome.Registered = true
	r.cfg.Metrics.RecordRegistration("registered")
	r.cfg.Metrics.SetActiveTriggers(len(r.active))
	return outcome, nil
}

// evictionCandidates returns active triggers not owned by owners, least
// recently created first.
func (r *Registry) evictionCandidates(owners map[string]bool) []entry {
	var candidates []entry
	for _, e := range r.active {
		if e.trigger.Owner != "" && owners[e.trigger.Owner] {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.trigger.CreatedTs != b.trigger.CreatedTs {
			return a.trigger.CreatedTs < b.trigger.CreatedTs
		}
		return a.seq < b.seq
	})
	return candidates
}

// rollback removes the triggers this batch managed to add. It runs detached
// from ctx so a cancelled caller still leaves no orphans.
func (r *Registry) rollback(ctx context.Context, pending []Trigger, added []bool) {
	cleanup := context.WithoutCancel(ctx)
	for i, t := range pending {
		if !added[i] {
			continue
		}
		if err := r.removeWithRetry(cleanup, t.ID); err != nil {
			slog.Warn("failed to roll back trigger", "trigger_id", t.ID, "error", err)
		}
	}
}

// Remove unregisters id. Unknown ids are still passed to the device, which
// may hold triggers registered before a restart.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.removeWithRetry(ctx, id); err != nil {
		return location.NewError(location.CodeRegistrationFailed, "remove", err)
	}
	delete(r.active, id)
	r.cfg.Metrics.SetActiveTriggers(len(r.active))
	return nil
}

// RemoveAll unregisters every trigger this registry knows about.
func (r *Registry) RemoveAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id := range r.active {
		if err := r.removeWithRetry(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", id, err))
			continue
		}
		delete(r.active, id)
	}
	r.cfg.Metrics.SetActiveTriggers(len(r.active))
	if len(errs) > 0 {
		return location.NewError(location.CodeRegistrationFailed, "remove_all", errors.Join(errs...))
	}
	return nil
}

// Remaining returns how many more triggers fit under the ceiling.
func (r *Registry) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(r.cfg.Ceiling-len(r.active), 0)
}

// Ceiling returns the configured ceiling.
func (r *Registry) Ceiling() int {
	return r.cfg.Ceiling
}

// Policy returns the ceiling policy.
func (r *Registry) Policy() Policy {
	return r.cfg.Policy
}

// Active returns active trigger ids, oldest first.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]entry, 0, len(r.active))
	for _, e := range r.active {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.trigger.ID
	}
	return ids
}

// IsActive reports whether id is registered.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

func (r *Registry) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	return b
}

func (r *Registry) addWithRetry(ctx context.Context, t Trigger) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.capability.AddTrigger(ctx, t)
		if errors.Is(err, ErrInvalidTrigger) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("retrying trigger registration", "trigger_id", t.ID, "error", err, "next", next)
		}),
	)
	return err
}

func (r *Registry) removeWithRetry(ctx context.Context, id string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.capability.RemoveTrigger(ctx, id)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.cfg.Attempts)),
	)
	return err
}

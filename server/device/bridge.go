// Package device is the host-side stand-in for the device location
// services: proximity monitoring and the current position. Position updates
// arrive over the API and are turned into enter events.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/geofence"
)

const (
	// HardCeiling is the platform limit on registered regions.
	HardCeiling = 100
	// MaxRadius is the largest region the platform accepts.
	MaxRadius = 100_000.0
	// DefaultMaxWait bounds the wait for a first position fix.
	DefaultMaxWait = 5 * time.Minute
)

var (
	// ErrNoFix is returned while no position is known.
	ErrNoFix = errors.New("no position fix")
	// ErrCeiling is returned when the platform region limit is reached.
	ErrCeiling = errors.New("region limit reached")
)

// EnterHandler receives enter events.
type EnterHandler func(ctx context.Context, triggerID string)

// Config configures a Bridge.
type Config struct {
	Ceiling         int
	MaxWait         time.Duration
	InitialInterval time.Duration
	Now             func() time.Time
}

type region struct {
	trigger geofence.Trigger
	inside  bool
}

// RegionState is a registered region as seen by diagnostics.
type RegionState struct {
	TriggerID    string  `json:"triggerId"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
	Inside       bool    `json:"inside"`
}

// Bridge implements geofence.Capability and the current-position provider.
type Bridge struct {
	cfg Config

	mu         sync.Mutex
	regions    map[string]*region
	monitoring bool
	position   *location.Coordinate
	positionAt time.Time
	onEnter    EnterHandler
}

// NewBridge creates a Bridge with no position and no regions.
func NewBridge(cfg Config) *Bridge {
	if cfg.Ceiling <= 0 || cfg.Ceiling > HardCeiling {
		cfg.Ceiling = HardCeiling
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bridge{cfg: cfg, regions: make(map[string]*region)}
}

// SetEnterHandler installs the enter event receiver.
func (b *Bridge) SetEnterHandler(h EnterHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEnter = h
}

func (b *Bridge) AddTrigger(_ context.Context, t geofence.Trigger) error {
	if !t.Coordinate.Valid() || t.RadiusMeters <= 0 || t.RadiusMeters > MaxRadius {
		return fmt.Errorf("%w: region %s r=%.0f", geofence.ErrInvalidTrigger, t.Coordinate, t.RadiusMeters)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.regions[t.ID]; !ok && len(b.regions) >= b.cfg.Ceiling {
		return fmt.Errorf("%w: %d regions", ErrCeiling, len(b.regions))
	}
	// A region the device starts inside never produces an enter event.
	inside := b.position != nil && location.IsWithinRadius(*b.position, t.Coordinate, t.RadiusMeters)
	b.regions[t.ID] = &region{trigger: t, inside: inside}
	return nil
}

func (b *Bridge) RemoveTrigger(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.regions, id)
	return nil
}

func (b *Bridge) StartMonitoring(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.monitoring {
		slog.Info("device monitoring started")
	}
	b.monitoring = true
	return nil
}

func (b *Bridge) StopMonitoring(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.monitoring {
		slog.Info("device monitoring stopped")
	}
	b.monitoring = false
	return nil
}

// UpdatePosition records a new fix and emits enter events for regions
// crossed from outside to inside while monitoring. It returns the entered
// trigger ids.
func (b *Bridge) UpdatePosition(ctx context.Context, c location.Coordinate) ([]string, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("position out of range: %s", c)
	}

	b.mu.Lock()
	b.position = &c
	b.positionAt = b.cfg.Now()
	var entered []string
	for id, r := range b.regions {
		inside := location.IsWithinRadius(c, r.trigger.Coordinate, r.trigger.RadiusMeters)
		if inside && !r.inside && b.monitoring {
			entered = append(entered, id)
		}
		r.inside = inside
	}
	handler := b.onEnter
	b.mu.Unlock()

	sort.Strings(entered)
	if handler != nil {
		for _, id := range entered {
			handler(ctx, id)
		}
	}
	return entered, nil
}

// MarkInside records an enter event observed by a real device so the next
// position update does not report the same crossing. It reports whether the
// region is registered.
func (b *Bridge) MarkInside(triggerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.regions[triggerID]
	if ok {
		r.inside = true
	}
	return ok
}

// CurrentPosition returns the last fix. While none is known it retries with
// exponential backoff until MaxWait or ctx ends.
func (b *Bridge) CurrentPosition(ctx context.Context) (*location.Coordinate, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.InitialInterval

	return backoff.Retry(ctx, func() (*location.Coordinate, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.position == nil {
			return nil, ErrNoFix
		}
		c := *b.position
		return &c, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(b.cfg.MaxWait),
	)
}

// Position returns the last fix without waiting.
func (b *Bridge) Position() (*location.Coordinate, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position == nil {
		return nil, time.Time{}
	}
	c := *b.position
	return &c, b.positionAt
}

// Regions returns the registered regions ordered by trigger id.
func (b *Bridge) Regions() []RegionState {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]RegionState, 0, len(b.regions))
	for id, r := range b.regions {
		states = append(states, RegionState{
			TriggerID:    id,
			Latitude:     r.trigger.Coordinate.Latitude,
			Longitude:    r.trigger.Coordinate.Longitude,
			RadiusMeters: r.trigger.RadiusMeters,
			Inside:       r.inside,
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].TriggerID < states[j].TriggerID })
	return states
}

// Monitoring reports whether the monitoring session is running.
func (b *Bridge) Monitoring() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.monitoring
}

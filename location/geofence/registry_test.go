package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/location"
)

// fakeCapability is an in-memory device that enforces its own ceiling.
type fakeCapability struct {
	mu        sync.Mutex
	ceiling   int
	triggers  map[string]Trigger
	transient map[string]int // remaining transient failures per id
	failAll   bool
	addCalls  map[string]int
	removed   []string
	starts    int
	stops     int
	maxSeen   int
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{
		ceiling:   DefaultCeiling,
		triggers:  make(map[string]Trigger),
		transient: make(map[string]int),
		addCalls:  make(map[string]int),
	}
}

func (f *fakeCapability) AddTrigger(_ context.Context, t Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls[t.ID]++
	if f.failAll {
		return errors.New("location services unavailable")
	}
	if n := f.transient[t.ID]; n > 0 {
		f.transient[t.ID] = n - 1
		return errors.New("temporary failure")
	}
	if t.RadiusMeters > 100_000 {
		return fmt.Errorf("%w: radius too large", ErrInvalidTrigger)
	}
	if _, ok := f.triggers[t.ID]; !ok && len(f.triggers) >= f.ceiling {
		return errors.New("device ceiling reached")
	}
	f.triggers[t.ID] = t
	f.maxSeen = max(f.maxSeen, len(f.triggers))
	return nil
}

func (f *fakeCapability) RemoveTrigger(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.triggers, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeCapability) StartMonitoring(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeCapability) StopMonitoring(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeCapability) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func testConfig() Config {
	return Config{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func trigger(id, owner string) Trigger {
	return Trigger{
		ID:           id,
		Owner:        owner,
		Coordinate:   location.Coordinate{Latitude: 52.52, Longitude: 13.405},
		RadiusMeters: 100,
	}
}

func TestRegister_RetriesTransientFailures(t *testing.T) {
	capability := newFakeCapability()
	capability.transient["a"] = 2
	r := NewRegistry(capability, testConfig())

	outcome, err := r.Register(context.Background(), trigger("a", "1"))
	require.NoError(t, err)
	assert.True(t, outcome.Registered)
	assert.Equal(t, 3, capability.addCalls["a"])
	assert.True(t, r.IsActive("a"))
}

func TestRegister_GivesUpAfterThreeAttempts(t *testing.T) {
	capability := newFakeCapability()
	capability.transient["a"] = 5
	r := NewRegistry(capability, testConfig())

	_, err := r.Register(context.Background(), trigger("a", "1"))
	assert.Equal(t, location.CodeRegistrationFailed, location.CodeOf(err))
	assert.Equal(t, 3, capability.addCalls["a"])
	assert.False(t, r.IsActive("a"))
}

func TestRegister_PermanentFailuresAreNotRetried(t *testing.T) {
	capability := newFakeCapability()
	r := NewRegistry(capability, testConfig())

	t.Run("rejected by the device", func(t *testing.T) {
		tr := trigger("huge", "1")
		tr.RadiusMeters = 200_000
		_, err := r.Register(context.Background(), tr)
		assert.Equal(t, location.CodeRegistrationFailed, location.CodeOf(err))
		assert.ErrorIs(t, err, ErrInvalidTrigger)
		assert.Equal(t, 1, capability.addCalls["huge"])
	})

	t.Run("malformed coordinates never reach the device", func(t *testing.T) {
		tr := trigger("bad", "1")
		tr.Coordinate = location.Coordinate{Latitude: 95, Longitude: 0}
		_, err := r.Register(context.Background(), tr)
		assert.ErrorIs(t, err, ErrInvalidTrigger)
		assert.Zero(t, capability.addCalls["bad"])
	})
}

func TestRegister_Idempotent(t *testing.T) {
	capability := newFakeCapability()
	r := NewRegistry(capability, testConfig())
	ctx := context.Background()

	_, err := r.Register(ctx, trigger("a", "1"))
	require.NoError(t, err)
	outcome, err := r.Register(ctx, trigger("a", "1"))
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyActive)
	assert.Equal(t, 1, capability.addCalls["a"])
}

func TestRegister_CeilingEvictsOldest(t *testing.T) {
	capability := newFakeCapability()
	r := NewRegistry(capability, testConfig())
	ctx := context.Background()

	for i := 0; i < DefaultCeiling; i++ {
		_, err := r.Register(ctx, trigger(fmt.Sprintf("t-%03d", i), fmt.Sprintf("r-%d", i)))
		require.NoError(t, err)
	}
	assert.Zero(t, r.Remaining())

	outcome, err := r.Register(ctx, trigger("new", "r-new"))
	require.NoError(t, err)
	require.Len(t, outcome.Evicted, 1)
	assert.Equal(t, Eviction{TriggerID: "t-000", Owner: "r-0"}, outcome.Evicted[0])
	assert.False(t, r.IsActive("t-000"))
	assert.True(t, r.IsActive("new"))
	assert.Len(t, r.Active(), DefaultCeiling)
	assert.LessOrEqual(t, capability.maxSeen, DefaultCeiling)
}

func TestRegister_CeilingEvictsLeastRecentlyCreated(t *testing.T) {
	capability := newFakeCapability()
	cfg := testConfig()
	cfg.Ceiling = 3
	r := NewRegistry(capability, cfg)
	ctx := context.Background()

	// Registration order differs from creation order, as after a restart.
	for _, tc := range []struct {
		id      string
		created int64
	}{{"t-30", 30}, {"t-10", 10}, {"t-20", 20}} {
		tr := trigger(tc.id, "r-"+tc.id)
		tr.CreatedTs = tc.created
		_, err := r.Register(ctx, tr)
		require.NoError(t, err)
	}

	outcome, err := r.Register(ctx, trigger("t-40", "r-t-40"))
	require.NoError(t, err)
	require.Len(t, outcome.Evicted, 1)
	assert.Equal(t, "t-10", outcome.Evicted[0].TriggerID)
	assert.True(t, r.IsActive("t-30"))
	assert.True(t, r.IsActive("t-20"))
}

func TestRegister_EvictionSkipsSameOwner(t *testing.T) {
	capability := newFakeCapability()
	cfg := testConfig()
	cfg.Ceiling = 3
	r := NewRegistry(capability, cfg)
	ctx := context.Background()

	_, err := r.RegisterBatch(ctx, []Trigger{trigger("a1", "A"), trigger("a2", "A")})
	require.NoError(t, err)
	_, err = r.Register(ctx, trigger("b1", "B"))
	require.NoError(t, err)

	outcome, err := r.Register(ctx, trigger("a3", "A"))
	require.NoError(t, err)
	require.Len(t, outcome.Evicted, 1)
	assert.Equal(t, "b1", outcome.Evicted[0].TriggerID)
	assert.Equal(t, []string{"a1", "a2", "a3"}, r.Active())
}

func TestRegister_CeilingDenyPolicy(t *testing.T) {
	capability := newFakeCapability()
	cfg := testConfig()
	cfg.Ceiling = 2
	cfg.Policy = PolicyDeny
	r := NewRegistry(capability, cfg)
	ctx := context.Background()

	_, err := r.RegisterBatch(ctx, []Trigger{trigger("a", "A"), trigger("b", "B")})
	require.NoError(t, err)

	_, err = r.Register(ctx, trigger("c", "C"))
	assert.Equal(t, location.CodeCeilingExceeded, location.CodeOf(err))
	assert.ErrorIs(t, err, ErrCeilingExceeded)
	assert.Zero(t, capability.addCalls["c"])
	assert.Equal(t, 2, capability.count())
}

func TestRegister_CeilingWithNothingEvictable(t *testing.T) {
	capability := newFakeCapability()
	cfg := testConfig()
	cfg.Ceiling = 2
	r := NewRegistry(capability, cfg)

	_, err := r.RegisterBatch(context.Background(), []Trigger{trigger("a", "A"), trigger("b", "A"), trigger("c", "A")})
	assert.Equal(t, location.CodeCeilingExceeded, location.CodeOf(err))
	assert.Zero(t, capability.count())
}

func TestRegisterBatch_RollsBackOnFailure(t *testing.T) {
	capability := newFakeCapability()
	capability.transient["b3"] = 10
	r := NewRegistry(capability, testConfig())

	batch := []Trigger{trigger("b1", "R"), trigger("b2", "R"), trigger("b3", "R"), trigger("b4", "R")}
	_, err := r.RegisterBatch(context.Background(), batch)
	assert.Equal(t, location.CodeRegistrationFailed, location.CodeOf(err))
	assert.Zero(t, capability.count(), "partially registered triggers are removed")
	assert.Empty(t, r.Active())
}

func TestRegisterBatch_RollsBackOnCancel(t *testing.T) {
	capability := newFakeCapability()
	r := NewRegistry(capability, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RegisterBatch(ctx, []Trigger{trigger("c1", "R"), trigger("c2", "R")})
	require.Error(t, err)
	assert.Zero(t, capability.count())
	assert.Empty(t, r.Active())
}

func TestRemoveAndRemoveAll(t *testing.T) {
	capability := newFakeCapability()
	r := NewRegistry(capability, testConfig())
	ctx := context.Background()

	_, err := r.RegisterBatch(ctx, []Trigger{trigger("a", "A"), trigger("b", "B"), trigger("c", "C")})
	require.NoError(t, err)
	assert.Equal(t, DefaultCeiling-3, r.Remaining())

	require.NoError(t, r.Remove(ctx, "a"))
	assert.False(t, r.IsActive("a"))

	// Unknown ids still reach the device.
	require.NoError(t, r.Remove(ctx, "from-before-restart"))
	assert.Contains(t, capability.removed, "from-before-restart")

	require.NoError(t, r.RemoveAll(ctx))
	assert.Empty(t, r.Active())
	assert.Zero(t, capability.count())
}

func TestRegister_ConcurrentNeverExceedsCeiling(t *testing.T) {
	capability := newFakeCapability()
	cfg := testConfig()
	cfg.Ceiling = 10
	r := NewRegistry(capability, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Register(context.Background(), trigger(fmt.Sprintf("t-%d", i), fmt.Sprintf("r-%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Active(), 10)
	assert.LessOrEqual(t, capability.maxSeen, 10)
}

func TestMonitorSession(t *testing.T) {
	capability := newFakeCapability()
	s := NewMonitorSession(capability, nil)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	assert.Equal(t, 1, capability.starts, "start is idempotent")
	assert.True(t, s.Running())

	require.NoError(t, s.Release(ctx))
	assert.Zero(t, capability.stops)
	require.NoError(t, s.Release(ctx))
	assert.Equal(t, 1, capability.stops)
	assert.False(t, s.Running())

	require.NoError(t, s.Release(ctx))
	assert.Equal(t, 1, capability.stops, "release below zero is a no-op")

	require.NoError(t, s.Reconcile(ctx, 3))
	assert.Equal(t, 2, capability.starts)
	assert.Equal(t, 3, s.Count())
	require.NoError(t, s.Reconcile(ctx, 0))
	assert.Equal(t, 2, capability.stops)
}

package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/location/geofence"
)

var shop = location.Coordinate{Latitude: 52.5200, Longitude: 13.4050}

func testRegion(id string) geofence.Trigger {
	return geofence.Trigger{ID: id, Owner: "1", Coordinate: shop, RadiusMeters: 100}
}

type enterLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *enterLog) handle(_ context.Context, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *enterLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func TestBridge_EntersOnlyOnCrossing(t *testing.T) {
	b := NewBridge(Config{})
	log := &enterLog{}
	b.SetEnterHandler(log.handle)
	ctx := context.Background()

	require.NoError(t, b.AddTrigger(ctx, testRegion("shop")))
	require.NoError(t, b.StartMonitoring(ctx))

	outside := location.Coordinate{Latitude: 52.5300, Longitude: 13.4050}
	entered, err := b.UpdatePosition(ctx, outside)
	require.NoError(t, err)
	assert.Empty(t, entered)

	entered, err = b.UpdatePosition(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, entered)

	// Moving around inside the region is not a new crossing.
	_, err = b.UpdatePosition(ctx, location.Coordinate{Latitude: 52.5202, Longitude: 13.4050})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, log.all())
}

func TestBridge_StartingInsideNeverEnters(t *testing.T) {
	b := NewBridge(Config{})
	log := &enterLog{}
	b.SetEnterHandler(log.handle)
	ctx := context.Background()

	_, err := b.UpdatePosition(ctx, shop)
	require.NoError(t, err)
	require.NoError(t, b.StartMonitoring(ctx))
	require.NoError(t, b.AddTrigger(ctx, testRegion("shop")))

	_, err = b.UpdatePosition(ctx, shop)
	require.NoError(t, err)
	assert.Empty(t, log.all())
	assert.True(t, b.Regions()[0].Inside)
}

func TestBridge_NoEventsWhileStopped(t *testing.T) {
	b := NewBridge(Config{})
	log := &enterLog{}
	b.SetEnterHandler(log.handle)
	ctx := context.Background()

	require.NoError(t, b.AddTrigger(ctx, testRegion("shop")))
	_, err := b.UpdatePosition(ctx, shop)
	require.NoError(t, err)
	assert.Empty(t, log.all())
	assert.False(t, b.Monitoring())
}

func TestBridge_Ceiling(t *testing.T) {
	b := NewBridge(Config{Ceiling: 500})
	ctx := context.Background()

	for i := 0; i < HardCeiling; i++ {
		require.NoError(t, b.AddTrigger(ctx, testRegion(fmt.Sprintf("r-%d", i))))
	}
	assert.ErrorIs(t, b.AddTrigger(ctx, testRegion("one-too-many")), ErrCeiling)
	assert.NoError(t, b.AddTrigger(ctx, testRegion("r-0")), "re-adding an existing region is allowed")

	require.NoError(t, b.RemoveTrigger(ctx, "r-0"))
	assert.NoError(t, b.AddTrigger(ctx, testRegion("one-too-many")))
	assert.Len(t, b.Regions(), HardCeiling)
}

func TestBridge_InvalidRegion(t *testing.T) {
	b := NewBridge(Config{})
	huge := testRegion("huge")
	huge.RadiusMeters = MaxRadius + 1
	assert.ErrorIs(t, b.AddTrigger(context.Background(), huge), geofence.ErrInvalidTrigger)
}

func TestBridge_CurrentPositionWaitsForFix(t *testing.T) {
	b := NewBridge(Config{InitialInterval: 5 * time.Millisecond, MaxWait: time.Second})
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = b.UpdatePosition(ctx, shop)
	}()

	pos, err := b.CurrentPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, shop, *pos)
}

func TestBridge_CurrentPositionGivesUp(t *testing.T) {
	b := NewBridge(Config{InitialInterval: 5 * time.Millisecond, MaxWait: 50 * time.Millisecond})

	pos, err := b.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrNoFix)
	assert.Nil(t, pos)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBridge(Config{}).CurrentPosition(ctx)
	assert.Error(t, err)
}

func TestBridge_MarkInside(t *testing.T) {
	b := NewBridge(Config{})
	log := &enterLog{}
	b.SetEnterHandler(log.handle)
	ctx := context.Background()

	require.NoError(t, b.AddTrigger(ctx, testRegion("shop")))
	require.NoError(t, b.StartMonitoring(ctx))
	assert.True(t, b.MarkInside("shop"))
	assert.False(t, b.MarkInside("unknown"))

	_, err := b.UpdatePosition(ctx, shop)
	require.NoError(t, err)
	assert.Empty(t, log.all(), "crossing was already reported by the device")
}

package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/geominder/location"
)

var origin = location.Coordinate{Latitude: 52.52, Longitude: 13.405}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery([]location.Tag{{Key: "shop", Value: "supermarket"}, {Key: "amenity", Value: "pharmacy"}}, origin, 1000, 10, 10*time.Second)

	assert.Equal(t, `[out:json][timeout:10];
(
  nwr["shop"="supermarket"](around:1000,52.520000,13.405000);
  nwr["amenity"="pharmacy"](around:1000,52.520000,13.405000);
);
out center 10;`, q)
}

func TestClient_SearchNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Form.Get("data"), `nwr["shop"="supermarket"]`)
		assert.Equal(t, "geominder-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":52.521,"lon":13.406,"tags":{"name":"Corner Shop"}},
			{"type":"way","id":2,"center":{"lat":52.523,"lon":13.41},"tags":{"brand":"BigMart"}},
			{"type":"relation","id":3,"tags":{"name":"No geometry"}}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UserAgent: "geominder-test", RPS: 100})
	places, err := c.SearchNearby(context.Background(), []location.Tag{{Key: "shop", Value: "supermarket"}}, origin, 1000, 10)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "node/1", places[0].ID)
	assert.Equal(t, "Corner Shop", places[0].Name)
	assert.Equal(t, "BigMart", places[1].Name)
	assert.Equal(t, location.Coordinate{Latitude: 52.523, Longitude: 13.41}, places[1].Coordinate)
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RPS: 0.5})
	tags := []location.Tag{{Key: "shop", Value: "supermarket"}}
	_, err := c.SearchNearby(context.Background(), tags, origin, 1000, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.SearchNearby(ctx, tags, origin, 1000, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_SearchNearbyErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		target error
	}{
		{"bad query", http.StatusBadRequest, location.ErrInvalidQuery},
		{"busy", http.StatusTooManyRequests, location.ErrServiceUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, location.ErrServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL, RPS: 100}).SearchNearby(context.Background(), []location.Tag{{Key: "amenity", Value: "fuel"}}, origin, 500, 10)
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestClient_NoTagsNoRequest(t *testing.T) {
	places, err := New(Config{BaseURL: "http://127.0.0.1:1", RPS: 100}).SearchNearby(context.Background(), nil, origin, 500, 10)
	assert.NoError(t, err)
	assert.Empty(t, places)
}

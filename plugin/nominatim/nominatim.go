// Package nominatim is a geocoding client for the OpenStreetMap Nominatim
// search API.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/geominder/location"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultRPS follows the public instance usage policy of one request per
	// second.
	DefaultRPS = 1.0

	maxResults = 5
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string
	RPS       float64
	Timeout   time.Duration
}

// Client geocodes free text. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the addresses matching query, best match first. An empty
// slice means no match.
func (c *Client) Geocode(ctx context.Context, query string) ([]location.Address, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(location.ErrInvalidQuery, "empty geocode query")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token is free.
		if ctx.Err() == nil {
			err = errors.Wrap(context.DeadlineExceeded, err.Error())
		}
		return nil, errors.Wrap(err, "geocode rate limiter")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct geocode request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to geocode %q", query)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read geocode response")
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, errors.Wrap(err, "failed to decode geocode response")
	}

	addresses := make([]location.Address, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		addresses = append(addresses, location.Address{
			Coordinate: location.Coordinate{Latitude: lat, Longitude: lon},
			Lines:      splitLines(r.DisplayName),
		})
	}
	return addresses, nil
}

// statusError maps HTTP statuses to the resolver's sentinel errors.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest:
		return errors.Wrapf(location.ErrInvalidQuery, "geocoder rejected query: %s", truncate(body))
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Wrapf(location.ErrServiceUnavailable, "geocoder status %d", status)
	default:
		return errors.Errorf("geocoder status %d: %s", status, truncate(body))
	}
}

func splitLines(displayName string) []string {
	var lines []string
	for _, part := range strings.Split(displayName, ",") {
		if part = strings.TrimSpace(part); part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

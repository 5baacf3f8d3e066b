// Package overpass searches OpenStreetMap points of interest through the
// Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
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
	DefaultBaseURL = "https://overpass-api.de/api/interpreter"
	DefaultRPS     = 1.0
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string
	RPS       float64
	Timeout   time.Duration
}

// Client runs nearby searches. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
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
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *center           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SearchNearby returns up to limit places carrying any of tags within
// radiusMeters of origin. Ways and relations are reported at their center.
func (c *Client) SearchNearby(ctx context.Context, tags []location.Tag, origin location.Coordinate, radiusMeters float64, limit int) ([]location.Place, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if !origin.Valid() || radiusMeters <= 0 {
		return nil, errors.Wrapf(location.ErrInvalidQuery, "bad search area %s r=%.0f", origin, radiusMeters)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token is free.
		if ctx.Err() == nil {
			err = errors.Wrap(context.DeadlineExceeded, err.Error())
		}
		return nil, errors.Wrap(err, "nearby search rate limiter")
	}

	form := url.Values{}
	form.Set("data", BuildQuery(tags, origin, radiusMeters, limit, c.timeout))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct nearby search request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run nearby search")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read nearby search response")
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errors.Wrap(location.ErrInvalidQuery, "overpass rejected query")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode >= 500:
		return nil, errors.Wrapf(location.ErrServiceUnavailable, "overpass status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Errorf("overpass status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode nearby search response")
	}
	return toPlaces(decoded.Elements, limit), nil
}

// BuildQuery renders the Overpass QL query for a tag union around origin.
func BuildQuery(tags []location.Tag, origin location.Coordinate, radiusMeters float64, limit int, timeout time.Duration) string {
	around := fmt.Sprintf("(around:%.0f,%s,%s)", radiusMeters,
		strconv.FormatFloat(origin.Latitude, 'f', 6, 64),
		strconv.FormatFloat(origin.Longitude, 'f', 6, 64))

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", max(int(timeout/time.Second), 1))
	for _, tag := range tags {
		fmt.Fprintf(&b, "  nwr[%q=%q]%s;\n", tag.Key, tag.Value, around)
	}
	b.WriteString(");\nout center")
	if limit > 0 {
		fmt.Fprintf(&b, " %d", limit)
	}
	b.WriteString(";")
	return b.String()
}

func toPlaces(elements []element, limit int) []location.Place {
	places := make([]location.Place, 0, len(elements))
	for _, e := range elements {
		c := location.Coordinate{Latitude: e.Lat, Longitude: e.Lon}
		if e.Center != nil {
			c = location.Coordinate{Latitude: e.Center.Lat, Longitude: e.Center.Lon}
		}
		if !c.Valid() || (c.Latitude == 0 && c.Longitude == 0) {
			continue
		}
		name := e.Tags["name"]
		if name == "" {
			name = e.Tags["brand"]
		}
		places = append(places, location.Place{
			ID:         e.Type + "/" + strconv.FormatInt(e.ID, 10),
			Name:       name,
			Coordinate: c,
		})
		if limit > 0 && len(places) == limit {
			break
		}
	}
	return places
}

// Package waqi provides a client for the World Air Quality Index (aqicn.org) API.
package waqi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the WAQI API.
	DefaultBaseURL = "https://api.waqi.info"

	// ProviderName identifies this provider.
	ProviderName = "waqi"

	statusOK = "ok"
)

// errNoPosition is returned for feeds without a usable city.geo. The forecast
// is looked up by position, so such a feed cannot back a reading.
var errNoPosition = errors.New("feed has no usable station coordinates")

// ClientConfig holds configuration for the WAQI client.
type ClientConfig struct {
	// Token is the WAQI API token (required).
	Token string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client without retries will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a WAQI API client.
type Client struct {
	token      string
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new WAQI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    ProviderName,
			Timeout: timeout,
		})
	}

	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from the WAQI JSON API). Data is decoded only after the
// status is known, since error responses carry a message string there.

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type searchResult struct {
	UID     int `json:"uid"`
	Station struct {
		Name string       `json:"name"`
		Geo  []flexNumber `json:"geo"`
	} `json:"station"`
}

type feedData struct {
	AQI  flexNumber `json:"aqi"`
	IDX  int        `json:"idx"`
	City struct {
		Name string       `json:"name"`
		Geo  []flexNumber `json:"geo"`
	} `json:"city"`
	IAQI struct {
		PM25 *iaqiValue `json:"pm25"`
		PM10 *iaqiValue `json:"pm10"`
	} `json:"iaqi"`
	Time struct {
		ISO string `json:"iso"`
		S   string `json:"s"`
	} `json:"time"`
}

type iaqiValue struct {
	V flexNumber `json:"v"`
}

// SearchStations retrieves stations matching a keyword.
// A non-success status is returned as an error; callers decide whether to absorb it.
func (c *Client) SearchStations(ctx context.Context, keyword string) ([]airquality.StationSuggestion, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("token", c.token)

	env, err := c.get(ctx, "/search/", q)
	if err != nil {
		return nil, fmt.Errorf("search stations: %w", err)
	}

	if env.Status != statusOK {
		return nil, fmt.Errorf("search stations: provider status %q: %s", env.Status, message(env.Data))
	}

	var results []searchResult
	if err := json.Unmarshal(env.Data, &results); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	suggestions := make([]airquality.StationSuggestion, 0, len(results))
	for i := range results {
		if s, ok := toSuggestion(&results[i]); ok {
			suggestions = append(suggestions, s)
		}
	}

	return suggestions, nil
}

// FetchObservation retrieves the latest observation for a station.
func (c *Client) FetchObservation(ctx context.Context, stationID int) (*airquality.Observation, error) {
	q := url.Values{}
	q.Set("token", c.token)

	env, err := c.get(ctx, fmt.Sprintf("/feed/@%d/", stationID), q)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	if env.Status != statusOK {
		return nil, fmt.Errorf("%w: %s", airquality.ErrStationNotFound, message(env.Data))
	}

	var data feedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	obs, err := toObservation(&data)
	if err != nil {
		return nil, fmt.Errorf("decode feed response for station %d: %w", stationID, err)
	}
	return obs, nil
}

// get performs a GET request and decodes the status envelope.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	reqURL := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

// toSuggestion converts a search result, dropping records without a usable id or position.
func toSuggestion(r *searchResult) (airquality.StationSuggestion, bool) {
	coords, ok := toCoordinates(r.Station.Geo)
	if r.UID <= 0 || !ok {
		return airquality.StationSuggestion{}, false
	}
	return airquality.StationSuggestion{
		ID:          r.UID,
		Name:        r.Station.Name,
		Coordinates: coords,
	}, true
}

// toObservation converts feed data to a domain Observation.
func toObservation(d *feedData) (*airquality.Observation, error) {
	coords, ok := toCoordinates(d.City.Geo)
	if !ok {
		return nil, errNoPosition
	}

	obs := &airquality.Observation{
		City:        d.City.Name,
		AQI:         toAQI(d.AQI),
		Coordinates: coords,
		ObservedAt:  d.Time.ISO,
	}
	if d.IAQI.PM25 != nil && d.IAQI.PM25.V.Valid {
		v := d.IAQI.PM25.V.Value
		obs.PM25 = &v
	}
	if d.IAQI.PM10 != nil && d.IAQI.PM10.V.Valid {
		v := d.IAQI.PM10.V.Value
		obs.PM10 = &v
	}
	return obs, nil
}

// toAQI rounds the reported index and saturates values too large for an int32,
// so an absurd index still classifies as Hazardous. Placeholders give 0.
func toAQI(n flexNumber) int {
	switch {
	case !n.Valid || math.IsNaN(n.Value) || n.Value <= 0:
		return 0
	case n.Value >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int(math.Round(n.Value))
	}
}

func toCoordinates(geo []flexNumber) (airquality.Coordinates, bool) {
	if len(geo) != 2 || !geo[0].Valid || !geo[1].Valid {
		return airquality.Coordinates{}, false
	}
	coords := airquality.Coordinates{Lat: geo[0].Value, Lon: geo[1].Value}
	return coords, coords.Valid()
}

// message renders the data field of an error envelope, which is usually a string.
func message(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

package airquality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// MinQueryLength is the shortest search text that triggers a provider lookup.
const MinQueryLength = 3

// StationProvider looks up stations and their latest observations.
type StationProvider interface {
	// SearchStations returns stations matching a free-text keyword.
	SearchStations(ctx context.Context, keyword string) ([]StationSuggestion, error)

	// FetchObservation returns the latest observation for a station.
	// It returns an error matching ErrStationNotFound on a non-success provider status.
	FetchObservation(ctx context.Context, stationID int) (*Observation, error)

	// Name returns the provider name for logging.
	Name() string
}

// ForecastProvider fetches raw PM2.5 forecast samples for a location.
type ForecastProvider interface {
	FetchPM25Forecast(ctx context.Context, coords Coordinates) ([]PM25Sample, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Stations provides station search and live observations.
	Stations StationProvider

	// Forecasts provides pollution forecasts.
	Forecasts ForecastProvider

	// Logger for service operations.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now). Forecast days are
	// filtered against its UTC date.
	Now func() time.Time
}

// Service resolves stations, fetches readings and aggregates forecasts.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	stations  StationProvider
	forecasts ForecastProvider
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		stations:  cfg.Stations,
		forecasts: cfg.Forecasts,
		logger:    cfg.Logger,
		now:       now,
	}
}

// ResolveStations returns station suggestions for a search query.
// Short queries return an empty list without calling the provider, and provider
// failures are logged and reported as no suggestions.
func (s *Service) ResolveStations(ctx context.Context, query string) []StationSuggestion {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []StationSuggestion{}
	}

	suggestions, err := s.stations.SearchStations(ctx, query)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("query", query).
			Str("provider", s.stations.Name()).
			Msg("station search failed")
		return []StationSuggestion{}
	}
	if suggestions == nil {
		return []StationSuggestion{}
	}
	return suggestions
}

// FetchReading returns the current reading for a station. name is the station or
// city the caller selected and is used in not-found errors.
func (s *Service) FetchReading(ctx context.Context, stationID int, name string) (*Reading, error) {
	if stationID <= 0 {
		return nil, ErrInvalidStationID
	}

	obs, err := s.stations.FetchObservation(ctx, stationID)
	if err != nil {
		if errors.Is(err, ErrStationNotFound) {
			display := name
			if display == "" {
				display = fmt.Sprintf("station %d", stationID)
			}
			return nil, &StationNotFoundError{StationID: stationID, Name: display, Reason: reason(err)}
		}

		s.logger.Error().
			Err(err).
			Int("station_id", stationID).
			Str("provider", s.stations.Name()).
			Msg("failed to fetch station observation")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	return NewReading(stationID, name, obs), nil
}

// Forecast returns up to MaxForecastDays strictly future days of derived AQI.
func (s *Service) Forecast(ctx context.Context, coords Coordinates) ([]ForecastDay, error) {
	if !coords.Valid() {
		return nil, ErrInvalidCoordinates
	}

	samples, err := s.forecasts.FetchPM25Forecast(ctx, coords)
	if err != nil {
		s.logger.Error().
			Err(err).
			Float64("lat", coords.Lat).
			Float64("lon", coords.Lon).
			Str("provider", s.forecasts.Name()).
			Msg("failed to fetch pollution forecast")
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	days := AggregateForecast(samples, s.now())

	s.logger.Debug().
		Int("samples", len(samples)).
		Int("days", len(days)).
		Msg("forecast aggregated")

	return days, nil
}

// Dashboard fetches the reading for a selection and then the forecast for the
// reading's coordinates. Any failure aborts the whole request.
func (s *Service) Dashboard(ctx context.Context, sel Selection) (*Dashboard, error) {
	stationID, name := sel.StationID, sel.Name

	if stationID <= 0 {
		query := strings.TrimSpace(sel.Query)
		if query == "" {
			return nil, ErrEmptySelection
		}

		suggestions := s.ResolveStations(ctx, query)
		if len(suggestions) == 0 {
			return nil, &StationNotFoundError{Name: query, Reason: "no matching stations"}
		}
		stationID, name = suggestions[0].ID, suggestions[0].Name
	}

	reading, err := s.FetchReading(ctx, stationID, name)
	if err != nil {
		return nil, err
	}

	forecast, err := s.Forecast(ctx, reading.Coordinates)
	if err != nil {
		return nil, err
	}

	return &Dashboard{Reading: reading, Forecast: forecast}, nil
}

// reason extracts the provider message from a wrapped not-found error.
func reason(err error) string {
	msg := err.Error()
	prefix := ErrStationNotFound.Error()
	msg = strings.TrimPrefix(msg, prefix)
	return strings.TrimPrefix(msg, ": ")
}

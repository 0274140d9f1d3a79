// Package airquality provides station lookup, current readings, AQI classification
// and short-term forecasts for the dashboard.
package airquality

import (
	"errors"
	"fmt"
	"time"
)

// Provider errors.
var (
	ErrStationNotFound     = errors.New("station not found")
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrInvalidStationID    = errors.New("invalid station id")
	ErrEmptySelection      = errors.New("station id or search query required")
)

// StationNotFoundError is returned when the provider reports a non-success status
// for a station. Name is the station or city the caller asked for.
type StationNotFoundError struct {
	StationID int
	Name      string
	Reason    string
}

func (e *StationNotFoundError) Error() string {
	msg := fmt.Sprintf("could not find air quality data for %s", e.Name)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports ErrStationNotFound as a match so callers can use errors.Is.
func (e *StationNotFoundError) Is(target error) bool {
	return target == ErrStationNotFound
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinates are within lat/lon ranges.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// StationSuggestion is a candidate monitoring station returned by a search.
type StationSuggestion struct {
	ID          int
	Name        string
	Coordinates Coordinates
}

// Observation is the raw latest measurement as reported by a station feed.
// PM25 and PM10 are nil when the provider omits them.
type Observation struct {
	City        string
	AQI         int
	PM25        *float64
	PM10        *float64
	Coordinates Coordinates
	ObservedAt  string
}

// Reading is the normalized current air quality for a station.
type Reading struct {
	StationID   int
	City        string
	AQI         int
	PM25        float64
	PM10        float64
	Coordinates Coordinates
	Category    Category
	Advisory    string

	// ObservedAt is the provider's ISO-8601 observation time, passed through as-is.
	ObservedAt string
}

// PM25Sample is a single forecast sample from the pollution provider.
type PM25Sample struct {
	Time time.Time
	PM25 float64
}

// ForecastDay is the derived AQI for one calendar day.
type ForecastDay struct {
	Date string // YYYY-MM-DD
	AQI  int
}

// Dashboard bundles a reading with the forecast for its coordinates.
type Dashboard struct {
	Reading  *Reading
	Forecast []ForecastDay
}

// Selection identifies what the dashboard should show. StationID wins when set;
// otherwise Query is resolved and its first suggestion is used.
type Selection struct {
	StationID int
	Name      string
	Query     string
}

// NewReading builds a Reading from a provider observation. The category and
// advisory are always derived from the numeric index.
func NewReading(stationID int, name string, obs *Observation) *Reading {
	city := obs.City
	if city == "" {
		city = name
	}

	aqi := obs.AQI
	if aqi < 0 {
		aqi = 0
	}

	category := Classify(aqi)
	return &Reading{
		StationID:   stationID,
		City:        city,
		AQI:         aqi,
		PM25:        valueOrZero(obs.PM25),
		PM10:        valueOrZero(obs.PM10),
		Coordinates: obs.Coordinates,
		Category:    category,
		Advisory:    category.Advisory(),
		ObservedAt:  obs.ObservedAt,
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

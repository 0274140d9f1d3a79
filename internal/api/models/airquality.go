package models

// StationSuggestion is a candidate station for a search query.
type StationSuggestion struct {
	StationID int    `json:"stationId"`
	Name      string `json:"name"`
	Point     Point  `json:"point"`
}

// StationList is the response for a station search. Items is never null.
type StationList struct {
	Query string              `json:"query"`
	Items []StationSuggestion `json:"items"`
}

// Reading is the current air quality at a station.
type Reading struct {
	StationID  int     `json:"stationId"`
	City       string  `json:"city"`
	AQI        int     `json:"aqi"`
	PM25       float64 `json:"pm25"`
	PM10       float64 `json:"pm10"`
	Point      Point   `json:"point"`
	Category   string  `json:"category"`
	Advisory   string  `json:"advisory"`
	ObservedAt string  `json:"observedAt,omitempty"`
}

// ForecastDay is the derived AQI for one future UTC day.
type ForecastDay struct {
	Date     string `json:"date"`
	AQI      int    `json:"aqi"`
	Category string `json:"category"`
}

// Forecast is the response for a forecast request. Days is empty, not null, when
// no forecast is available.
type Forecast struct {
	Point Point         `json:"point"`
	Days  []ForecastDay `json:"days"`
}

// Dashboard bundles the current reading with its forecast.
type Dashboard struct {
	Reading  Reading       `json:"reading"`
	Forecast []ForecastDay `json:"forecast"`
}

// CategoryInfo describes one AQI severity band. Max is omitted for the unbounded top band.
type CategoryInfo struct {
	Name     string `json:"name"`
	Min      int    `json:"min"`
	Max      *int   `json:"max,omitempty"`
	Advisory string `json:"advisory"`
}

// CategoryList is the ordered list of severity bands.
type CategoryList struct {
	Items []CategoryInfo `json:"items"`
}

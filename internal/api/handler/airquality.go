// Package handler provides HTTP handlers for the airglance API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/api/middleware"
	"github.com/airglance/airglance/internal/api/models"
	"github.com/airglance/airglance/internal/api/response"
)

// upstreamFailureDetail is the only description of a provider failure sent to clients.
const upstreamFailureDetail = "Failed to fetch air quality data. Please try again."

// AirQualityService is the subset of airquality.Service used by the handlers.
type AirQualityService interface {
	ResolveStations(ctx context.Context, query string) []airquality.StationSuggestion
	FetchReading(ctx context.Context, stationID int, name string) (*airquality.Reading, error)
	Forecast(ctx context.Context, coords airquality.Coordinates) ([]airquality.ForecastDay, error)
	Dashboard(ctx context.Context, sel airquality.Selection) (*airquality.Dashboard, error)
}

// AirQualityHandler handles station, reading, forecast and dashboard endpoints.
type AirQualityHandler struct {
	service  AirQualityService
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(service AirQualityService, logger zerolog.Logger) *AirQualityHandler {
	return &AirQualityHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

// coordinatesQuery is the validated form of ?lat=&lon=.
type coordinatesQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

// SearchStations handles GET /v1/stations?q= - station suggestions for free text.
// Short queries and provider failures both produce an empty list.
func (h *AirQualityHandler) SearchStations(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	suggestions := h.service.ResolveStations(r.Context(), query)

	items := make([]models.StationSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		items = append(items, models.StationSuggestion{
			StationID: s.ID,
			Name:      s.Name,
			Point:     toPoint(s.Coordinates),
		})
	}

	response.JSON(w, r, http.StatusOK, models.StationList{Query: query, Items: items})
}

// GetReading handles GET /v1/stations/{stationId}/reading - current reading for a station.
func (h *AirQualityHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	stationID, ok := parseStationID(chi.URLParam(r, "stationId"))
	if !ok {
		response.BadRequest(w, r, "stationId must be a positive integer", []models.FieldError{
			{Field: "stationId", Message: "must be a positive integer", Code: "invalid"},
		})
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))

	reading, err := h.service.FetchReading(r.Context(), stationID, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toReading(reading))
}

// GetForecast handles GET /v1/forecast?lat=&lon= - derived AQI for the next days.
func (h *AirQualityHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	coords, fieldErrs := h.parseCoordinates(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "lat and lon must be valid coordinates", fieldErrs)
		return
	}

	days, err := h.service.Forecast(r.Context(), coords)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.Forecast{
		Point: toPoint(coords),
		Days:  toForecastDays(days),
	})
}

// GetDashboard handles GET /v1/dashboard - reading and forecast in one payload.
// ?station= selects a station directly; otherwise ?q= is resolved to its first match.
func (h *AirQualityHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	sel := airquality.Selection{
		Name:  strings.TrimSpace(params.Get("name")),
		Query: strings.TrimSpace(params.Get("q")),
	}

	if raw := params.Get("station"); raw != "" {
		id, ok := parseStationID(raw)
		if !ok {
			response.BadRequest(w, r, "station must be a positive integer", []models.FieldError{
				{Field: "station", Message: "must be a positive integer", Code: "invalid"},
			})
			return
		}
		sel.StationID = id
	}

	dashboard, err := h.service.Dashboard(r.Context(), sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.Dashboard{
		Reading:  toReading(dashboard.Reading),
		Forecast: toForecastDays(dashboard.Forecast),
	})
}

// writeError maps service errors to problem responses. Provider failures are
// logged with their cause and reported with a generic message.
func (h *AirQualityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *airquality.StationNotFoundError

	switch {
	case errors.As(err, &notFound):
		response.NotFound(w, r, notFound.Error())
	case errors.Is(err, airquality.ErrInvalidStationID):
		response.BadRequest(w, r, "stationId must be a positive integer", []models.FieldError{
			{Field: "stationId", Message: "must be a positive integer", Code: "invalid"},
		})
	case errors.Is(err, airquality.ErrInvalidCoordinates):
		response.BadRequest(w, r, "lat and lon must be valid coordinates", nil)
	case errors.Is(err, airquality.ErrEmptySelection):
		response.BadRequest(w, r, "a station or search query is required", []models.FieldError{
			{Field: "q", Message: "is required when station is not set", Code: "required"},
		})
	case errors.Is(err, airquality.ErrProviderUnavailable):
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("air quality provider request failed")
		response.BadGateway(w, r, upstreamFailureDetail)
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("unexpected error")
		response.InternalError(w, r, "An unexpected error occurred")
	}
}

// parseCoordinates reads ?lat=&lon= and validates their ranges.
func (h *AirQualityHandler) parseCoordinates(r *http.Request) (airquality.Coordinates, []models.FieldError) {
	params := r.URL.Query()

	var q coordinatesQuery
	var fieldErrs []models.FieldError

	for _, p := range []struct {
		name string
		dst  **float64
	}{
		{"lat", &q.Lat},
		{"lon", &q.Lon},
	} {
		raw := strings.TrimSpace(params.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: p.name, Message: "must be a number", Code: "invalid"})
			continue
		}
		*p.dst = &v
	}
	if len(fieldErrs) > 0 {
		return airquality.Coordinates{}, fieldErrs
	}

	if err := h.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return airquality.Coordinates{}, []models.FieldError{{Field: "lat", Message: err.Error(), Code: "invalid"}}
		}
		for _, fe := range verrs {
			fieldErrs = append(fieldErrs, toFieldError(fe))
		}
		return airquality.Coordinates{}, fieldErrs
	}

	return airquality.Coordinates{Lat: *q.Lat, Lon: *q.Lon}, nil
}

func toFieldError(fe validator.FieldError) models.FieldError {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return models.FieldError{Field: field, Message: "is required", Code: "required"}
	case "gte", "lte":
		return models.FieldError{Field: field, Message: "is out of range", Code: "out_of_range"}
	default:
		return models.FieldError{Field: field, Message: "is invalid", Code: "invalid"}
	}
}

func parseStationID(raw string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toPoint(c airquality.Coordinates) models.Point {
	return models.Point{Lat: c.Lat, Lon: c.Lon}
}

func toReading(r *airquality.Reading) models.Reading {
	return models.Reading{
		StationID:  r.StationID,
		City:       r.City,
		AQI:        r.AQI,
		PM25:       r.PM25,
		PM10:       r.PM10,
		Point:      toPoint(r.Coordinates),
		Category:   r.Category.String(),
		Advisory:   r.Advisory,
		ObservedAt: r.ObservedAt,
	}
}

func toForecastDays(days []airquality.ForecastDay) []models.ForecastDay {
	out := make([]models.ForecastDay, 0, len(days))
	for _, d := range days {
		out = append(out, models.ForecastDay{
			Date:     d.Date,
			AQI:      d.AQI,
			Category: airquality.Classify(d.AQI).String(),
		})
	}
	return out
}

package handler

import (
	"net/http"
	"time"

	"github.com/airglance/airglance/internal/api/models"
	"github.com/airglance/airglance/internal/api/response"
	"github.com/airglance/airglance/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. registry may be nil, in which case no
// providers are reported.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while any
// provider circuit is open, since every dashboard request needs both providers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	var open []string
	if h.registry != nil {
		open = h.registry.OpenCircuits()
	}

	if len(open) > 0 {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.NewTimestamp(h.now()),
			Details: map[string]interface{}{"openCircuits": open},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider health from the resilience registry.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	var health []resilience.ProviderHealth
	if h.registry != nil {
		health = h.registry.Snapshot()
	}

	overall := models.HealthStatusOK
	providers := make([]models.ProviderStatus, 0, len(health))
	for _, p := range health {
		ps := models.ProviderStatus{
			Provider:      p.Name,
			Status:        conditionStatus[p.Condition()],
			CircuitState:  p.CircuitState.String(),
			Requests:      p.Counts.Requests,
			Failures:      p.Counts.TotalFailures,
			StateChanges:  p.StateChanges,
			LastSuccessAt: models.TimestampPtr(p.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(p.LastFailureAt),
			OpenedAt:      models.TimestampPtr(p.OpenedAt),
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		providers = append(providers, ps)

		overall = overall.Worse(ps.Status)
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:    overall,
		Time:      models.NewTimestamp(h.now()),
		Providers: providers,
	})
}

var conditionStatus = map[resilience.Condition]models.HealthStatus{
	resilience.ConditionUp:       models.HealthStatusOK,
	resilience.ConditionDegraded: models.HealthStatusDegraded,
	resilience.ConditionDown:     models.HealthStatusFail,
}

package handler

import (
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/service"
	"github.com/rs/zerolog/log"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including session store connectivity
func ReadyCheck(gateway *service.GatewayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := gateway.Ready(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			response.Error(w, http.StatusServiceUnavailable, "session store not ready")
			return
		}

		response.OK(w, status)
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/Rrens/policy-assistant/internal/service"
)

// ProxyHandler forwards document-management calls to the AI service
type ProxyHandler struct {
	gateway *service.GatewayService
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler(gateway *service.GatewayService) *ProxyHandler {
	return &ProxyHandler{gateway: gateway}
}

// LoadDocuments triggers indexing and returns the AI service's body unchanged
func (h *ProxyHandler) LoadDocuments(w http.ResponseWriter, r *http.Request) {
	raw, err := h.gateway.LoadDocuments(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to load documents")
		return
	}

	response.Raw(w, http.StatusOK, raw)
}

// BatchQuery relays several questions at once
func (h *ProxyHandler) BatchQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.gateway.BatchQuery(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Batch query failed")
		return
	}

	response.OK(w, resp)
}

// Stats returns the AI service's index statistics
func (h *ProxyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	raw, err := h.gateway.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch stats")
		return
	}

	response.Raw(w, http.StatusOK, raw)
}

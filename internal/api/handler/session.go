package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/Rrens/policy-assistant/internal/service"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles chat session endpoints
type SessionHandler struct {
	gateway *service.GatewayService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(gateway *service.GatewayService) *SessionHandler {
	return &SessionHandler{gateway: gateway}
}

// Initiate creates a new session
func (h *SessionHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.gateway.InitiateSession(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to create session")
		return
	}

	response.OK(w, map[string]string{
		"message":   "Chat session successfully initiated.",
		"sessionId": sessionID,
	})
}

// Validate reports whether a session is still alive. An unknown session is {valid:false}
// with status 200.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, "No sessionId provided")
		return
	}

	valid, err := h.gateway.ValidateSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to validate session")
		return
	}

	response.OK(w, map[string]bool{"valid": valid})
}

// Get returns the stored session record
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, err := h.gateway.GetSession(r.Context(), sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		response.NotFound(w, "Session not found")
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "Failed to load session")
		return
	}

	response.OK(w, session)
}

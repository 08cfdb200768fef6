package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/Rrens/policy-assistant/internal/service"
	"github.com/rs/zerolog/log"
)

// ChatHandler relays chat messages to the AI service
type ChatHandler struct {
	gateway   *service.GatewayService
	maxMemory int64
}

// NewChatHandler creates a new chat handler
func NewChatHandler(gateway *service.GatewayService, maxMemory int64) *ChatHandler {
	return &ChatHandler{gateway: gateway, maxMemory: maxMemory}
}

// Send relays one message and its documents. Relay failures are reported as status 500 with an
// ai_response body rather than an error body.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	req := domain.ChatRequest{
		SessionID: r.FormValue("sessionId"),
		Chat:      r.FormValue("chat"),
	}
	if r.MultipartForm != nil {
		req.Documents = r.MultipartForm.File["documents"]
		req.UploadedFiles = r.MultipartForm.Value["uploadedFiles"]
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.gateway.SendChat(r.Context(), req)
	if errors.Is(err, domain.ErrValidation) {
		response.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("chat relay failed")
		response.JSON(w, http.StatusInternalServerError, map[string]string{"ai_response": domain.AIFailure})
		return
	}

	response.OK(w, resp)
}

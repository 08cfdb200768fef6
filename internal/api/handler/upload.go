package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/response"
	"github.com/Rrens/policy-assistant/internal/service"
)

// UploadHandler handles file upload endpoints
type UploadHandler struct {
	gateway   *service.GatewayService
	maxMemory int64
}

// NewUploadHandler creates a new upload handler. maxMemory bounds how much of a multipart body
// is held in memory before spilling to disk.
func NewUploadHandler(gateway *service.GatewayService, maxMemory int64) *UploadHandler {
	return &UploadHandler{gateway: gateway, maxMemory: maxMemory}
}

type uploadForm struct {
	File      *multipart.FileHeader `form:"file" validate:"required"`
	SessionID string                `form:"sessionId" validate:"required"`
}

// Upload stores one file in the temp directory
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form := uploadForm{SessionID: r.FormValue("sessionId")}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			form.File = files[0]
		}
	}

	if err := validate.Struct(form); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	upload, err := h.gateway.Upload(r.Context(), form.SessionID, form.File)
	if err != nil {
		writeServiceError(w, r, err, "Upload failed")
		return
	}

	response.OK(w, map[string]string{
		"message":  "File uploaded successfully",
		"filename": upload.StoredName,
	})
}

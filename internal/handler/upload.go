package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/vind/internal/service"
)

// UploadHandler hands out direct upload slots and tracks their publishing.
type UploadHandler struct {
	uploads  *service.UploadService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewUploadHandler(uploads *service.UploadService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, validate: newValidator(), logger: logger}
}

// HandleCreate opens a direct upload. The client PUTs the file bytes to
// upload_url itself.
//
// HTTP: POST /api/upload
func (h *UploadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	u, err := h.uploads.CreateUpload(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"upload_id":  u.ID,
		"upload_url": u.URL,
	})
}

// HandleStatus reads an upload's state once.
//
// HTTP: GET /api/upload/{uploadId}
func (h *UploadHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	u, err := h.uploads.GetUpload(r.Context(), chi.URLParam(r, "uploadId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type publishRequest struct {
	Description string `json:"description"`
}

// HandlePublish queues the upload to become the caller's video once the
// provider reports it playable. It answers 202 with the job; clients poll
// HandlePublishStatus.
//
// HTTP: POST /api/upload/{uploadId}/publish
func (h *UploadHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req publishRequest
	if err := decodeJSON(r, h.validate, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	job, err := h.uploads.Publish(r.Context(), chi.URLParam(r, "uploadId"), id.Username, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// HandlePublishStatus returns the caller's publish job for an upload.
//
// HTTP: GET /api/upload/{uploadId}/publish
func (h *UploadHandler) HandlePublishStatus(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	job, err := h.uploads.PublishStatus(r.Context(), chi.URLParam(r, "uploadId"), id.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleAsset reads an asset once.
//
// HTTP: GET /api/assets/{assetId}
func (h *UploadHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.uploads.GetAsset(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          a.ID,
		"status":      a.Status,
		"playback_id": a.PlaybackID(),
		"duration":    a.Duration,
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/vind/internal/apperror"
	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/service"
)

// VideoHandler serves the feed and everything hanging off a single video:
// likes, saves, shares and comments. The acting user always comes from the
// session token, never from the request body.
type VideoHandler struct {
	feed       *service.FeedService
	engagement *service.EngagementService
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewVideoHandler(feed *service.FeedService, engagement *service.EngagementService, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		feed:       feed,
		engagement: engagement,
		validate:   newValidator(),
		logger:     logger,
	}
}

// viewer is the username of the caller, or "" for anonymous requests.
func viewer(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.Username
}

// HandleList returns one page of the feed.
//
// HTTP: GET /api/videos?page=1&limit=10&search=cats
func (h *VideoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("page", "page must be a number"))
		return
	}
	limit, err := intParam(q.Get("limit"), service.DefaultPageSize)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("limit", "limit must be a number"))
		return
	}

	res, err := h.feed.ListVideos(r.Context(), service.FeedQuery{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Viewer: viewer(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

type createVideoRequest struct {
	Description string `json:"description"`
	PlaybackID  string `json:"playback_id" validate:"max=128"`
	AssetID     string `json:"asset_id" validate:"max=128"`
	Thumbnail   string `json:"thumbnail" validate:"omitempty,url"`
}

// HandleCreate publishes a video for the caller.
//
// HTTP: POST /api/videos
func (h *VideoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req createVideoRequest
	if err := decodeJSON(r, h.validate, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	video, err := h.feed.CreateVideo(r.Context(), model.VideoDraft{
		Username:    id.Username,
		Description: req.Description,
		PlaybackID:  req.PlaybackID,
		AssetID:     req.AssetID,
		Thumbnail:   req.Thumbnail,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, video)
}

// HandleGet returns one video with the caller's flags.
//
// HTTP: GET /api/videos/{videoId}
func (h *VideoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	videoID, err := videoIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	item, err := h.feed.GetVideo(r.Context(), videoID, viewer(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleSaved lists the caller's saved videos.
//
// HTTP: GET /api/videos/saved
func (h *VideoHandler) HandleSaved(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	videos, err := h.engagement.ListSaved(r.Context(), id.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "videos": videos})
}

// HandleLike toggles the caller's like.
//
// HTTP: POST /api/videos/{videoId}/like
func (h *VideoHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	id, videoID, ok := h.actor(w, r)
	if !ok {
		return
	}
	state, err := h.engagement.ToggleLike(r.Context(), videoID, id.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"isLiked": state.IsLiked,
		"likes":   state.Likes,
	})
}

type saveRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=save unsave"`
}

// HandleSave toggles the caller's save, or sets it explicitly when the body
// carries {"action": "save"|"unsave"}.
//
// HTTP: POST /api/videos/{videoId}/save
func (h *VideoHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, videoID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req saveRequest
	err := decodeJSON(r, h.validate, &req, true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var state *model.SaveState
	if req.Action == "" {
		state, err = h.engagement.ToggleSave(r.Context(), videoID, id.Username)
	} else {
		state, err = h.engagement.SetSaved(r.Context(), videoID, id.Username, req.Action == "save")
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isSaved": state.IsSaved})
}

// HandleShare bumps the share counter.
//
// HTTP: POST /api/videos/{videoId}/share
func (h *VideoHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	videoID, err := videoIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	shares, err := h.feed.Share(r.Context(), videoID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shares": shares})
}

// HandleListComments returns a video's comments, newest first.
//
// HTTP: GET /api/videos/{videoId}/comments
func (h *VideoHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	videoID, err := videoIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	comments, err := h.engagement.ListComments(r.Context(), videoID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "comments": comments})
}

type commentRequest struct {
	Text string `json:"text"`
}

// HandleAddComment posts a comment as the caller.
//
// HTTP: POST /api/videos/{videoId}/comments
func (h *VideoHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	id, videoID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, h.validate, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.engagement.AddComment(r.Context(), videoID, id.Username, req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "comment": c})
}

// HandleLikeComment toggles the caller's like on a comment.
//
// HTTP: POST /api/videos/{videoId}/comments/{commentId}/like
func (h *VideoHandler) HandleLikeComment(w http.ResponseWriter, r *http.Request) {
	id, videoID, ok := h.actor(w, r)
	if !ok {
		return
	}
	state, err := h.engagement.ToggleCommentLike(r.Context(), videoID, chi.URLParam(r, "commentId"), id.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"isLiked": state.IsLiked,
		"likes":   state.Likes,
	})
}

// actor resolves the caller and the {videoId} parameter, writing the error
// response itself when either is missing.
func (h *VideoHandler) actor(w http.ResponseWriter, r *http.Request) (auth.Identity, model.VideoID, bool) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return auth.Identity{}, "", false
	}
	videoID, err := videoIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return auth.Identity{}, "", false
	}
	return id, videoID, true
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/model"
	"github.com/sakif/vind/internal/service"
)

// UserHandler serves profile pages and follow/unfollow.
type UserHandler struct {
	profile   *service.ProfileService
	relations *service.RelationshipService
	logger    *slog.Logger
}

func NewUserHandler(profile *service.ProfileService, relations *service.RelationshipService, logger *slog.Logger) *UserHandler {
	return &UserHandler{profile: profile, relations: relations, logger: logger}
}

// HandleProfile returns a user's profile as seen by the caller.
//
// HTTP: GET /api/users/{username}?tab=videos|liked
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	tab := model.ProfileTab(r.URL.Query().Get("tab"))

	view, err := h.profile.ViewProfile(r.Context(), chi.URLParam(r, "username"), viewerID, tab)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleFollow makes the caller follow {username}.
//
// HTTP: POST /api/users/{username}/follow
func (h *UserHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.relations.Follow)
}

// HandleUnfollow removes the caller's follow of {username}.
//
// HTTP: DELETE /api/users/{username}/follow
func (h *UserHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.relations.Unfollow)
}

func (h *UserHandler) changeFollow(
	w http.ResponseWriter,
	r *http.Request,
	change func(ctx context.Context, followerID, targetUsername string) (*model.FollowState, error),
) {
	id, err := identity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	state, err := change(r.Context(), id.UserID, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"isFollowing": state.IsFollowing,
		"message":     state.Message,
	})
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/identity"
	"loyalty-points/internal/model"
)

// ProfileLookup returns a user's cached profile.
type ProfileLookup interface {
	Lookup(ctx context.Context, userID, token string) (*model.UserInfo, error)
}

// UserHandler serves cached user profiles.
type UserHandler struct {
	profiles ProfileLookup
}

// NewUserHandler creates a new UserHandler instance.
func NewUserHandler(profiles ProfileLookup) *UserHandler {
	return &UserHandler{profiles: profiles}
}

// Info handles GET /api/users/info/{userId}.
func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, r, badRequest("userId is required"))
		return
	}

	info, err := h.profiles.Lookup(r.Context(), userID, auth.TokenFromContext(r.Context()))
	if errors.Is(err, identity.ErrIdentityResolutionFailed) {
		writeMessage(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, info)
}

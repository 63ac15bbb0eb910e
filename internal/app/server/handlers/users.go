package handlers

import (
	"net/http"

	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/middleware"
)

type UserHandler struct {
	userSvc *services.UserService
	manager services.IManagerService
}

func NewUserHandler(u *services.UserService, manager services.IManagerService) *UserHandler {
	return &UserHandler{userSvc: u, manager: manager}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.List(r.Context())
	if err != nil {
		writeError(w, r, "user handler - list", err)
		return
	}
	writeJSON(w, http.StatusOK, toUsers(users))
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	users, err := h.userSvc.Search(r.Context(), r.URL.Query().Get("q"), userID)
	if err != nil {
		writeError(w, r, "user handler - search", err)
		return
	}
	writeJSON(w, http.StatusOK, toUsers(users))
}

// Online lists the profiles of users with a live connection.
func (h *UserHandler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.UsersByIDs(r.Context(), h.manager.OnlineUserIDs(r.Context()))
	if err != nil {
		writeError(w, r, "user handler - online", err)
		return
	}
	out := toUsers(users)
	for i := range out {
		out[i].IsOnline = true
	}
	writeJSON(w, http.StatusOK, out)
}

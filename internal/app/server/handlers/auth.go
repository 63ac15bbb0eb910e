package handlers

import (
	"net/http"

	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/logging"
	"github.com/arefin-aareef/talksy/pkg/middleware"
)

type AuthHandler struct {
	userSvc  *services.UserService
	tokenSvc *services.TokenService
}

func NewAuthHandler(u *services.UserService, t *services.TokenService) *AuthHandler {
	return &AuthHandler{userSvc: u, tokenSvc: t}
}

type authResponse struct {
	AccessToken string       `json:"accessToken"`
	User        userResponse `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "auth handler - register", err)
		return
	}
	user, err := h.userSvc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, "auth handler - register", err)
		return
	}
	h.issue(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, "auth handler - login", err)
		return
	}
	user, err := h.userSvc.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, "auth handler - login", err)
		return
	}
	h.issue(w, r, http.StatusOK, user)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	token, err := h.tokenSvc.GenerateToken(user.ID, user.Email)
	if err != nil {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "auth handler - generate token failed", logging.User(user.ID), logging.Err(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, status, authResponse{AccessToken: token, User: toUser(user)})
	logging.FromContext(r.Context()).InfoContext(r.Context(), "auth handler - token issued", logging.User(user.ID))
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	user, err := h.userSvc.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, "auth handler - profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	if err := h.userSvc.Logout(r.Context(), userID); err != nil {
		writeError(w, r, "auth handler - logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

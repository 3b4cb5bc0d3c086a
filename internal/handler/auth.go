package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/service"
)

type AuthHandler struct {
	authService   *service.AuthService
	clientSession func(http.Handler) http.Handler
	rateLimit     func(http.Handler) http.Handler
}

// NewAuthHandler builds the sign-in routes. Register and login issue a fresh
// client id; logout needs clientSession to resolve the caller's. rateLimit, when
// set, guards register and login per client address.
func NewAuthHandler(authService *service.AuthService, clientSession, rateLimit func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		clientSession: clientSession,
		rateLimit:     rateLimit,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.rateLimit != nil {
			r.Use(h.rateLimit)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	r.With(h.clientSession).Post("/logout", h.Logout)

	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	ClientID string         `json:"clientId"`
	Account  *model.Account `json:"account"`
}

// POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	clientID := service.NewClientID()
	account, err := h.authService.Register(r.Context(), clientID, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, signInResponse{ClientID: clientID, Account: account})
}

// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	clientID := service.NewClientID()
	account, err := h.authService.Login(r.Context(), clientID, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{ClientID: clientID, Account: account})
}

// POST /v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	if err := h.authService.Logout(r.Context(), session.ClientID()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

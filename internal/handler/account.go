package handler

import (
	"net/http"

	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/service"
)

// AccountHandler serves the signed-in student's own view of their account.
type AccountHandler struct {
	quotaService *service.QuotaService
}

func NewAccountHandler(quotaService *service.QuotaService) *AccountHandler {
	return &AccountHandler{quotaService: quotaService}
}

type sessionResponse struct {
	SignedIn bool                 `json:"signedIn"`
	Account  *model.Account       `json:"account,omitempty"`
	Quota    *service.QuotaStatus `json:"quota,omitempty"`
}

// GET /v1/session
func (h *AccountHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	account, err := session.Reconcile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if account == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	quota := h.quotaService.CheckLimit(account)
	writeJSON(w, http.StatusOK, sessionResponse{
		SignedIn: true,
		Account:  account,
		Quota:    &quota,
	})
}

type profileRequest struct {
	DisplayName string      `json:"displayName"`
	Institution string      `json:"institution"`
	Track       model.Track `json:"track"`
}

// PUT /v1/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session := middleware.GetSession(r.Context())
	account, err := session.CompleteProfile(r.Context(), model.ProfileParams{
		DisplayName: req.DisplayName,
		Institution: req.Institution,
		Track:       req.Track,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

// GET /v1/quota
func (h *AccountHandler) Quota(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	writeJSON(w, http.StatusOK, h.quotaService.CheckLimit(account))
}

package handler

import (
	"net/http"

	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/service"
)

type PaymentHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewPaymentHandler(subscriptionService *service.SubscriptionService) *PaymentHandler {
	return &PaymentHandler{subscriptionService: subscriptionService}
}

type paymentRequest struct {
	Plan           model.Plan `json:"plan"`
	TransactionRef string     `json:"transactionRef"`
}

// POST /v1/payments
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account := middleware.GetAccount(r.Context())
	created, err := h.subscriptionService.SubmitPaymentRequest(r.Context(), account, req.Plan, req.TransactionRef)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GET /v1/payments
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	requests, err := h.subscriptionService.ListForAccount(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

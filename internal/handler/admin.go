package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/service"
	"github.com/studydesk/account-core/internal/util"
)

// AdminHandler serves the admin screens. Routes assume RequireAccount and
// RequireAdmin already ran.
type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.Stats)

	// Students
	r.Get("/students", h.ListStudents)
	r.Post("/students/{id}/suspension", h.ToggleSuspension)

	// Payment requests
	r.Get("/payments", h.ListPayments)
	r.Post("/payments/{id}/approve", h.decide(model.PaymentStatusApproved))
	r.Post("/payments/{id}/reject", h.decide(model.PaymentStatusRejected))

	return r
}

// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.ComputeStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /admin/students
func (h *AdminHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	students, total, err := h.adminService.ListStudents(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(students, total, p))
}

// POST /admin/students/{id}/suspension
func (h *AdminHandler) ToggleSuspension(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	account, err := h.adminService.ToggleSuspension(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"changed": account != nil,
		"account": account,
	})
}

// GET /admin/payments
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	requests, total, err := h.adminService.ListPaymentRequests(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(requests, total, p))
}

// POST /admin/payments/{id}/approve, POST /admin/payments/{id}/reject
func (h *AdminHandler) decide(decision model.PaymentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := h.adminService.DecidePayment(r.Context(), id, decision)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"changed": req != nil,
			"request": req,
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !util.IsValidUUID(id) {
		writeError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return "", false
	}
	return id, true
}

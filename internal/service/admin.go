package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/audit"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/repository"
)

const newStudentWindow = 7 * 24 * time.Hour

type AdminService struct {
	store         repository.Store
	subscriptions *SubscriptionService
	publisher     notify.Publisher
	now           func() time.Time
}

func NewAdminService(store repository.Store, subscriptions *SubscriptionService, publisher notify.Publisher) *AdminService {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &AdminService{
		store:         store,
		subscriptions: subscriptions,
		publisher:     publisher,
		now:           time.Now,
	}
}

type Stats struct {
	TotalStudents        int `json:"totalStudents"`
	PremiumCount         int `json:"premiumCount"`
	TotalRevenue         int `json:"totalRevenue"`
	NewStudentsLast7Days int `json:"newStudentsLast7Days"`
}

// ComputeStats scans accounts and payment requests afresh on every call.
func (s *AdminService) ComputeStats(ctx context.Context) (*Stats, error) {
	accounts, err := s.store.Accounts().List(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.Payments().List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.Add(-newStudentWindow)
	stats := &Stats{}

	for _, account := range accounts {
		if account.IsAdmin() {
			continue
		}
		stats.TotalStudents++
		if account.HasActivePremium(now) {
			stats.PremiumCount++
		}
		if account.JoinedAt.After(since) {
			stats.NewStudentsLast7Days++
		}
	}

	for _, req := range payments {
		if req.Status == model.PaymentStatusApproved {
			stats.TotalRevenue += req.Amount
		}
	}

	return stats, nil
}

// ToggleSuspension flips the suspended flag of a student. An unknown id is logged
// and ignored, returning (nil, nil). Suspended sessions are signed out on their
// next reconcile.
func (s *AdminService) ToggleSuspension(ctx context.Context, accountID string) (*model.Account, error) {
	var toggled *model.Account
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		account, err := tx.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			log.Info().Str("accountId", accountID).Msg("suspension toggle for unknown account, ignoring")
			return nil
		}
		if account.IsAdmin() {
			return apperrors.Forbidden("Administrator accounts cannot be suspended")
		}

		account.Suspended = !account.Suspended
		if err := tx.Accounts().Upsert(ctx, account); err != nil {
			return err
		}
		toggled = account
		return nil
	})
	if err != nil || toggled == nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSuspensionToggle,
		AccountID: toggled.ID,
		Details:   map[string]interface{}{"suspended": toggled.Suspended},
	})

	reason := "unsuspended"
	if toggled.Suspended {
		reason = "suspended"
	}
	if err := s.publisher.Publish(ctx, notify.Event{
		Type:      notify.EventAccountChanged,
		AccountID: toggled.ID,
		Reason:    reason,
	}); err != nil {
		log.Warn().Err(err).Str("accountId", toggled.ID).Msg("failed to publish account change")
	}

	return toggled, nil
}

// DecidePayment approves or rejects a payment request. Requests that are missing or
// already decided are left alone and yield (nil, nil).
func (s *AdminService) DecidePayment(ctx context.Context, requestID string, decision model.PaymentStatus) (*model.PaymentRequest, error) {
	return s.subscriptions.DecidePayment(ctx, requestID, decision)
}

// ListStudents returns a page of student accounts, oldest first, and the total count.
func (s *AdminService) ListStudents(ctx context.Context, limit, offset int) ([]*model.Account, int, error) {
	accounts, err := s.store.Accounts().List(ctx)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	students := make([]*model.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.IsAdmin() {
			continue
		}
		effective, _ := account.Effective(now)
		students = append(students, effective)
	}
	return page(students, limit, offset), len(students), nil
}

// ListPaymentRequests returns a page of payment requests, newest first, and the total count.
func (s *AdminService) ListPaymentRequests(ctx context.Context, limit, offset int) ([]*model.PaymentRequest, int, error) {
	requests, err := s.store.Payments().List(ctx)
	if err != nil {
		return nil, 0, err
	}
	return page(requests, limit, offset), len(requests), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

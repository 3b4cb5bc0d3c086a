package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/audit"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/metrics"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/repository"
)

// unknownAccountName is snapshotted when the account has no display name yet.
const unknownAccountName = "Unknown"

type SubscriptionService struct {
	store     repository.Store
	publisher notify.Publisher
	now       func() time.Time
}

func NewSubscriptionService(store repository.Store, publisher notify.Publisher) *SubscriptionService {
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &SubscriptionService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// SubmitPaymentRequest records a pending claim of an out-of-band payment. It never
// grants premium by itself.
func (s *SubscriptionService) SubmitPaymentRequest(ctx context.Context, account *model.Account, plan model.Plan, transactionRef string) (*model.PaymentRequest, error) {
	if account == nil {
		return nil, apperrors.Unauthorized("Sign in to upgrade")
	}
	if !plan.Purchasable() {
		return nil, apperrors.InvalidInput("plan", "must be one_month or three_month")
	}
	transactionRef = strings.TrimSpace(transactionRef)
	if transactionRef == "" {
		return nil, apperrors.MissingRequired("transactionRef")
	}

	name := strings.TrimSpace(account.DisplayName)
	if name == "" {
		name = unknownAccountName
	}

	req := &model.PaymentRequest{
		ID:                     uuid.NewString(),
		AccountID:              account.ID,
		AccountEmail:           account.Email,
		AccountName:            name,
		Plan:                   plan,
		Amount:                 plan.Amount(),
		ExternalTransactionRef: transactionRef,
		Status:                 model.PaymentStatusPending,
		SubmittedAt:            s.now().UTC(),
	}
	if err := s.store.Payments().Insert(ctx, req); err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPaymentSubmit,
		AccountID: account.ID,
		Details: map[string]interface{}{
			"request_id": req.ID,
			"plan":       string(plan),
			"amount":     req.Amount,
		},
	})
	metrics.RecordPaymentEvent("submitted", string(plan))

	return req, nil
}

// DecidePayment moves a pending request to approved or rejected. Approval grants
// premium from now for the plan's calendar months, replacing any remaining time.
// The status and the account are written in one transaction. A request that is
// missing or no longer pending is logged and left alone, returning (nil, nil). An
// approval whose account is gone is still recorded; nobody is granted premium.
func (s *SubscriptionService) DecidePayment(ctx context.Context, requestID string, decision model.PaymentStatus) (*model.PaymentRequest, error) {
	if !decision.IsDecision() {
		return nil, apperrors.InvalidInput("decision", "must be approved or rejected")
	}

	var decided *model.PaymentRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		now := s.now().UTC()

		updated, err := tx.Payments().Update(ctx, requestID, func(req *model.PaymentRequest) error {
			if req.Status != model.PaymentStatusPending {
				return apperrors.PaymentAlreadyDecided(req.ID)
			}
			req.Status = decision
			req.DecidedAt = &now
			return nil
		})
		switch {
		case apperrors.HasCode(err, apperrors.ErrCodePaymentAlreadyDecided),
			apperrors.HasCode(err, apperrors.ErrCodeConflict):
			log.Info().Str("requestId", requestID).Msg("payment request already decided, ignoring")
			return nil
		case err != nil:
			return err
		case updated == nil:
			log.Info().Str("requestId", requestID).Msg("payment request not found, ignoring")
			return nil
		}

		if decision == model.PaymentStatusApproved {
			if err := grantPremium(ctx, tx, updated, now); err != nil {
				return err
			}
		}
		decided = updated
		return nil
	})
	if err != nil || decided == nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPaymentDecide,
		AccountID: decided.AccountID,
		Details: map[string]interface{}{
			"request_id": decided.ID,
			"decision":   string(decision),
			"plan":       string(decided.Plan),
			"amount":     decided.Amount,
		},
	})
	metrics.RecordPaymentEvent(string(decision), string(decided.Plan))
	s.announce(ctx, decided.AccountID, "payment_"+string(decision))

	return decided, nil
}

func grantPremium(ctx context.Context, tx repository.Store, req *model.PaymentRequest, now time.Time) error {
	account, err := tx.Accounts().FindByID(ctx, req.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		log.Warn().
			Str("requestId", req.ID).
			Str("accountId", req.AccountID).
			Msg("approved payment references a missing account, no premium granted")
		return nil
	}
	if account.IsAdmin() {
		return nil
	}

	expiresAt := req.Plan.ExpiresAt(now)
	account.IsPremium = true
	account.PremiumPlan = req.Plan
	account.PremiumExpiresAt = &expiresAt
	return tx.Accounts().Upsert(ctx, account)
}

// EnsureCurrent persists the lapsed-premium correction when the stored record
// still claims premium past its expiry, and returns the effective account. The
// correction is applied to a fresh read so fields changed elsewhere survive.
func (s *SubscriptionService) EnsureCurrent(ctx context.Context, account *model.Account, source string) (*model.Account, error) {
	if !account.PremiumLapsed(s.now()) {
		return account.Clone(), nil
	}

	var effective *model.Account
	corrected := false
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		stored, err := tx.Accounts().FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			effective, _ = account.Effective(s.now())
			return nil
		}

		var changed bool
		effective, changed = stored.Effective(s.now())
		if !changed {
			return nil
		}
		corrected = true
		return tx.Accounts().Upsert(ctx, effective)
	})
	if err != nil {
		return nil, err
	}
	if !corrected {
		return effective, nil
	}

	log.Info().
		Str("accountId", account.ID).
		Str("source", source).
		Msg("lapsed premium cleared")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventPremiumLapsed,
		AccountID: account.ID,
		Details:   map[string]interface{}{"source": source},
	})
	metrics.RecordPremiumLapse(source)

	return effective, nil
}

// SweepLapsed clears lapsed premium on every stored account and returns how many
// records it corrected.
func (s *SubscriptionService) SweepLapsed(ctx context.Context) (int64, error) {
	accounts, err := s.store.Accounts().List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var corrected int64
	for _, account := range accounts {
		if !account.PremiumLapsed(now) {
			continue
		}
		if _, err := s.EnsureCurrent(ctx, account, "sweep"); err != nil {
			return corrected, err
		}
		corrected++
		s.announce(ctx, account.ID, "premium_lapsed")
	}
	return corrected, nil
}

func (s *SubscriptionService) ListForAccount(ctx context.Context, accountID string) ([]*model.PaymentRequest, error) {
	return s.store.Payments().ListByAccount(ctx, accountID)
}

func (s *SubscriptionService) announce(ctx context.Context, accountID, reason string) {
	err := s.publisher.Publish(ctx, notify.Event{
		Type:      notify.EventAccountChanged,
		AccountID: accountID,
		Reason:    reason,
	})
	if err != nil {
		log.Warn().Err(err).Str("accountId", accountID).Msg("failed to publish account change")
	}
}

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
	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/util"
)

type AuthService struct {
	store         repository.Store
	sessions      *SessionRegistry
	subscriptions *SubscriptionService
	quota         *QuotaService
	credentials   util.CredentialChecker
	limiter       LoginLimiter
	now           func() time.Time
}

func NewAuthService(
	store repository.Store,
	sessions *SessionRegistry,
	subscriptions *SubscriptionService,
	quota *QuotaService,
	credentials util.CredentialChecker,
	limiter LoginLimiter,
) *AuthService {
	if credentials == nil {
		credentials = util.PlainCredentials{}
	}
	return &AuthService{
		store:         store,
		sessions:      sessions,
		subscriptions: subscriptions,
		quota:         quota,
		credentials:   credentials,
		limiter:       limiter,
		now:           time.Now,
	}
}

func validateCredentials(email, secret string) error {
	if strings.TrimSpace(email) == "" {
		return apperrors.MissingRequired("email")
	}
	if !util.IsValidEmail(email) {
		return apperrors.InvalidInput("email", "not a valid address")
	}
	if secret == "" {
		return apperrors.MissingRequired("password")
	}
	return nil
}

// Register creates a free student account and signs it in on clientID.
func (s *AuthService) Register(ctx context.Context, clientID, email, secret string) (*model.Account, error) {
	if err := validateCredentials(email, secret); err != nil {
		return nil, err
	}
	email = model.NormalizeEmail(email)

	existing, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.RecordAuthAttempt("register", false)
		return nil, apperrors.DuplicateAccount()
	}

	sealed, err := s.credentials.Seal(secret)
	if err != nil {
		return nil, apperrors.Internal("failed to seal credential").WithCause(err)
	}

	now := s.now().UTC()
	account := &model.Account{
		ID:               uuid.NewString(),
		Email:            email,
		CredentialSecret: sealed,
		Role:             model.RoleStudent,
		PremiumPlan:      model.PlanNone,
		UsedToday:        0,
		UsageDate:        s.quota.Today(),
		JoinedAt:         now,
	}
	if err := s.store.Accounts().Upsert(ctx, account); err != nil {
		metrics.RecordAuthAttempt("register", false)
		return nil, err
	}

	if err := s.sessions.For(clientID).Install(ctx, account); err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{Type: audit.EventRegister, ClientID: clientID, AccountID: account.ID})
	metrics.RecordAuthAttempt("register", true)

	return account, nil
}

// Login signs the matching account in on clientID. Suspension is checked before
// anything is written; lapsed premium is cleared and persisted on success.
func (s *AuthService) Login(ctx context.Context, clientID, email, secret string) (*model.Account, error) {
	email = model.NormalizeEmail(email)
	if email == "" || secret == "" {
		return nil, apperrors.InvalidCredentials()
	}

	if s.limiter != nil && !s.limiter.Allowed(ctx, email) {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventRateLimitExceed,
			ClientID: clientID,
			Details:  map[string]interface{}{"email": util.MaskEmail(email)},
		})
		return nil, apperrors.RateLimitExceeded()
	}

	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil || !s.credentials.Matches(account.CredentialSecret, secret) {
		if s.limiter != nil {
			s.limiter.RecordFailure(ctx, email)
		}
		audit.Log(ctx, audit.Event{
			Type:     audit.EventLoginFailure,
			ClientID: clientID,
			Details:  map[string]interface{}{"email": util.MaskEmail(email)},
		})
		metrics.RecordAuthAttempt("login", false)
		return nil, apperrors.InvalidCredentials()
	}

	if account.Suspended {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventLoginFailure,
			ClientID:  clientID,
			AccountID: account.ID,
			Details:   map[string]interface{}{"reason": "suspended"},
		})
		metrics.RecordAuthAttempt("login", false)
		return nil, apperrors.AccountSuspended()
	}

	current, err := s.subscriptions.EnsureCurrent(ctx, account, "login")
	if err != nil {
		return nil, err
	}

	if err := s.sessions.For(clientID).Install(ctx, current); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		s.limiter.Reset(ctx, email)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventLoginSuccess, ClientID: clientID, AccountID: current.ID})
	metrics.RecordAuthAttempt("login", true)

	return current, nil
}

// Logout clears the session pointer of clientID. Accounts are untouched.
func (s *AuthService) Logout(ctx context.Context, clientID string) error {
	ptr, err := s.store.Sessions().Get(ctx, clientID)
	if err != nil {
		return err
	}
	if err := s.sessions.For(clientID).Terminate(ctx); err != nil {
		return err
	}

	event := audit.Event{Type: audit.EventLogout, ClientID: clientID}
	if ptr != nil {
		event.AccountID = ptr.AccountID
	}
	audit.Log(ctx, event)
	return nil
}

// SeedAdmin provisions the administrator out of band. It is idempotent: an existing
// admin with the email keeps its id and gets the configured secret.
func (s *AuthService) SeedAdmin(ctx context.Context, email, secret string) (*model.Account, error) {
	if err := validateCredentials(email, secret); err != nil {
		return nil, err
	}
	email = model.NormalizeEmail(email)

	sealed, err := s.credentials.Seal(secret)
	if err != nil {
		return nil, apperrors.Internal("failed to seal credential").WithCause(err)
	}

	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	switch {
	case account == nil:
		now := s.now().UTC()
		account = &model.Account{
			ID:          uuid.NewString(),
			Email:       email,
			Role:        model.RoleAdmin,
			DisplayName: "Administrator",
			UsageDate:   s.quota.Today(),
			JoinedAt:    now,
		}
	case !account.IsAdmin():
		return nil, apperrors.Conflict("A student account already uses the admin email")
	}

	account.CredentialSecret = sealed
	account.IsPremium = true
	account.PremiumPlan = model.PlanNone
	account.PremiumExpiresAt = nil
	account.Suspended = false
	if err := s.store.Accounts().Upsert(ctx, account); err != nil {
		return nil, err
	}

	log.Info().Str("accountId", account.ID).Str("email", util.MaskEmail(email)).Msg("admin account seeded")
	audit.Log(ctx, audit.Event{Type: audit.EventAdminSeed, AccountID: account.ID})

	return account, nil
}

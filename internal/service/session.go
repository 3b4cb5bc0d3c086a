package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/audit"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/repository"
)

// AccountWatcher delivers change notifications for one account.
type AccountWatcher interface {
	Subscribe(accountID string) *notify.Subscription
	Unsubscribe(sub *notify.Subscription)
}

// NewClientID issues the identifier a client presents on every later request.
// It is the only credential of a session and must stay unguessable.
func NewClientID() string {
	return uuid.NewString()
}

// SessionRegistry hands out the SessionManager for each client id.
type SessionRegistry struct {
	store         repository.Store
	subscriptions *SubscriptionService
	watcher       AccountWatcher
	now           func() time.Time

	mu       sync.Mutex
	managers map[string]*SessionManager
}

func NewSessionRegistry(store repository.Store, subscriptions *SubscriptionService, watcher AccountWatcher) *SessionRegistry {
	return &SessionRegistry{
		store:         store,
		subscriptions: subscriptions,
		watcher:       watcher,
		now:           time.Now,
		managers:      make(map[string]*SessionManager),
	}
}

// For returns the manager of clientID. Managers stay registered only while the
// client has a session pointer: they are released on Terminate and whenever a
// read finds nobody signed in.
func (r *SessionRegistry) For(clientID string) *SessionManager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[clientID]; ok {
		return m
	}
	m := &SessionManager{
		clientID:      clientID,
		store:         r.store,
		subscriptions: r.subscriptions,
		watcher:       r.watcher,
		now:           r.now,
		ended:         make(chan struct{}),
	}
	m.release = func() { r.forget(m) }
	r.managers[clientID] = m
	return m
}

// Len reports how many client managers are registered.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

func (r *SessionRegistry) forget(m *SessionManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.managers[m.clientID] == m {
		delete(r.managers, m.clientID)
	}
}

// SessionManager tracks the account signed in on one client and the last copy of
// it that client observed. Calls for one client are expected to be sequential.
type SessionManager struct {
	clientID      string
	store         repository.Store
	subscriptions *SubscriptionService
	watcher       AccountWatcher
	release       func()
	now           func() time.Time

	mu     sync.Mutex
	cached *model.Account

	// ended is closed by Terminate so watchers of this client stop.
	ended   chan struct{}
	endOnce sync.Once
}

func (m *SessionManager) ClientID() string {
	return m.clientID
}

// Current resolves the session pointer to the live account, as seen at now. It
// returns nil when nobody is signed in or the account no longer exists.
func (m *SessionManager) Current(ctx context.Context) (*model.Account, error) {
	account, err := m.load(ctx)
	if err != nil || account == nil {
		return nil, err
	}
	effective, _ := account.Effective(m.now())
	return effective, nil
}

// Reconcile re-reads the signed-in account and replaces the cached copy when it
// changed. A suspended account is signed out and reported as ACCOUNT_SUSPENDED.
func (m *SessionManager) Reconcile(ctx context.Context) (*model.Account, error) {
	account, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		m.setCached(nil)
		return nil, nil
	}

	if account.Suspended {
		if err := m.Terminate(ctx); err != nil {
			return nil, err
		}
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionSuspended,
			ClientID:  m.clientID,
			AccountID: account.ID,
		})
		return nil, apperrors.AccountSuspended()
	}

	current, err := m.subscriptions.EnsureCurrent(ctx, account, "reconcile")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.cached == nil || !sameAccount(m.cached, current) {
		log.Debug().
			Str("clientId", m.clientID).
			Str("accountId", current.ID).
			Msg("session account refreshed")
		m.cached = current.Clone()
	}
	m.mu.Unlock()

	return current, nil
}

// Cached returns the last account this client observed, without touching the store.
func (m *SessionManager) Cached() *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached.Clone()
}

// Install makes account the signed-in account for this client.
func (m *SessionManager) Install(ctx context.Context, account *model.Account) error {
	if err := m.store.Sessions().Set(ctx, m.clientID, account.ID); err != nil {
		return err
	}
	m.setCached(account)
	return nil
}

// Terminate clears the session pointer. No account is modified.
func (m *SessionManager) Terminate(ctx context.Context) error {
	if err := m.store.Sessions().Clear(ctx, m.clientID); err != nil {
		return err
	}
	m.setCached(nil)
	if m.release != nil {
		m.release()
	}
	if m.ended != nil {
		m.endOnce.Do(func() { close(m.ended) })
	}
	return nil
}

// CompleteProfile sets the profile fields of the signed-in account.
func (m *SessionManager) CompleteProfile(ctx context.Context, params model.ProfileParams) (*model.Account, error) {
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	params.Institution = strings.TrimSpace(params.Institution)
	switch {
	case params.DisplayName == "":
		return nil, apperrors.MissingRequired("displayName")
	case params.Institution == "":
		return nil, apperrors.MissingRequired("institution")
	case params.Track != model.TrackEleven && params.Track != model.TrackTwelve:
		return nil, apperrors.InvalidInput("track", "must be 11 or 12")
	}

	var updated *model.Account
	err := m.store.WithinTx(ctx, func(tx repository.Store) error {
		ptr, err := tx.Sessions().Get(ctx, m.clientID)
		if err != nil {
			return err
		}
		if ptr == nil {
			return apperrors.Unauthorized("Not signed in")
		}
		account, err := tx.Accounts().FindByID(ctx, ptr.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return apperrors.Unauthorized("Not signed in")
		}

		account.DisplayName = params.DisplayName
		account.Institution = params.Institution
		account.Track = params.Track
		if err := tx.Accounts().Upsert(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.setCached(updated)
	effective, _ := updated.Effective(m.now())
	return effective, nil
}

// Watch reconciles every time the signed-in account changes elsewhere and hands
// the result to onChange. It returns when ctx is done, the watcher shuts down, or
// the session ends.
func (m *SessionManager) Watch(ctx context.Context, onChange func(*model.Account, error)) error {
	if m.watcher == nil {
		return apperrors.Internal("account notifications are not configured")
	}

	account, err := m.Reconcile(ctx)
	onChange(account, err)
	if err != nil || account == nil {
		return err
	}

	sub := m.watcher.Subscribe(account.ID)
	defer m.watcher.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done:
			return nil
		case <-m.ended:
			onChange(nil, nil)
			return nil
		case ev := <-sub.Events:
			log.Debug().
				Str("clientId", m.clientID).
				Str("reason", ev.Reason).
				Msg("account change received")

			account, err := m.Reconcile(ctx)
			onChange(account, err)
			if err != nil || account == nil {
				return err
			}
		}
	}
}

func (m *SessionManager) load(ctx context.Context) (*model.Account, error) {
	ptr, err := m.store.Sessions().Get(ctx, m.clientID)
	if err != nil {
		return nil, err
	}
	if ptr == nil {
		m.releaseIdle()
		return nil, nil
	}

	account, err := m.store.Accounts().FindByID(ctx, ptr.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		log.Info().
			Str("clientId", m.clientID).
			Str("accountId", ptr.AccountID).
			Msg("session points at a missing account, clearing")
		if err := m.store.Sessions().Clear(ctx, m.clientID); err != nil {
			log.Warn().Err(err).Str("clientId", m.clientID).Msg("failed to clear dangling session")
		}
		m.releaseIdle()
		return nil, nil
	}
	return account, nil
}

// releaseIdle unregisters a manager nobody is signed in on. The next For call
// for the client builds a fresh one.
func (m *SessionManager) releaseIdle() {
	if m.release != nil {
		m.release()
	}
}

func (m *SessionManager) setCached(account *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = account.Clone()
}

func sameAccount(a, b *model.Account) bool {
	if a.PremiumExpiresAt == nil || b.PremiumExpiresAt == nil {
		if a.PremiumExpiresAt != b.PremiumExpiresAt {
			return false
		}
	} else if !a.PremiumExpiresAt.Equal(*b.PremiumExpiresAt) {
		return false
	}
	x, y := *a, *b
	x.PremiumExpiresAt, y.PremiumExpiresAt = nil, nil
	x.JoinedAt, y.JoinedAt = time.Time{}, time.Time{}
	x.UpdatedAt, y.UpdatedAt = time.Time{}, time.Time{}
	return x == y && a.JoinedAt.Equal(b.JoinedAt)
}

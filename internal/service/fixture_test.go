package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/util"
)

// fixture wires every service against one in-memory store and a shared clock.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock time.Time

	store         *repository.MemoryStore
	broker        *notify.Broker
	limiter       *MemoryLoginLimiter
	quota         *QuotaService
	subscriptions *SubscriptionService
	sessions      *SessionRegistry
	auth          *AuthService
	admin         *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		clock: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
		store: repository.NewMemoryStore(),
	}
	now := func() time.Time { return f.clock }

	f.broker = notify.NewBroker(nil)
	t.Cleanup(f.broker.Close)

	f.limiter = NewMemoryLoginLimiter(3, time.Minute)
	f.limiter.now = now

	f.quota = NewQuotaService(f.store, DefaultDailyLimit, time.UTC)
	f.quota.now = now

	f.subscriptions = NewSubscriptionService(f.store, f.broker)
	f.subscriptions.now = now

	f.sessions = NewSessionRegistry(f.store, f.subscriptions, f.broker)
	f.sessions.now = now

	f.auth = NewAuthService(f.store, f.sessions, f.subscriptions, f.quota, util.PlainCredentials{}, f.limiter)
	f.auth.now = now

	f.admin = NewAdminService(f.store, f.subscriptions, f.broker)
	f.admin.now = now

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// register creates a student with a completed profile, signed in on clientID.
func (f *fixture) register(clientID, email string) *model.Account {
	f.t.Helper()

	account, err := f.auth.Register(f.ctx, clientID, email, "secret-1")
	require.NoError(f.t, err)

	account, err = f.sessions.For(clientID).CompleteProfile(f.ctx, model.ProfileParams{
		DisplayName: "Student " + clientID,
		Institution: "Central High",
		Track:       model.TrackTwelve,
	})
	require.NoError(f.t, err)
	return account
}

func (f *fixture) seedAdmin() *model.Account {
	f.t.Helper()

	admin, err := f.auth.SeedAdmin(f.ctx, "admin@studydesk.test", "admin-secret")
	require.NoError(f.t, err)
	return admin
}

func (f *fixture) stored(id string) *model.Account {
	f.t.Helper()

	account, err := f.store.Accounts().FindByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, account)
	return account
}

func (f *fixture) put(account *model.Account) {
	f.t.Helper()
	require.NoError(f.t, f.store.Accounts().Upsert(f.ctx, account))
}

func (f *fixture) submit(account *model.Account, plan model.Plan) *model.PaymentRequest {
	f.t.Helper()

	req, err := f.subscriptions.SubmitPaymentRequest(f.ctx, account, plan, "TX-"+string(plan))
	require.NoError(f.t, err)
	return req
}

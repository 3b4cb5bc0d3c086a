package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studydesk/account-core/internal/completion"
	"github.com/studydesk/account-core/internal/config"
	"github.com/studydesk/account-core/internal/middleware"
	"github.com/studydesk/account-core/internal/notify"
	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/service"
	"github.com/studydesk/account-core/internal/util"
)

type completerFunc func(ctx context.Context, req completion.Request) (string, error)

func (f completerFunc) Complete(ctx context.Context, req completion.Request) (string, error) {
	return f(ctx, req)
}

type apiFixture struct {
	t        *testing.T
	store    *repository.MemoryStore
	broker   *notify.Broker
	auth     *service.AuthService
	sessions *service.SessionRegistry
	router   http.Handler

	completer completerFunc

	// clients maps the labels tests use to the client ids sign-in issued.
	clients map[string]string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		t:       t,
		store:   repository.NewMemoryStore(),
		clients: make(map[string]string),
	}
	f.completer = func(context.Context, completion.Request) (string, error) {
		return "an answer", nil
	}

	f.broker = notify.NewBroker(nil)
	t.Cleanup(f.broker.Close)

	quota := service.NewQuotaService(f.store, service.DefaultDailyLimit, nil)
	subscriptions := service.NewSubscriptionService(f.store, f.broker)
	f.sessions = service.NewSessionRegistry(f.store, subscriptions, f.broker)
	limiter := service.NewMemoryLoginLimiter(config.LoginMaxAttempts, config.LoginWindowDuration)
	f.auth = service.NewAuthService(f.store, f.sessions, subscriptions, quota, util.PlainCredentials{}, limiter)

	completer := completerFunc(func(ctx context.Context, req completion.Request) (string, error) {
		return f.completer(ctx, req)
	})

	f.router = NewRouter(RouterDeps{
		Auth:          f.auth,
		Sessions:      f.sessions,
		Quota:         quota,
		Subscriptions: subscriptions,
		Assistant:     service.NewAssistantService(quota, completer),
		Admin:         service.NewAdminService(f.store, subscriptions, f.broker),
		Limiter:       middleware.NewRateLimiter(),
	})

	return f
}

// clientID resolves a label to the id issued when it signed in. Unknown labels
// are sent as they are.
func (f *apiFixture) clientID(label string) string {
	if id, ok := f.clients[label]; ok {
		return id
	}
	return label
}

// do sends a request as client. A successful register or login binds client to
// the id the server issued.
func (f *apiFixture) do(method, path, client string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if client != "" {
		req.Header.Set(middleware.ClientIDHeader, f.clientID(client))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if (path == "/v1/auth/register" || path == "/v1/auth/login") && rec.Code < http.StatusMultipleChoices {
		var out struct {
			ClientID string `json:"clientId"`
		}
		decode(f.t, rec, &out)
		require.NotEmpty(f.t, out.ClientID)
		f.clients[client] = out.ClientID
	}
	return rec
}

// student registers email as client and completes the profile.
func (f *apiFixture) student(client, email string) string {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/v1/auth/register", client, map[string]string{
		"email":    email,
		"password": "secret-1",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPut, "/v1/profile", client, map[string]string{
		"displayName": "Ada",
		"institution": "Central High",
		"track":       "12",
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
	}
	decode(f.t, rec, &out)
	return out.Account.ID
}

func (f *apiFixture) admin(client string) {
	f.t.Helper()

	_, err := f.auth.SeedAdmin(context.Background(), "admin@studydesk.test", "admin-secret")
	require.NoError(f.t, err)

	rec := f.do(http.MethodPost, "/v1/auth/login", client, map[string]string{
		"email":    "admin@studydesk.test",
		"password": "admin-secret",
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *apiFixture) submitPayment(client, plan string) string {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/v1/payments", client, map[string]string{
		"plan":           plan,
		"transactionRef": "TX-" + plan,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		ID string `json:"id"`
	}
	decode(f.t, rec, &out)
	return out.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Code
}

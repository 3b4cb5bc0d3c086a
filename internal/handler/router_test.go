package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studydesk/account-core/internal/completion"
	"github.com/studydesk/account-core/internal/util"
)

func TestHealth(t *testing.T) {
	t.Run("ok without a database check", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("degraded when the check fails", func(t *testing.T) {
		handler := healthHandler(func(context.Context) error { return errors.New("db down") })
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(http.MethodGet, "/health", "", nil)

	rec := f.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studydesk_http_requests_total")
}

func TestAuthRoutes(t *testing.T) {
	t.Run("register signs the client in", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(http.MethodPost, "/v1/auth/register", "tab-1", map[string]string{
			"email": "Ada@Example.com", "password": "secret-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)
		assert.NotContains(t, rec.Body.String(), "secret-1")
		assert.True(t, util.IsValidUUID(f.clientID("tab-1")))

		rec = f.do(http.MethodGet, "/v1/session", "tab-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var session struct {
			SignedIn bool `json:"signedIn"`
			Quota    struct {
				Remaining int `json:"remaining"`
			} `json:"quota"`
		}
		decode(t, rec, &session)
		assert.True(t, session.SignedIn)
		assert.Equal(t, 50, session.Quota.Remaining)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/auth/register", "tab-2", map[string]string{
			"email": "ADA@example.com", "password": "other",
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_ACCOUNT", errorCode(t, rec))
	})

	t.Run("malformed body is a validation error", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(http.MethodPost, "/v1/auth/register", "tab-1", "{not json")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
	})

	t.Run("client id is required", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(http.MethodGet, "/v1/session", "", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("client ids are issued by the server", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")
		f.student("tab-2", "grace@example.com")
		assert.NotEqual(t, f.clientID("tab-1"), f.clientID("tab-2"))

		// A chosen id is not a credential, even one that looks like a tab name.
		rec := f.do(http.MethodGet, "/v1/quota", "tab-1-guess", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

		rec = f.do(http.MethodGet, "/admin/stats", "not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodGet, "/v1/quota", uuid.NewString(), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// Signing in again issues a new id; the old one stays valid until logout.
		rec = f.do(http.MethodPost, "/v1/auth/login", "tab-1b", map[string]string{
			"email": "ada@example.com", "password": "secret-1",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEqual(t, f.clientID("tab-1"), f.clientID("tab-1b"))
	})

	t.Run("anonymous clients leave nothing behind", func(t *testing.T) {
		f := newAPIFixture(t)

		for i := 0; i < 100; i++ {
			rec := f.do(http.MethodGet, "/v1/session", uuid.NewString(), nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.JSONEq(t, `{"signedIn":false}`, rec.Body.String())
		}

		assert.Equal(t, 0, f.sessions.Len())
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/auth/login", "tab-2", map[string]string{
			"email": "ada@example.com", "password": "wrong",
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
	})

	t.Run("login on a second client shares the account", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/auth/login", "tab-2", map[string]string{
			"email": "ada@example.com", "password": "secret-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), id)
	})

	t.Run("logout signs the client out", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/auth/logout", "tab-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodGet, "/v1/session", "tab-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"signedIn":false}`, rec.Body.String())

		rec = f.do(http.MethodGet, "/v1/quota", "tab-1", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestProfileRoute(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/v1/auth/register", "tab-1", map[string]string{
		"email": "ada@example.com", "password": "secret-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPut, "/v1/profile", "tab-1", map[string]string{
		"displayName": "Ada", "institution": "Central High", "track": "10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/v1/profile", "tab-1", map[string]string{
		"displayName": "Ada", "institution": "Central High", "track": "11",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"track":"11"`)
}

func TestAskRoute(t *testing.T) {
	question := map[string]any{
		"context":  "You are a physics tutor.",
		"history":  []map[string]string{{"role": "user", "text": "hi"}, {"role": "model", "text": "hello"}},
		"question": "What is momentum?",
	}

	t.Run("answers and debits quota", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")
		var got completion.Request
		f.completer = func(_ context.Context, req completion.Request) (string, error) {
			got = req
			return "p = mv", nil
		}

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", question)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var answer struct {
			Text  string `json:"text"`
			Quota struct {
				Used      int `json:"used"`
				Remaining int `json:"remaining"`
			} `json:"quota"`
		}
		decode(t, rec, &answer)
		assert.Equal(t, "p = mv", answer.Text)
		assert.Equal(t, 1, answer.Quota.Used)
		assert.Equal(t, 49, answer.Quota.Remaining)
		assert.Equal(t, "What is momentum?", got.UserTurn)
		assert.Len(t, got.History, 2)
	})

	t.Run("attachments decode from base64", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")
		var got completion.Request
		f.completer = func(_ context.Context, req completion.Request) (string, error) {
			got = req
			return "a cat", nil
		}

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", map[string]any{
			"question":   "What is this?",
			"attachment": map[string]string{"mimeType": "image/png", "data": "aGVsbG8="},
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotNil(t, got.Attachment)
		assert.Equal(t, []byte("hello"), got.Attachment.Data)
	})

	t.Run("failed completion costs nothing", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")
		f.completer = func(context.Context, completion.Request) (string, error) {
			return "", completion.ServiceUnavailable(http.StatusServiceUnavailable)
		}

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", question)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, rec))

		rec = f.do(http.MethodGet, "/v1/quota", "tab-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"used":0`)
	})

	t.Run("incomplete profile is refused", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/auth/register", "tab-1", map[string]string{
			"email": "ada@example.com", "password": "secret-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(http.MethodPost, "/v1/ask", "tab-1", question)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "PROFILE_INCOMPLETE", errorCode(t, rec))
	})

	t.Run("empty question is a validation error", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", map[string]string{"question": "  "})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown history role is a validation error", func(t *testing.T) {
		f := newAPIFixture(t)
		f.student("tab-1", "ada@example.com")

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", map[string]any{
			"question": "q",
			"history":  []map[string]string{{"role": "system", "text": "x"}},
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("signed-out clients are refused", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(http.MethodPost, "/v1/ask", "tab-1", question)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPaymentRoutes(t *testing.T) {
	f := newAPIFixture(t)
	f.student("tab-1", "ada@example.com")

	rec := f.do(http.MethodPost, "/v1/payments", "tab-1", map[string]string{
		"plan": "weekly", "transactionRef": "TX-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/payments", "tab-1", map[string]string{
		"plan": "one_month", "transactionRef": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.submitPayment("tab-1", "one_month")

	rec = f.do(http.MethodGet, "/v1/payments", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Requests []struct {
			Plan   string `json:"plan"`
			Status string `json:"status"`
		} `json:"requests"`
	}
	decode(t, rec, &out)
	require.Len(t, out.Requests, 1)
	assert.Equal(t, "one_month", out.Requests[0].Plan)
	assert.Equal(t, "pending", out.Requests[0].Status)
}

func TestAskRoute_RateLimited(t *testing.T) {
	f := newAPIFixture(t)
	f.student("tab-1", "ada@example.com")

	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		last = f.do(http.MethodPost, "/v1/ask", "tab-1", map[string]string{"question": "q"})
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

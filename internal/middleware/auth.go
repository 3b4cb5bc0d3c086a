package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/studydesk/account-core/internal/audit"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/httputil"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/service"
	"github.com/studydesk/account-core/internal/util"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
	AccountContextKey contextKey = "account"
)

const (
	// ClientIDHeader carries the client id issued by register or login.
	ClientIDHeader = "X-Client-ID"
	// ClientIDQuery carries the client id where headers cannot be set, such as EventSource.
	ClientIDQuery = "client_id"
)

func GetSession(ctx context.Context) *service.SessionManager {
	if session, ok := ctx.Value(SessionContextKey).(*service.SessionManager); ok {
		return session
	}
	return nil
}

func GetAccount(ctx context.Context) *model.Account {
	if account, ok := ctx.Value(AccountContextKey).(*model.Account); ok {
		return account
	}
	return nil
}

// WithAccount stores the reconciled account in ctx.
func WithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, AccountContextKey, account)
}

// AuthMiddleware resolves the client id to its session and, on protected routes,
// to the signed-in account.
type AuthMiddleware struct {
	sessions *service.SessionRegistry
}

func NewAuthMiddleware(sessions *service.SessionRegistry) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// ClientSession attaches the caller's SessionManager to the request context.
// Client ids are issued by the server, so anything that is not a UUID is
// rejected before the registry sees it. An id that was never issued resolves to
// a signed-out session.
func (m *AuthMiddleware) ClientSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := extractClientID(r)
		if clientID == "" {
			writeError(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "Missing client id")
			return
		}
		if !util.IsValidUUID(clientID) {
			writeError(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "Malformed client id")
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, m.sessions.For(clientID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAccount reconciles the session and rejects the request when nobody is
// signed in. A suspended account is signed out here.
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetSession(r.Context())
		if session == nil {
			writeError(w, http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "Unauthorized")
			return
		}

		account, err := session.Reconcile(r.Context())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if account == nil {
			writeError(w, http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "Sign in to continue")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

// RequireAdmin must run after RequireAccount.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := GetAccount(r.Context())
		if account == nil || !account.IsAdmin() {
			event := audit.Event{Type: audit.EventAuthFailure, Details: map[string]interface{}{"reason": "admin_required"}}
			if account != nil {
				event.AccountID = account.ID
			}
			audit.LogFromRequest(r, event)
			writeError(w, http.StatusForbidden, apperrors.ErrCodeForbidden, "Administrator access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractClientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get(ClientIDQuery))
}

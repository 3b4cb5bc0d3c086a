package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/completion"
	"github.com/studydesk/account-core/internal/config"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/metrics"
)

type Answer struct {
	Text  string      `json:"text"`
	Quota QuotaStatus `json:"quota"`
}

// AssistantService gates completion requests behind the session, the profile and
// the daily quota.
type AssistantService struct {
	quota     *QuotaService
	completer completion.Completer
	timeout   time.Duration
}

func NewAssistantService(quota *QuotaService, completer completion.Completer) *AssistantService {
	return &AssistantService{
		quota:     quota,
		completer: completer,
		timeout:   config.CompletionTimeout,
	}
}

// Ask forwards one question for the signed-in account. Quota is debited only after
// the completion succeeded; a failed or cancelled completion costs nothing.
func (s *AssistantService) Ask(ctx context.Context, session *SessionManager, req completion.Request) (*Answer, error) {
	account, err := session.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.Unauthorized("Sign in to ask a question")
	}
	if !account.ProfileComplete() {
		return nil, apperrors.ProfileIncomplete()
	}
	if err := s.quota.Guard(account); err != nil {
		metrics.RecordQuestion("quota_exceeded")
		return nil, err
	}
	if s.completer == nil {
		return nil, completion.ConfigurationMissing()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	text, err := s.completer.Complete(callCtx, req)
	metrics.ObserveCompletion(time.Since(started))
	if err != nil {
		metrics.RecordQuestion("failed")
		log.Warn().
			Err(err).
			Str("accountId", account.ID).
			Str("code", string(apperrors.GetCode(err))).
			Msg("completion failed, quota not debited")
		return nil, err
	}

	updated, err := s.quota.RecordUsage(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuestion("answered")

	return &Answer{Text: text, Quota: s.quota.CheckLimit(updated)}, nil
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
	"github.com/studydesk/account-core/internal/repository"
)

// DefaultDailyLimit is the number of assistant questions a free account may ask per day.
const DefaultDailyLimit = 50

type QuotaStatus struct {
	Allowed   bool   `json:"allowed"`
	Unlimited bool   `json:"unlimited"`
	Remaining int    `json:"remaining"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Date      string `json:"date"`
}

type QuotaService struct {
	store repository.Store
	limit int
	loc   *time.Location
	now   func() time.Time
}

func NewQuotaService(store repository.Store, dailyLimit int, loc *time.Location) *QuotaService {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaService{
		store: store,
		limit: dailyLimit,
		loc:   loc,
		now:   time.Now,
	}
}

// Today is the calendar date quota counters are stamped with.
func (s *QuotaService) Today() string {
	return model.CalendarDate(s.now(), s.loc)
}

// CheckLimit reports whether account may ask another question today. A counter
// stamped with an earlier date reads as zero without being written.
func (s *QuotaService) CheckLimit(account *model.Account) QuotaStatus {
	today := s.Today()
	if account.HasActivePremium(s.now()) {
		return QuotaStatus{Allowed: true, Unlimited: true, Limit: s.limit, Date: today}
	}

	used := account.UsageOn(today)
	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		Allowed:   used < s.limit,
		Remaining: remaining,
		Used:      used,
		Limit:     s.limit,
		Date:      today,
	}
}

func (s *QuotaService) Guard(account *model.Account) error {
	if status := s.CheckLimit(account); !status.Allowed {
		return apperrors.QuotaExceeded(s.limit)
	}
	return nil
}

// RecordUsage debits one question from the stored account. The rollover and the
// increment are a single write. Admins and valid premium accounts are not debited.
func (s *QuotaService) RecordUsage(ctx context.Context, accountID string) (*model.Account, error) {
	var result *model.Account
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		account, err := tx.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return apperrors.AccountNotFound(accountID)
		}

		if account.HasActivePremium(s.now()) {
			result = account
			return nil
		}

		today := s.Today()
		if account.UsageDate != today {
			account.UsedToday = 1
			account.UsageDate = today
		} else {
			account.UsedToday++
		}

		if err := tx.Accounts().Upsert(ctx, account); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("accountId", accountID).
		Int("usedToday", result.UsedToday).
		Str("usageDate", result.UsageDate).
		Msg("usage recorded")
	return result, nil
}

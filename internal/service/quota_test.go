package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

func TestQuotaService_CheckLimit(t *testing.T) {
	t.Run("free account at the limit is denied", func(t *testing.T) {
		f := newFixture(t)
		account := &model.Account{Role: model.RoleStudent, PremiumPlan: model.PlanNone, UsedToday: 50, UsageDate: "2026-03-10"}

		status := f.quota.CheckLimit(account)
		assert.False(t, status.Allowed)
		assert.Equal(t, 0, status.Remaining)
		assert.Equal(t, 50, status.Used)
		assert.Equal(t, 50, status.Limit)

		err := f.quota.Guard(account)
		assert.Equal(t, apperrors.ErrCodeQuotaExceeded, apperrors.GetCode(err))
	})

	t.Run("usage stamped yesterday reads as zero", func(t *testing.T) {
		f := newFixture(t)
		account := &model.Account{Role: model.RoleStudent, PremiumPlan: model.PlanNone, UsedToday: 50, UsageDate: "2026-03-09"}

		status := f.quota.CheckLimit(account)
		assert.True(t, status.Allowed)
		assert.Equal(t, 50, status.Remaining)
		assert.Equal(t, 0, status.Used)
		assert.Equal(t, "2026-03-10", status.Date)
	})

	t.Run("remaining never goes negative", func(t *testing.T) {
		f := newFixture(t)
		account := &model.Account{Role: model.RoleStudent, UsedToday: 75, UsageDate: "2026-03-10"}

		assert.Equal(t, 0, f.quota.CheckLimit(account).Remaining)
	})

	t.Run("valid premium is unlimited", func(t *testing.T) {
		f := newFixture(t)
		expires := f.clock.Add(24 * time.Hour)
		account := &model.Account{
			Role:             model.RoleStudent,
			IsPremium:        true,
			PremiumPlan:      model.PlanOneMonth,
			PremiumExpiresAt: &expires,
			UsedToday:        500,
			UsageDate:        "2026-03-10",
		}

		status := f.quota.CheckLimit(account)
		assert.True(t, status.Allowed)
		assert.True(t, status.Unlimited)
		assert.NoError(t, f.quota.Guard(account))
	})

	t.Run("lapsed premium counts as free", func(t *testing.T) {
		f := newFixture(t)
		expires := f.clock.Add(-time.Second)
		account := &model.Account{
			Role:             model.RoleStudent,
			IsPremium:        true,
			PremiumPlan:      model.PlanOneMonth,
			PremiumExpiresAt: &expires,
			UsedToday:        50,
			UsageDate:        "2026-03-10",
		}

		status := f.quota.CheckLimit(account)
		assert.False(t, status.Allowed)
		assert.False(t, status.Unlimited)
	})

	t.Run("admins are unlimited", func(t *testing.T) {
		f := newFixture(t)
		account := &model.Account{Role: model.RoleAdmin, UsedToday: 999, UsageDate: "2026-03-10"}

		assert.True(t, f.quota.CheckLimit(account).Unlimited)
	})
}

func TestQuotaService_RecordUsage(t *testing.T) {
	t.Run("increments within the day", func(t *testing.T) {
		f := newFixture(t)
		account := f.register("tab-1", "kim@example.com")

		_, err := f.quota.RecordUsage(f.ctx, account.ID)
		require.NoError(t, err)
		updated, err := f.quota.RecordUsage(f.ctx, account.ID)
		require.NoError(t, err)

		assert.Equal(t, 2, updated.UsedToday)
		assert.Equal(t, 2, f.stored(account.ID).UsedToday)
		assert.Equal(t, "2026-03-10", f.stored(account.ID).UsageDate)
	})

	t.Run("first use on a new day resets to one", func(t *testing.T) {
		f := newFixture(t)
		account := f.register("tab-1", "lee@example.com")

		stored := f.stored(account.ID)
		stored.UsedToday = 37
		f.put(stored)

		f.advance(24 * time.Hour)
		updated, err := f.quota.RecordUsage(f.ctx, account.ID)
		require.NoError(t, err)

		assert.Equal(t, 1, updated.UsedToday)
		assert.Equal(t, "2026-03-11", updated.UsageDate)
	})

	t.Run("premium and admin accounts are not debited", func(t *testing.T) {
		f := newFixture(t)
		account := f.register("tab-1", "max@example.com")
		expires := f.clock.AddDate(0, 1, 0)
		stored := f.stored(account.ID)
		stored.IsPremium = true
		stored.PremiumPlan = model.PlanOneMonth
		stored.PremiumExpiresAt = &expires
		f.put(stored)

		_, err := f.quota.RecordUsage(f.ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, f.stored(account.ID).UsedToday)

		admin := f.seedAdmin()
		_, err = f.quota.RecordUsage(f.ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, f.stored(admin.ID).UsedToday)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.quota.RecordUsage(f.ctx, "missing")
		assert.Equal(t, apperrors.ErrCodeAccountNotFound, apperrors.GetCode(err))
	})
}

func TestQuotaService_TimeZone(t *testing.T) {
	f := newFixture(t)
	loc := time.FixedZone("UTC+9", 9*60*60)
	quota := NewQuotaService(f.store, 0, loc)
	quota.now = func() time.Time { return time.Date(2026, time.March, 10, 16, 0, 0, 0, time.UTC) }

	assert.Equal(t, DefaultDailyLimit, quota.CheckLimit(&model.Account{Role: model.RoleStudent}).Limit)
	assert.Equal(t, "2026-03-11", quota.Today())
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of Account.UsageDate.
const DateLayout = "2006-01-02"

type Account struct {
	ID               string     `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	CredentialSecret string     `db:"credential_secret" json:"-"`
	Role             Role       `db:"role" json:"role"`
	DisplayName      string     `db:"display_name" json:"displayName"`
	Institution      string     `db:"institution" json:"institution"`
	Track            Track      `db:"track" json:"track"`
	IsPremium        bool       `db:"is_premium" json:"isPremium"`
	PremiumPlan      Plan       `db:"premium_plan" json:"premiumPlan"`
	PremiumExpiresAt *time.Time `db:"premium_expires_at" json:"premiumExpiresAt,omitempty"`
	UsedToday        int        `db:"used_today" json:"usedToday"`
	UsageDate        string     `db:"usage_date" json:"usageDate"`
	JoinedAt         time.Time  `db:"joined_at" json:"joinedAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
	Suspended        bool       `db:"suspended" json:"suspended"`
}

type ProfileParams struct {
	DisplayName string
	Institution string
	Track       Track
}

// NormalizeEmail returns the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CalendarDate formats t as a usage date in loc.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a *Account) ProfileComplete() bool {
	return strings.TrimSpace(a.DisplayName) != "" &&
		strings.TrimSpace(a.Institution) != "" &&
		a.Track != TrackUnset
}

// PremiumLapsed reports whether the stored premium flag is no longer backed by a
// future expiry. Admins never lapse.
func (a *Account) PremiumLapsed(now time.Time) bool {
	if a.IsAdmin() || !a.IsPremium {
		return false
	}
	return a.PremiumExpiresAt == nil || !now.Before(*a.PremiumExpiresAt)
}

// HasActivePremium reports whether the account is exempt from the daily quota at now.
func (a *Account) HasActivePremium(now time.Time) bool {
	if a.IsAdmin() {
		return true
	}
	return a.IsPremium && !a.PremiumLapsed(now)
}

// Effective returns the account as it must be seen at now, with lapsed premium
// cleared, and whether that differs from the stored record.
func (a *Account) Effective(now time.Time) (*Account, bool) {
	out := a.Clone()
	if !a.PremiumLapsed(now) {
		return out, false
	}
	out.IsPremium = false
	out.PremiumPlan = PlanNone
	out.PremiumExpiresAt = nil
	return out, true
}

// UsageOn returns the usage counter as seen on the given calendar date: a counter
// stamped with another date has rolled over to zero.
func (a *Account) UsageOn(today string) int {
	if a.UsageDate != today {
		return 0
	}
	return a.UsedToday
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.PremiumExpiresAt != nil {
		exp := *a.PremiumExpiresAt
		out.PremiumExpiresAt = &exp
	}
	return &out
}

// Validate checks the fields a decoded record must satisfy to be trusted.
func (a *Account) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("account: empty id")
	case !a.Role.Valid():
		return fmt.Errorf("account %s: unknown role %q", a.ID, a.Role)
	case !a.PremiumPlan.Valid():
		return fmt.Errorf("account %s: unknown plan %q", a.ID, a.PremiumPlan)
	case !a.Track.Valid():
		return fmt.Errorf("account %s: unknown track %q", a.ID, a.Track)
	case a.UsedToday < 0:
		return fmt.Errorf("account %s: negative usage %d", a.ID, a.UsedToday)
	}
	if _, err := time.Parse(DateLayout, a.UsageDate); err != nil {
		return fmt.Errorf("account %s: bad usage date %q: %w", a.ID, a.UsageDate, err)
	}
	return nil
}

package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Track is the student's school year. Empty means the profile has not been completed.
type Track string

const (
	TrackUnset  Track = ""
	TrackEleven Track = "11"
	TrackTwelve Track = "12"
)

func (t Track) Valid() bool {
	return t == TrackUnset || t == TrackEleven || t == TrackTwelve
}

type Plan string

const (
	PlanNone       Plan = "none"
	PlanOneMonth   Plan = "one_month"
	PlanThreeMonth Plan = "three_month"
)

func (p Plan) Valid() bool {
	return p == PlanNone || p.Purchasable()
}

// Purchasable reports whether a payment request may be submitted for the plan.
func (p Plan) Purchasable() bool {
	return p == PlanOneMonth || p == PlanThreeMonth
}

// Amount is the plan price in the deployment's currency unit.
func (p Plan) Amount() int {
	switch p {
	case PlanOneMonth:
		return 20
	case PlanThreeMonth:
		return 50
	default:
		return 0
	}
}

// Months is the number of calendar months a plan grants.
func (p Plan) Months() int {
	switch p {
	case PlanOneMonth:
		return 1
	case PlanThreeMonth:
		return 3
	default:
		return 0
	}
}

// ExpiresAt returns the end of a premium period starting at from. Months are calendar
// months and overflow the way time.AddDate normalizes them (Jan 31 + 1 month = Mar 3).
func (p Plan) ExpiresAt(from time.Time) time.Time {
	return from.AddDate(0, p.Months(), 0)
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.IsDecision()
}

// IsDecision reports whether s is a terminal status an admin can decide on.
func (s PaymentStatus) IsDecision() bool {
	return s == PaymentStatusApproved || s == PaymentStatusRejected
}

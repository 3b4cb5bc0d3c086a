package model

import (
	"fmt"
	"time"
)

type PaymentRequest struct {
	ID                     string        `db:"id" json:"id"`
	AccountID              string        `db:"account_id" json:"accountId"`
	AccountEmail           string        `db:"account_email" json:"accountEmail"`
	AccountName            string        `db:"account_name" json:"accountName"`
	Plan                   Plan          `db:"plan" json:"plan"`
	Amount                 int           `db:"amount" json:"amount"`
	ExternalTransactionRef string        `db:"external_transaction_ref" json:"externalTransactionRef"`
	Status                 PaymentStatus `db:"status" json:"status"`
	SubmittedAt            time.Time     `db:"submitted_at" json:"submittedAt"`
	DecidedAt              *time.Time    `db:"decided_at" json:"decidedAt,omitempty"`
}

func (p *PaymentRequest) Clone() *PaymentRequest {
	if p == nil {
		return nil
	}
	out := *p
	if p.DecidedAt != nil {
		at := *p.DecidedAt
		out.DecidedAt = &at
	}
	return &out
}

func (p *PaymentRequest) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("payment request: empty id")
	case !p.Plan.Purchasable():
		return fmt.Errorf("payment request %s: unknown plan %q", p.ID, p.Plan)
	case !p.Status.Valid():
		return fmt.Errorf("payment request %s: unknown status %q", p.ID, p.Status)
	}
	return nil
}

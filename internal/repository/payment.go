package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

// PaymentMutator edits a copy of a payment request. Returning an error aborts the update.
type PaymentMutator func(req *model.PaymentRequest) error

type PaymentRequestRepository interface {
	// List returns every decodable request, newest first.
	List(ctx context.Context) ([]*model.PaymentRequest, error)
	ListByAccount(ctx context.Context, accountID string) ([]*model.PaymentRequest, error)
	FindByID(ctx context.Context, id string) (*model.PaymentRequest, error)
	Insert(ctx context.Context, req *model.PaymentRequest) error
	// Update applies mutator to the stored request and writes it back only if the
	// status has not changed since it was read. A missing id returns (nil, nil); a
	// concurrent change returns a CONFLICT error.
	Update(ctx context.Context, id string, mutator PaymentMutator) (*model.PaymentRequest, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PaymentRequestRepository
}

const paymentColumns = `id, account_id, account_email, account_name, plan, amount,
	external_transaction_ref, status, submitted_at, decided_at`

type paymentRepo struct {
	db sqlxDB
}

func NewPaymentRequestRepository(db *sqlx.DB) PaymentRequestRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) WithTx(tx *sqlx.Tx) PaymentRequestRepository {
	return &paymentRepo{db: tx}
}

func (r *paymentRepo) List(ctx context.Context) ([]*model.PaymentRequest, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payment_requests ORDER BY submitted_at DESC, id DESC`)
}

func (r *paymentRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.PaymentRequest, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE account_id = ? ORDER BY submitted_at DESC, id DESC`, accountID)
}

func (r *paymentRepo) list(ctx context.Context, query string, args ...interface{}) ([]*model.PaymentRequest, error) {
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		log.Warn().Err(err).Msg("payment requests unreadable, treating as empty")
		return nil, nil
	}

	reqs, err := scanValid[model.PaymentRequest](rows, "payment_requests")
	if err != nil {
		log.Warn().Err(err).Msg("payment request list interrupted")
	}
	for _, p := range reqs {
		normalizePaymentTimes(p)
	}
	return reqs, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, id string) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, r.db.Rebind(`SELECT `+paymentColumns+` FROM payment_requests WHERE id = ?`), id)
	found, err := HandleNotFound(&req, err)
	if err != nil {
		log.Warn().Err(err).Str("request_id", id).Msg("payment request unreadable, treating as absent")
		return nil, nil
	}
	if found == nil {
		return nil, nil
	}
	if err := found.Validate(); err != nil {
		log.Warn().Err(err).Msg("skipping invalid payment request record")
		return nil, nil
	}
	normalizePaymentTimes(found)
	return found, nil
}

func (r *paymentRepo) Insert(ctx context.Context, req *model.PaymentRequest) error {
	row := req.Clone()
	row.SubmittedAt = row.SubmittedAt.UTC()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_requests (`+paymentColumns+`)
		VALUES (:id, :account_id, :account_email, :account_name, :plan, :amount,
			:external_transaction_ref, :status, :submitted_at, :decided_at)
	`, row)
	if isUniqueViolation(err) {
		return apperrors.Conflict(fmt.Sprintf("Payment request %s already exists", req.ID))
	}
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (r *paymentRepo) Update(ctx context.Context, id string, mutator PaymentMutator) (*model.PaymentRequest, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutator(next); err != nil {
		return nil, err
	}
	var decidedAt interface{}
	if next.DecidedAt != nil {
		decidedAt = next.DecidedAt.UTC()
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE payment_requests SET
			plan = ?,
			amount = ?,
			external_transaction_ref = ?,
			status = ?,
			decided_at = ?
		WHERE id = ? AND status = ?
	`), next.Plan, next.Amount, next.ExternalTransactionRef, next.Status, decidedAt, id, current.Status)
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	if affected == 0 {
		return nil, apperrors.Conflict(fmt.Sprintf("Payment request %s changed concurrently", id))
	}

	// Identity and snapshot fields are never rewritten.
	next.ID = current.ID
	next.AccountID = current.AccountID
	next.AccountEmail = current.AccountEmail
	next.AccountName = current.AccountName
	next.SubmittedAt = current.SubmittedAt
	normalizePaymentTimes(next)
	return next, nil
}

func normalizePaymentTimes(p *model.PaymentRequest) {
	p.SubmittedAt = p.SubmittedAt.UTC()
	if p.DecidedAt != nil {
		at := p.DecidedAt.UTC()
		p.DecidedAt = &at
	}
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestReadFailuresDegradeToEmpty(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	down := errors.New("db down")

	mock.ExpectQuery(`(?s)SELECT .* FROM accounts ORDER BY`).WillReturnError(down)
	mock.ExpectQuery(`(?s)SELECT .* FROM accounts WHERE id = \$1`).WithArgs("a1").WillReturnError(down)
	mock.ExpectQuery(`(?s)SELECT .* FROM payment_requests ORDER BY`).WillReturnError(down)
	mock.ExpectQuery(`(?s)SELECT .* FROM session_pointers WHERE client_id = \$1`).WithArgs("tab-1").WillReturnError(down)

	accounts, err := NewAccountRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	acc, err := NewAccountRepository(db).FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, acc)

	reqs, err := NewPaymentRequestRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	ptr, err := NewSessionPointerRepository(db).Get(ctx, "tab-1")
	require.NoError(t, err)
	assert.Nil(t, ptr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteFailuresReportStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	down := errors.New("disk full")

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(down)
	mock.ExpectExec(`INSERT INTO payment_requests`).WillReturnError(down)
	mock.ExpectExec(`INSERT INTO session_pointers`).WillReturnError(down)

	joined := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	err := NewAccountRepository(db).Upsert(ctx, testAccount("a1", "a@x.com", joined))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))
	assert.ErrorIs(t, err, down)

	err = NewPaymentRequestRepository(db).Insert(ctx, testPayment("p1", "a1", joined))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))

	err = NewSessionPointerRepository(db).Set(ctx, "tab-1", "a1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentUpdateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	submitted := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	row := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "account_id", "account_email", "account_name", "plan", "amount",
			"external_transaction_ref", "status", "submitted_at", "decided_at",
		}).AddRow("p1", "a1", "a@x.com", "Unknown", "one_month", 20, "TX-1", "pending", submitted, nil)
	}
	approve := func(req *model.PaymentRequest) error {
		req.Status = model.PaymentStatusApproved
		return nil
	}

	t.Run("another writer decided first", func(t *testing.T) {
		mock.ExpectQuery(`(?s)SELECT .* FROM payment_requests WHERE id = \$1`).WithArgs("p1").WillReturnRows(row())
		mock.ExpectExec(`(?s)UPDATE payment_requests SET .* WHERE id = \$6 AND status = \$7`).
			WithArgs("one_month", int64(20), "TX-1", "approved", nil, "p1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))

		updated, err := NewPaymentRequestRepository(db).Update(ctx, "p1", approve)
		assert.Nil(t, updated)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	})

	t.Run("write fails", func(t *testing.T) {
		mock.ExpectQuery(`(?s)SELECT .* FROM payment_requests WHERE id = \$1`).WithArgs("p1").WillReturnRows(row())
		mock.ExpectExec(`UPDATE payment_requests`).WillReturnError(errors.New("db down"))

		_, err := NewPaymentRequestRepository(db).Update(ctx, "p1", approve)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

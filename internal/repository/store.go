package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/studydesk/account-core/internal/database"
	apperrors "github.com/studydesk/account-core/internal/errors"
)

// Store is the shared record store. Every component reads and writes accounts,
// payment requests and session pointers through it.
type Store interface {
	Accounts() AccountRepository
	Payments() PaymentRequestRepository
	Sessions() SessionPointerRepository
	// WithinTx runs fn against a store whose writes commit together or not at all.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type sqlStore struct {
	db       *database.DB
	accounts AccountRepository
	payments PaymentRequestRepository
	sessions SessionPointerRepository
}

func NewSQLStore(db *database.DB) Store {
	return &sqlStore{
		db:       db,
		accounts: NewAccountRepository(db.DB),
		payments: NewPaymentRequestRepository(db.DB),
		sessions: NewSessionPointerRepository(db.DB),
	}
}

func (s *sqlStore) Accounts() AccountRepository { return s.accounts }
func (s *sqlStore) Payments() PaymentRequestRepository { return s.payments }
func (s *sqlStore) Sessions() SessionPointerRepository { return s.sessions }

// WithinTx reports failures to begin or commit as STORAGE_UNAVAILABLE. Errors
// returned by fn pass through unchanged.
func (s *sqlStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&sqlTxStore{
			accounts: s.accounts.WithTx(tx),
			payments: s.payments.WithTx(tx),
			sessions: s.sessions.WithTx(tx),
		})
	})
	if err != nil && !apperrors.IsAppError(err) {
		return apperrors.StorageUnavailable(err)
	}
	return err
}

type sqlTxStore struct {
	accounts AccountRepository
	payments PaymentRequestRepository
	sessions SessionPointerRepository
}

func (s *sqlTxStore) Accounts() AccountRepository { return s.accounts }
func (s *sqlTxStore) Payments() PaymentRequestRepository { return s.payments }
func (s *sqlTxStore) Sessions() SessionPointerRepository { return s.sessions }

// Nested calls join the enclosing transaction.
func (s *sqlTxStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	return fn(s)
}

// WithSessions returns a store that keeps session pointers in sessions instead of
// the underlying store, e.g. in Redis.
func WithSessions(store Store, sessions SessionPointerRepository) Store {
	return &sessionOverride{Store: store, sessions: sessions}
}

type sessionOverride struct {
	Store
	sessions SessionPointerRepository
}

func (s *sessionOverride) Sessions() SessionPointerRepository { return s.sessions }

func (s *sessionOverride) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.WithinTx(ctx, func(tx Store) error {
		return fn(&sessionOverride{Store: tx, sessions: s.sessions})
	})
}

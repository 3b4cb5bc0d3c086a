package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

// SessionPointerRepository maps a client id to the account currently signed in on it.
type SessionPointerRepository interface {
	Get(ctx context.Context, clientID string) (*model.SessionPointer, error)
	Set(ctx context.Context, clientID, accountID string) error
	Clear(ctx context.Context, clientID string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionPointerRepository
}

type sessionPointerRepo struct {
	db sqlxDB
}

func NewSessionPointerRepository(db *sqlx.DB) SessionPointerRepository {
	return &sessionPointerRepo{db: db}
}

func (r *sessionPointerRepo) WithTx(tx *sqlx.Tx) SessionPointerRepository {
	return &sessionPointerRepo{db: tx}
}

func (r *sessionPointerRepo) Get(ctx context.Context, clientID string) (*model.SessionPointer, error) {
	var ptr model.SessionPointer
	err := r.db.GetContext(ctx, &ptr, r.db.Rebind(`
		SELECT client_id, account_id, updated_at FROM session_pointers WHERE client_id = ?
	`), clientID)
	found, err := HandleNotFound(&ptr, err)
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("session pointer unreadable, treating as signed out")
		return nil, nil
	}
	if found != nil {
		found.UpdatedAt = found.UpdatedAt.UTC()
	}
	return found, nil
}

func (r *sessionPointerRepo) Set(ctx context.Context, clientID, accountID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO session_pointers (client_id, account_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			account_id = excluded.account_id,
			updated_at = excluded.updated_at
	`), clientID, accountID, time.Now().UTC())
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (r *sessionPointerRepo) Clear(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM session_pointers WHERE client_id = ?`), clientID)
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/config"
	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

type AccountRepository interface {
	// List returns every decodable account, oldest first.
	List(ctx context.Context) ([]*model.Account, error)
	// FindByID on a transaction-scoped repository locks the row until the
	// transaction ends, so a read-modify-Upsert cannot lose a concurrent write.
	FindByID(ctx context.Context, id string) (*model.Account, error)
	// FindByEmail matches on the normalized form of email.
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	// Upsert replaces the whole record keyed by ID. Fields are not merged.
	Upsert(ctx context.Context, account *model.Account) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string
}

const accountColumns = `id, email, credential_secret, role, display_name, institution, track,
	is_premium, premium_plan, premium_expires_at, used_today, usage_date,
	joined_at, updated_at, suspended`

type accountRepo struct {
	db sqlxDB
	// forUpdate is set on Postgres transactions. SQLite runs one connection per
	// process, which already serializes writers.
	forUpdate bool
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx, forUpdate: tx.DriverName() == config.DriverPostgres}
}

func (r *accountRepo) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY joined_at, id`)
	if err != nil {
		log.Warn().Err(err).Msg("account list unreadable, treating as empty")
		return nil, nil
	}

	accounts, err := scanValid[model.Account](rows, "accounts")
	if err != nil {
		log.Warn().Err(err).Msg("account list interrupted")
	}
	for _, a := range accounts {
		normalizeAccountTimes(a)
	}
	return accounts, nil
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, query, id)
}

func (r *accountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, model.NormalizeEmail(email))
}

func (r *accountRepo) findOne(ctx context.Context, query string, arg string) (*model.Account, error) {
	var account model.Account
	found, err := HandleNotFound(&account, r.db.GetContext(ctx, &account, r.db.Rebind(query), arg))
	if err != nil {
		log.Warn().Err(err).Str("key", arg).Msg("account unreadable, treating as absent")
		return nil, nil
	}
	if found == nil {
		return nil, nil
	}
	if err := found.Validate(); err != nil {
		log.Warn().Err(err).Msg("skipping invalid account record")
		return nil, nil
	}
	normalizeAccountTimes(found)
	return found, nil
}

func (r *accountRepo) Upsert(ctx context.Context, account *model.Account) error {
	row := account.Clone()
	row.Email = model.NormalizeEmail(row.Email)
	row.JoinedAt = row.JoinedAt.UTC()
	row.UpdatedAt = time.Now().UTC()
	if row.PremiumExpiresAt != nil {
		exp := row.PremiumExpiresAt.UTC()
		row.PremiumExpiresAt = &exp
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (:id, :email, :credential_secret, :role, :display_name, :institution, :track,
			:is_premium, :premium_plan, :premium_expires_at, :used_today, :usage_date,
			:joined_at, :updated_at, :suspended)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			credential_secret = excluded.credential_secret,
			role = excluded.role,
			display_name = excluded.display_name,
			institution = excluded.institution,
			track = excluded.track,
			is_premium = excluded.is_premium,
			premium_plan = excluded.premium_plan,
			premium_expires_at = excluded.premium_expires_at,
			used_today = excluded.used_today,
			usage_date = excluded.usage_date,
			joined_at = excluded.joined_at,
			updated_at = excluded.updated_at,
			suspended = excluded.suspended
	`, row)
	if isUniqueViolation(err) {
		return apperrors.DuplicateAccount()
	}
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}

	account.Email = row.Email
	account.UpdatedAt = row.UpdatedAt
	return nil
}

func normalizeAccountTimes(a *model.Account) {
	a.JoinedAt = a.JoinedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.PremiumExpiresAt != nil {
		exp := a.PremiumExpiresAt.UTC()
		a.PremiumExpiresAt = &exp
	}
}

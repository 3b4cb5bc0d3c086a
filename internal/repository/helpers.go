package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

type validator interface {
	Validate() error
}

// scanValid decodes every row into a fresh T and keeps the ones that pass Validate.
// Rows that fail to decode or validate are logged and skipped so one bad record
// does not hide the rest of the collection.
func scanValid[T any, PT interface {
	*T
	validator
}](rows *sqlx.Rows, collection string) ([]*T, error) {
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item := PT(new(T))
		if err := rows.StructScan(item); err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("skipping undecodable record")
			continue
		}
		if err := item.Validate(); err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("skipping invalid record")
			continue
		}
		out = append(out, (*T)(item))
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether err is a unique-constraint failure from either
// supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

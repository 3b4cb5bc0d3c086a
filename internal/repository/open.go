package repository

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/database"
)

// OpenStore opens and migrates the configured database. When that fails the
// process keeps running on an empty in-memory store and db is nil.
func OpenStore(ctx context.Context, driver, databaseURL string) (Store, *database.DB) {
	db, err := database.Open(ctx, driver, databaseURL)
	if err != nil {
		log.Warn().
			Err(err).
			Str("driver", driver).
			Msg("database unavailable, continuing with an in-memory store")
		return NewMemoryStore(), nil
	}

	log.Info().Str("driver", driver).Msg("database connected")
	return NewSQLStore(db), db
}

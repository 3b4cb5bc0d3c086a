package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/studydesk/account-core/internal/repository"
	"github.com/studydesk/account-core/internal/util"
)

// ResealPlainCredentials converts every stored secret that is not yet a bcrypt
// hash. Run it once when a deployment moves from the plain scheme to bcrypt.
func ResealPlainCredentials(ctx context.Context, store repository.Store, sealer util.BcryptCredentials) (int, error) {
	resealed := 0
	err := store.WithinTx(ctx, func(tx repository.Store) error {
		accounts, err := tx.Accounts().List(ctx)
		if err != nil {
			return err
		}

		for _, account := range accounts {
			if util.IsBcryptHash(account.CredentialSecret) {
				continue
			}
			sealed, err := sealer.Seal(account.CredentialSecret)
			if err != nil {
				return err
			}
			account.CredentialSecret = sealed
			if err := tx.Accounts().Upsert(ctx, account); err != nil {
				return err
			}
			resealed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int("count", resealed).Msg("credentials resealed")
	return resealed, nil
}

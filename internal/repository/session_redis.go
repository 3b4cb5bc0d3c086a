package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
	redisclient "github.com/studydesk/account-core/internal/redis"
)

// sessionTTL bounds how long an idle client stays signed in.
const sessionTTL = 30 * 24 * time.Hour

type redisSessionRepo struct {
	client redis.Cmdable
}

// NewRedisSessionPointerRepository keeps session pointers as Redis hashes.
func NewRedisSessionPointerRepository(client redis.Cmdable) SessionPointerRepository {
	return &redisSessionRepo{client: client}
}

func (r *redisSessionRepo) WithTx(*sqlx.Tx) SessionPointerRepository { return r }

func (r *redisSessionRepo) Get(ctx context.Context, clientID string) (*model.SessionPointer, error) {
	fields, err := r.client.HGetAll(ctx, redisclient.SessionKey(clientID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("client_id", clientID).Msg("session pointer unreadable, treating as signed out")
		return nil, nil
	}
	accountID := fields["account_id"]
	if accountID == "" {
		return nil, nil
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		updatedAt = time.Time{}
	}
	return &model.SessionPointer{ClientID: clientID, AccountID: accountID, UpdatedAt: updatedAt.UTC()}, nil
}

func (r *redisSessionRepo) Set(ctx context.Context, clientID, accountID string) error {
	key := redisclient.SessionKey(clientID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"account_id", accountID,
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, sessionTTL)
		return nil
	})
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (r *redisSessionRepo) Clear(ctx context.Context, clientID string) error {
	if err := r.client.Del(ctx, redisclient.SessionKey(clientID)).Err(); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

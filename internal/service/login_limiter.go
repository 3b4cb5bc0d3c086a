package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/studydesk/account-core/internal/redis"
	"github.com/studydesk/account-core/internal/util"
)

const loginCleanupPeriod = 5 * time.Minute

// LoginLimiter throttles failed sign-ins per normalized email.
type LoginLimiter interface {
	Allowed(ctx context.Context, email string) bool
	RecordFailure(ctx context.Context, email string)
	Reset(ctx context.Context, email string)
}

type loginAttempt struct {
	count       int
	windowStart time.Time
}

// MemoryLoginLimiter counts failures in a fixed window per process.
type MemoryLoginLimiter struct {
	maxAttempts int
	window      time.Duration

	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLoginLimiter(maxAttempts int, window time.Duration) *MemoryLoginLimiter {
	return &MemoryLoginLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string]*loginAttempt),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLoginLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < loginCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for key, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > l.window {
			delete(l.attempts, key)
		}
	}
}

func (l *MemoryLoginLimiter) Allowed(_ context.Context, email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[email]
	if !exists || now.Sub(attempt.windowStart) > l.window {
		return true
	}
	return attempt.count < l.maxAttempts
}

func (l *MemoryLoginLimiter) RecordFailure(_ context.Context, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	attempt, exists := l.attempts[email]
	if !exists || now.Sub(attempt.windowStart) > l.window {
		l.attempts[email] = &loginAttempt{count: 1, windowStart: now}
		return
	}
	attempt.count++
}

func (l *MemoryLoginLimiter) Reset(_ context.Context, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, email)
}

// failureWindowScript trims the sliding window and returns how many failures remain
// in it. With ARGV[3] == "1" it first records a new failure.
var failureWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local record = ARGV[3]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if record == "1" then
    redis.call('ZADD', key, now, now .. '-' .. math.random())
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 10)
end

return redis.call('ZCARD', key)
`)

// RedisLoginLimiter shares the failure window between every process using the store.
type RedisLoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRedisLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLoginLimiter) key(email string) string {
	return redisclient.LoginAttemptsKey(util.HashToken(email))
}

func (l *RedisLoginLimiter) run(ctx context.Context, email string, record bool) (int64, error) {
	flag := "0"
	if record {
		flag = "1"
	}
	return failureWindowScript.Run(
		ctx,
		l.client,
		[]string{l.key(email)},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		flag,
	).Int64()
}

func (l *RedisLoginLimiter) Allowed(ctx context.Context, email string) bool {
	count, err := l.run(ctx, email, false)
	if err != nil {
		log.Warn().Err(err).Msg("login limit check failed, allowing attempt")
		return true
	}
	return count < int64(l.maxAttempts)
}

func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, email string) {
	if _, err := l.run(ctx, email, true); err != nil {
		log.Warn().Err(err).Msg("failed to record login failure")
	}
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, email string) {
	if err := l.client.Del(ctx, l.key(email)).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to reset login failures")
	}
}

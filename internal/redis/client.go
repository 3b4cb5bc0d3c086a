package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionKey holds the session pointer hash for one client.
func SessionKey(clientID string) string {
	return fmt.Sprintf("session:%s", clientID)
}

// AccountChannel carries change notifications for one account.
func AccountChannel(accountID string) string {
	return fmt.Sprintf("account:%s", accountID)
}

// LoginAttemptsKey holds the failed-login window for one normalized email.
func LoginAttemptsKey(email string) string {
	return fmt.Sprintf("loginlimit:%s", email)
}

// Package redis holds the gateway's redis connection and the key layout shared by the
// event stream and the rate limiter.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

const (
	sessionEventPrefix = "session-events:"
	rateLimitPrefix    = "ratelimit:"
)

// Client is shared by every gateway component that talks to redis.
type Client struct {
	*redis.Client
}

// NewClient connects to redisURL (redis:// or rediss://) and fails unless the server
// answers a ping within ctx and the connect timeout.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

// Check reports whether redis answers; it backs the health endpoint.
func (c *Client) Check(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// SessionEventChannel is the pub/sub channel carrying one session's client events.
func SessionEventChannel(sessionID string) string {
	return sessionEventPrefix + sessionID
}

// RateLimitKey is the sorted-set key holding one caller's request window.
func RateLimitKey(key string) string {
	return rateLimitPrefix + key
}

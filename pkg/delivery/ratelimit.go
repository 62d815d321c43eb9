package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitedProvider wraps another provider with a per-recipient daily
// send cap tracked in redis. Hitting the cap surfaces as a transient
// error so the step is retried later instead of being discarded.
type RateLimitedProvider struct {
	next      Provider
	client    *redis.Client
	dailyCap  int
	keyPrefix string
	logger    *slog.Logger
}

func NewRateLimitedProvider(next Provider, redisURL string, dailyCap int, logger *slog.Logger) (*RateLimitedProvider, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &RateLimitedProvider{
		next:      next,
		client:    redis.NewClient(opts),
		dailyCap:  dailyCap,
		keyPrefix: "cadence:sends:",
		logger:    logger.With("provider", "ratelimit"),
	}, nil
}

func (p *RateLimitedProvider) Send(ctx context.Context, message Message) (string, error) {
	key := p.keyPrefix + message.To + ":" + time.Now().UTC().Format("2006-01-02")

	count, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		return "", NewTransientError(fmt.Errorf("rate limit check: %w", err))
	}

	if count == 1 {
		if err := p.client.Expire(ctx, key, 24*time.Hour).Err(); err != nil {
			p.logger.Warn("Failed to set rate limit key expiry", "key", key, "error", err)
		}
	}

	if int(count) > p.dailyCap {
		p.logger.Warn("Recipient over daily send cap", "to", message.To, "count", count, "cap", p.dailyCap)

		return "", NewTransientError(fmt.Errorf("recipient %s over daily cap of %d sends", message.To, p.dailyCap))
	}

	return p.next.Send(ctx, message)
}

func (p *RateLimitedProvider) Close() error {
	return p.client.Close()
}

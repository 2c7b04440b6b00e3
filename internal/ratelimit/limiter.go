package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/iaaps/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyEndpointClient = "iaaps:ratelimit:%s:%s"

var ErrInvalidRate = errors.New("invalid_rate_limit")

// Limiter throttles expensive endpoints per client. A nil or disabled
// Limiter allows everything.
type Limiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*Limiter, error) {
	if client == nil {
		return nil, nil
	}
	if cfg.RateLimitRate <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, ErrInvalidRate
	}
	return &Limiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimitRate,
		burst:  cfg.RateLimitBurst,
		log:    log.Named("ratelimit"),
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for (scope, client). Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, scope, client string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyEndpointClient, strings.TrimSpace(scope), strings.TrimSpace(client))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.String("scope", scope), zap.Error(err))
		return Result{Allowed: true}, err
	}
	return res, nil
}

// NewRedisClient returns nil when REDIS_ADDR is unset; consumers treat a
// nil client as "no shared state".
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

package ratelimit

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// compare-and-delete, so an expired holder cannot drop a successor's lock
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrNotConfigured = errors.New("redis_not_configured")
	ErrEmptyKey      = errors.New("empty_key")
	ErrInvalidTTL    = errors.New("invalid_ttl")
)

// Locker is a single-key redis mutex for the refresh job. Tokens are
// "<host>/<uuid>" so an operator can see which instance holds a key.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	host    string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseScript),
		host:    host,
	}
}

// TryLock returns ok=false without error when another holder owns key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if err := l.check(key); err != nil {
		return "", false, err
	}
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	token = l.host + "/" + uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// Holder reports the host currently owning key, or "" when it is free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	if err := l.check(key); err != nil {
		return "", err
	}
	token, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return HolderOf(token), nil
}

// HolderOf extracts the host part of a lock token.
func HolderOf(token string) string {
	host, _, found := strings.Cut(token, "/")
	if !found {
		return ""
	}
	return host
}

func (l *Locker) check(key string) error {
	if l == nil || l.client == nil {
		return ErrNotConfigured
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/iaaps/internal/ratelimit"
	"go.uber.org/fx"
)

// Lock serializes refreshes of a shared data source across instances.
type Lock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
	Holder(ctx context.Context, key string) (string, error)
}

var _ Lock = (*ratelimit.Locker)(nil)

type LockResult struct {
	fx.Out

	Lock Lock
}

// ProvideLock exposes the redis locker as a Lock. Without redis the Lock is
// nil and every refresh runs unguarded.
func ProvideLock(locker *ratelimit.Locker) LockResult {
	if locker == nil {
		return LockResult{}
	}
	return LockResult{Lock: locker}
}

package cron

import (
	"context"
	"time"
)

// Locker hands out per-job distributed locks. *redis.Client satisfies it.
type Locker interface {
	LockKey(name string) string
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, owner string) (bool, error)
}

package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by LockManager.Acquire when another holder already
// owns the lock.
var ErrLockHeld = errors.New("lock already held")

// PredictionCache provides fast prediction metadata lookups for the read path.
type PredictionCache interface {
	Set(ctx context.Context, rec PredictionRecord) error
	Get(ctx context.Context, id uint64) (PredictionRecord, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter throttles requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion, used to keep background
// jobs single-flight across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

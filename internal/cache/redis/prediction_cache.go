package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/miko-labs/futurify/internal/domain"
)

const predictionTTL = 5 * time.Minute

// PredictionCache implements domain.PredictionCache using JSON-serialized
// prediction records under plain string keys.
//
// Key schema:
//
//	prediction:{id} - JSON-encoded PredictionRecord
type PredictionCache struct {
	rdb *redis.Client
}

// NewPredictionCache creates a PredictionCache backed by the given Client.
func NewPredictionCache(c *Client) *PredictionCache {
	return &PredictionCache{rdb: c.Underlying()}
}

func predictionKey(id uint64) string {
	return "prediction:" + strconv.FormatUint(id, 10)
}

// Set stores a prediction record with a 5-minute TTL.
func (pc *PredictionCache) Set(ctx context.Context, rec domain.PredictionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal prediction %d: %w", rec.ID, err)
	}
	if err := pc.rdb.Set(ctx, predictionKey(rec.ID), data, predictionTTL).Err(); err != nil {
		return fmt.Errorf("redis: set prediction %d: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a prediction record by id. It returns domain.ErrNotFound
// when the key does not exist.
func (pc *PredictionCache) Get(ctx context.Context, id uint64) (domain.PredictionRecord, error) {
	data, err := pc.rdb.Get(ctx, predictionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PredictionRecord{}, domain.ErrNotFound
		}
		return domain.PredictionRecord{}, fmt.Errorf("redis: get prediction %d: %w", id, err)
	}

	var rec domain.PredictionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.PredictionRecord{}, fmt.Errorf("redis: unmarshal prediction %d: %w", id, err)
	}
	return rec, nil
}

// Invalidate removes a prediction record from the cache.
func (pc *PredictionCache) Invalidate(ctx context.Context, id uint64) error {
	if err := pc.rdb.Del(ctx, predictionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prediction %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PredictionCache = (*PredictionCache)(nil)

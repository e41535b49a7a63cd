// Package pipeline hosts background jobs that run alongside the serving
// path. The archiver sweeps closed predictions from the durable mirror into
// object storage once their retention window has passed.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miko-labs/futurify/internal/domain"
)

// archiveLockKey is the distributed lock that keeps archive sweeps
// single-flight across service replicas.
const archiveLockKey = "archiver"

// Archiver moves closed predictions from the database mirror to object
// storage and stamps them archived.
type Archiver struct {
	predictions   domain.PredictionStore
	blob          domain.BlobWriter
	locks         domain.LockManager
	retentionDays int
	prefix        string
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver. locks may be nil, in which case sweeps are
// not serialized across replicas.
func NewArchiver(
	predictions domain.PredictionStore,
	blob domain.BlobWriter,
	locks domain.LockManager,
	retentionDays int,
	prefix string,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		predictions:   predictions,
		blob:          blob,
		locks:         locks,
		retentionDays: retentionDays,
		prefix:        prefix,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Run executes a single archive sweep. Predictions closed longer ago than the
// retention window are serialized to JSON, uploaded, and marked archived. A
// failure on one prediction is logged and does not stop the sweep.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, 10*time.Minute)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archiver: sweep already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("archiver: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	recs, err := a.predictions.ListClosedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiver: list closed predictions: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	a.logger.InfoContext(ctx, "archiver: sweep started",
		slog.Time("cutoff", cutoff),
		slog.Int("candidates", len(recs)),
	)

	var archived int
	for _, rec := range recs {
		if err := a.archiveOne(ctx, rec); err != nil {
			a.logger.ErrorContext(ctx, "archiver: archive failed",
				slog.Uint64("id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}

	a.logger.InfoContext(ctx, "archiver: sweep complete",
		slog.Int("archived", archived),
		slog.Int("failed", len(recs)-archived),
	)
	return nil
}

func (a *Archiver) archiveOne(ctx context.Context, rec domain.PredictionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prediction %d: %w", rec.ID, err)
	}

	key := fmt.Sprintf("%s/%d.json", a.prefix, rec.ID)
	if err := a.blob.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return err
	}

	// Mark only after the upload succeeded so a failed sweep retries.
	return a.predictions.MarkArchived(ctx, rec.ID)
}

// RunLoop runs a sweep immediately and then on every tick of the interval
// until the context is cancelled.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.InfoContext(ctx, "archiver: loop started", slog.Duration("interval", interval))

	if err := a.Run(ctx); err != nil {
		a.logger.ErrorContext(ctx, "archiver: sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver: loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archiver: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

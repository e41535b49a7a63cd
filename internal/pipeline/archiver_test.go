package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miko-labs/futurify/internal/domain"
)

type fakePredictionStore struct {
	closed   []domain.PredictionRecord
	archived []uint64
	listErr  error
}

func (s *fakePredictionStore) Upsert(context.Context, domain.PredictionRecord) error { return nil }

func (s *fakePredictionStore) GetByID(context.Context, uint64) (domain.PredictionRecord, error) {
	return domain.PredictionRecord{}, domain.ErrNotFound
}

func (s *fakePredictionStore) ListClosedBefore(_ context.Context, cutoff time.Time) ([]domain.PredictionRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.PredictionRecord
	for _, rec := range s.closed {
		if rec.ClosedAt != nil && !rec.ClosedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakePredictionStore) MarkArchived(_ context.Context, id uint64) error {
	s.archived = append(s.archived, id)
	return nil
}

type fakeBlobWriter struct {
	objects map[string][]byte
	failKey string
}

func (w *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if path == w.failKey {
		return assert.AnError
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[path] = b
	return nil
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() {}, nil
}

func closedRecord(id uint64, closedAt time.Time) domain.PredictionRecord {
	return domain.PredictionRecord{
		ID:           id,
		Title:        "Closed market",
		Options:      []string{"Yes", "No"},
		OptionCount:  2,
		IsOpen:       false,
		ClosedAt:     &closedAt,
		TotalHandles: []string{"0xaa", "0xbb", "0xcc", "0xdd"},
	}
}

func TestArchiverRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("archives predictions past retention", func(t *testing.T) {
		store := &fakePredictionStore{closed: []domain.PredictionRecord{
			closedRecord(1, now.Add(-40*24*time.Hour)),
			closedRecord(2, now.Add(-5*24*time.Hour)), // inside retention
		}}
		blob := &fakeBlobWriter{}
		locks := &fakeLocks{}

		a := NewArchiver(store, blob, locks, 30, "predictions", logger)
		a.now = func() time.Time { return now }

		require.NoError(t, a.Run(context.Background()))

		assert.Equal(t, []uint64{1}, store.archived)
		assert.Equal(t, 1, locks.acquired)
		require.Contains(t, blob.objects, "predictions/1.json")

		var rec domain.PredictionRecord
		require.NoError(t, json.Unmarshal(blob.objects["predictions/1.json"], &rec))
		assert.Equal(t, uint64(1), rec.ID)
		assert.Len(t, rec.TotalHandles, 4)
	})

	t.Run("skips when lock is held elsewhere", func(t *testing.T) {
		store := &fakePredictionStore{closed: []domain.PredictionRecord{
			closedRecord(1, now.Add(-40*24*time.Hour)),
		}}
		a := NewArchiver(store, &fakeBlobWriter{}, &fakeLocks{held: true}, 30, "predictions", logger)
		a.now = func() time.Time { return now }

		require.NoError(t, a.Run(context.Background()))
		assert.Empty(t, store.archived)
	})

	t.Run("upload failure leaves the record unarchived", func(t *testing.T) {
		store := &fakePredictionStore{closed: []domain.PredictionRecord{
			closedRecord(1, now.Add(-40*24*time.Hour)),
			closedRecord(2, now.Add(-40*24*time.Hour)),
		}}
		blob := &fakeBlobWriter{failKey: "predictions/1.json"}

		a := NewArchiver(store, blob, nil, 30, "predictions", logger)
		a.now = func() time.Time { return now }

		require.NoError(t, a.Run(context.Background()))
		assert.Equal(t, []uint64{2}, store.archived)
	})
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miko-labs/futurify/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a PredictionStore backed by the given pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

// Upsert inserts or updates the mirror row for a prediction.
func (s *PredictionStore) Upsert(ctx context.Context, rec domain.PredictionRecord) error {
	const query = `
		INSERT INTO predictions (
			id, title, options, option_count, creator,
			created_at, is_open, closed_at, total_handles, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			title         = EXCLUDED.title,
			options       = EXCLUDED.options,
			option_count  = EXCLUDED.option_count,
			is_open       = EXCLUDED.is_open,
			closed_at     = EXCLUDED.closed_at,
			total_handles = EXCLUDED.total_handles,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Title, rec.Options, int16(rec.OptionCount), rec.Creator,
		rec.CreatedAt, rec.IsOpen, rec.ClosedAt, rec.TotalHandles,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert prediction %d: %w", rec.ID, err)
	}
	return nil
}

const predictionCols = `id, title, options, option_count, creator,
	created_at, is_open, closed_at, total_handles`

func scanPrediction(row pgx.Row) (domain.PredictionRecord, error) {
	var rec domain.PredictionRecord
	var optionCount int16
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Options, &optionCount, &rec.Creator,
		&rec.CreatedAt, &rec.IsOpen, &rec.ClosedAt, &rec.TotalHandles,
	)
	if err != nil {
		return domain.PredictionRecord{}, err
	}
	rec.OptionCount = uint8(optionCount)
	return rec, nil
}

// GetByID retrieves the mirror row for a prediction.
func (s *PredictionStore) GetByID(ctx context.Context, id uint64) (domain.PredictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionCols+` FROM predictions WHERE id = $1`, id)
	rec, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PredictionRecord{}, domain.ErrNotFound
		}
		return domain.PredictionRecord{}, fmt.Errorf("postgres: get prediction %d: %w", id, err)
	}
	return rec, nil
}

// ListClosedBefore returns unarchived predictions closed at or before cutoff.
func (s *PredictionStore) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]domain.PredictionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionCols+`
		 FROM predictions
		 WHERE is_open = FALSE AND archived_at IS NULL AND closed_at <= $1
		 ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed predictions: %w", err)
	}
	defer rows.Close()

	var recs []domain.PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed prediction: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed predictions rows: %w", err)
	}
	return recs, nil
}

// MarkArchived stamps the prediction as archived to object storage.
func (s *PredictionStore) MarkArchived(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE predictions SET archived_at = NOW() WHERE id = $1 AND archived_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark prediction %d archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

package domain

import (
	"context"
	"time"
)

// PredictionRecord is the flattened, serializable form of a Prediction used
// by the persistence mirror, the cache, and the archiver. Confidential totals
// appear only as opaque handle strings.
type PredictionRecord struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title"`
	Options      []string   `json:"options"`
	OptionCount  uint8      `json:"option_count"`
	Creator      string     `json:"creator"`
	CreatedAt    time.Time  `json:"created_at"`
	IsOpen       bool       `json:"is_open"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	TotalHandles []string   `json:"total_handles"`
}

// Record flattens the prediction into its serializable mirror form.
func (p Prediction) Record() PredictionRecord {
	handles := make([]string, TotalSlots)
	for i, t := range p.Totals {
		handles[i] = t.Handle().Hex()
	}
	return PredictionRecord{
		ID:           p.ID,
		Title:        p.Title,
		Options:      append([]string(nil), p.Options...),
		OptionCount:  p.OptionCount,
		Creator:      p.Creator.Hex(),
		CreatedAt:    p.CreatedAt,
		IsOpen:       p.IsOpen,
		ClosedAt:     p.ClosedAt,
		TotalHandles: handles,
	}
}

// PredictionStore is the durable mirror of public prediction state. The
// in-memory registry remains the source of truth; mirror writes are
// best-effort and never fail an operation.
type PredictionStore interface {
	Upsert(ctx context.Context, rec PredictionRecord) error
	GetByID(ctx context.Context, id uint64) (PredictionRecord, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time) ([]PredictionRecord, error)
	MarkArchived(ctx context.Context, id uint64) error
}

// GrantStore persists the append-only decrypt-permission log.
type GrantStore interface {
	Append(ctx context.Context, g Grant) error
	ListByHandle(ctx context.Context, handle string) ([]Grant, error)
}

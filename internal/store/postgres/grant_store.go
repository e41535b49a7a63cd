package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miko-labs/futurify/internal/domain"
)

// GrantStore implements domain.GrantStore using PostgreSQL. The table is
// append-only; there is no update or delete path.
type GrantStore struct {
	pool *pgxpool.Pool
}

// NewGrantStore creates a GrantStore backed by the given pool.
func NewGrantStore(pool *pgxpool.Pool) *GrantStore {
	return &GrantStore{pool: pool}
}

// Append writes one grant record.
func (s *GrantStore) Append(ctx context.Context, g domain.Grant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO grant_log (handle, kind, account, granted_at) VALUES ($1, $2, $3, $4)`,
		g.Handle, string(g.Kind), g.Account, g.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append grant for %s: %w", g.Handle, err)
	}
	return nil
}

// ListByHandle returns every grant recorded for a handle, oldest first.
func (s *GrantStore) ListByHandle(ctx context.Context, handle string) ([]domain.Grant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT handle, kind, account, granted_at FROM grant_log WHERE handle = $1 ORDER BY id`,
		handle)
	if err != nil {
		return nil, fmt.Errorf("postgres: list grants for %s: %w", handle, err)
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		var g domain.Grant
		var kind string
		if err := rows.Scan(&g.Handle, &kind, &g.Account, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan grant: %w", err)
		}
		g.Kind = domain.PrincipalKind(kind)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list grants rows: %w", err)
	}
	return grants, nil
}

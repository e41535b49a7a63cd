// Package gateway is the decryption boundary: it converts a granted
// ciphertext handle into a cleartext value, and nothing else does. The engine
// only ever widens permissions; every cleartext recovery funnels through the
// gateway's grant check.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miko-labs/futurify/internal/access"
	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

// Gateway checks decrypt permissions against the access manager and resolves
// granted handles through the coprocessor.
type Gateway struct {
	access *access.Manager
	cop    *fhe.Coprocessor
	logger *slog.Logger
}

// New creates a Gateway over the given permission manager and coprocessor.
func New(acc *access.Manager, cop *fhe.Coprocessor, logger *slog.Logger) *Gateway {
	return &Gateway{
		access: acc,
		cop:    cop,
		logger: logger.With(slog.String("component", "gateway")),
	}
}

// Decrypt returns the cleartext behind the handle if the principal holds a
// matching grant. An ungranted request fails with domain.ErrUnauthorized
// without revealing whether the handle exists.
func (g *Gateway) Decrypt(ctx context.Context, h fhe.Handle, p domain.Principal) (uint64, error) {
	if !g.access.CanDecrypt(h, p) {
		g.logger.WarnContext(ctx, "gateway: decrypt denied",
			slog.String("handle", h.Hex()),
			slog.String("principal", string(p.Kind)),
		)
		return 0, fmt.Errorf("gateway: decrypt %s as %s: %w", h.Hex(), p.Kind, domain.ErrUnauthorized)
	}

	value, err := g.cop.Reveal(h)
	if err != nil {
		return 0, fmt.Errorf("gateway: reveal %s: %w", h.Hex(), err)
	}
	return value, nil
}

// Grants reports the current grant set for a handle, the read surface the
// off-chain decryption collaborator consumes.
func (g *Gateway) Grants(h fhe.Handle) []domain.Grant {
	return g.access.Grants(h)
}

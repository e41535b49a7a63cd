package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miko-labs/futurify/internal/access"
	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

func newGateway(t *testing.T) (*Gateway, *fhe.Coprocessor, *access.Manager) {
	t.Helper()
	cop, err := fhe.NewCoprocessor(nil)
	require.NoError(t, err)
	acc := access.NewManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(acc, cop, logger), cop, acc
}

func TestDecrypt(t *testing.T) {
	gw, cop, acc := newGateway(t)
	ctx := context.Background()
	owner := common.HexToAddress("0x0101010101010101010101010101010101010101")
	other := common.HexToAddress("0x0202020202020202020202020202020202020202")

	ct := cop.TrivialEncrypt(77, fhe.TypeUint64)

	t.Run("ungranted handle is unauthorized for everyone", func(t *testing.T) {
		for _, p := range []domain.Principal{
			domain.ServicePrincipal(),
			domain.AccountPrincipal(owner),
			domain.PublicPrincipal(),
		} {
			_, err := gw.Decrypt(ctx, ct.Handle(), p)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		}
	})

	t.Run("account grant admits only that account", func(t *testing.T) {
		acc.GrantAccount(ct.Handle(), owner)

		v, err := gw.Decrypt(ctx, ct.Handle(), domain.AccountPrincipal(owner))
		require.NoError(t, err)
		assert.Equal(t, uint64(77), v)

		_, err = gw.Decrypt(ctx, ct.Handle(), domain.AccountPrincipal(other))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("denial does not reveal whether the handle exists", func(t *testing.T) {
		var ghost fhe.Handle
		ghost[0] = 0xff
		_, err := gw.Decrypt(ctx, ghost, domain.PublicPrincipal())
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("granted but unregistered handle surfaces the coprocessor error", func(t *testing.T) {
		var ghost fhe.Handle
		ghost[1] = 0xee
		acc.GrantPublic(ghost)
		_, err := gw.Decrypt(ctx, ghost, domain.PublicPrincipal())
		assert.ErrorIs(t, err, fhe.ErrUnknownHandle)
	})
}

func TestGrantsReport(t *testing.T) {
	gw, cop, acc := newGateway(t)
	owner := common.HexToAddress("0x0101010101010101010101010101010101010101")

	ct := cop.TrivialEncrypt(1, fhe.TypeBool)
	assert.Empty(t, gw.Grants(ct.Handle()))

	acc.GrantAccount(ct.Handle(), owner)
	acc.GrantService(ct.Handle())

	grants := gw.Grants(ct.Handle())
	require.Len(t, grants, 2)
	kinds := map[domain.PrincipalKind]bool{}
	for _, g := range grants {
		kinds[g.Kind] = true
	}
	assert.True(t, kinds[domain.PrincipalAccount])
	assert.True(t, kinds[domain.PrincipalService])
}

package registry

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

var (
	creator = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	someone = common.HexToAddress("0x1234567890123456789012345678901234567890")
)

func setup(t *testing.T) (*fhe.Coprocessor, *Registry) {
	t.Helper()
	cop, err := fhe.NewCoprocessor(nil)
	require.NoError(t, err)
	return cop, New(cop)
}

func TestCreate(t *testing.T) {
	cop, reg := setup(t)
	now := time.Now()

	t.Run("valid create", func(t *testing.T) {
		pred, err := reg.Create("Rain tomorrow?", []string{"Yes", "No", "Maybe"}, creator, now)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), pred.ID)
		assert.Equal(t, uint8(3), pred.OptionCount)
		assert.True(t, pred.IsOpen)
		assert.Nil(t, pred.ClosedAt)
		assert.Equal(t, creator, pred.Creator)

		// All four slots initialized to encrypted zero regardless of the
		// option count.
		for _, total := range pred.Totals {
			require.True(t, total.Initialized())
			v, err := cop.Reveal(total.Handle())
			require.NoError(t, err)
			assert.Equal(t, uint64(0), v)
		}
	})

	t.Run("sequential ids", func(t *testing.T) {
		pred, err := reg.Create("Second market", []string{"A", "B"}, creator, now)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pred.ID)
		assert.Equal(t, uint64(2), reg.Count())
	})

	t.Run("option count outside 2..4 fails without advancing the counter", func(t *testing.T) {
		before := reg.Count()

		_, err := reg.Create("One option", []string{"Only"}, creator, now)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = reg.Create("Five options", []string{"A", "B", "C", "D", "E"}, creator, now)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = reg.Create("No options", nil, creator, now)
		assert.ErrorIs(t, err, domain.ErrValidation)

		assert.Equal(t, before, reg.Count())
	})

	t.Run("empty title or option fails", func(t *testing.T) {
		_, err := reg.Create("   ", []string{"A", "B"}, creator, now)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = reg.Create("Title", []string{"A", " "}, creator, now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestGet(t *testing.T) {
	_, reg := setup(t)
	now := time.Now()

	created, err := reg.Create("Market", []string{"Yes", "No"}, creator, now)
	require.NoError(t, err)

	got, err := reg.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)

	_, err = reg.Get(0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = reg.Get(99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("snapshots are isolated from the arena", func(t *testing.T) {
		got.Options[0] = "mutated"
		fresh, err := reg.Get(created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Yes", fresh.Options[0])
	})
}

func TestClose(t *testing.T) {
	_, reg := setup(t)
	now := time.Now()
	pred, err := reg.Create("Market", []string{"Yes", "No"}, creator, now)
	require.NoError(t, err)

	t.Run("non-creator cannot close", func(t *testing.T) {
		_, err := reg.Close(pred.ID, someone, now)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("creator closes once", func(t *testing.T) {
		closed, err := reg.Close(pred.ID, creator, now)
		require.NoError(t, err)
		assert.False(t, closed.IsOpen)
		require.NotNil(t, closed.ClosedAt)
	})

	t.Run("second close fails", func(t *testing.T) {
		_, err := reg.Close(pred.ID, creator, now)
		assert.ErrorIs(t, err, domain.ErrMarketClosed)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := reg.Close(42, creator, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTotalsAndWagers(t *testing.T) {
	cop, reg := setup(t)
	now := time.Now()
	pred, err := reg.Create("Market", []string{"Yes", "No", "Maybe"}, creator, now)
	require.NoError(t, err)

	t.Run("add to total accumulates", func(t *testing.T) {
		next, err := reg.AddToTotal(pred.ID, 1, cop.TrivialEncrypt(500, fhe.TypeUint64))
		require.NoError(t, err)
		v, err := cop.Reveal(next.Handle())
		require.NoError(t, err)
		assert.Equal(t, uint64(500), v)

		next, err = reg.AddToTotal(pred.ID, 1, cop.TrivialEncrypt(250, fhe.TypeUint64))
		require.NoError(t, err)
		v, err = cop.Reveal(next.Handle())
		require.NoError(t, err)
		assert.Equal(t, uint64(750), v)

		got, err := reg.Get(pred.ID)
		require.NoError(t, err)
		assert.Equal(t, next.Handle(), got.Totals[1].Handle())
	})

	t.Run("slot bounds", func(t *testing.T) {
		_, err := reg.AddToTotal(pred.ID, -1, cop.TrivialEncrypt(0, fhe.TypeUint64))
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = reg.AddToTotal(pred.ID, domain.TotalSlots, cop.TrivialEncrypt(0, fhe.TypeUint64))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("wager overwrite", func(t *testing.T) {
		_, err := reg.WagerOf(pred.ID, someone)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		first := domain.Wager{Choice: cop.TrivialEncrypt(1, fhe.TypeUint8), Amount: cop.TrivialEncrypt(100, fhe.TypeUint64), PlacedAt: now}
		require.NoError(t, reg.SetWager(pred.ID, someone, first))

		second := domain.Wager{Choice: cop.TrivialEncrypt(2, fhe.TypeUint8), Amount: cop.TrivialEncrypt(300, fhe.TypeUint64), PlacedAt: now}
		require.NoError(t, reg.SetWager(pred.ID, someone, second))

		got, err := reg.WagerOf(pred.ID, someone)
		require.NoError(t, err)
		assert.Equal(t, second.Amount.Handle(), got.Amount.Handle())
	})
}

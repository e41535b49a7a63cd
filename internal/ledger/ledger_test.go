package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miko-labs/futurify/internal/fhe"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func setup(t *testing.T) (*fhe.Coprocessor, *Ledger) {
	t.Helper()
	cop, err := fhe.NewCoprocessor(nil)
	require.NoError(t, err)
	return cop, New(cop)
}

func reveal(t *testing.T, cop *fhe.Coprocessor, ct fhe.Ciphertext) uint64 {
	t.Helper()
	v, err := cop.Reveal(ct.Handle())
	require.NoError(t, err)
	return v
}

func TestBalanceAutoInit(t *testing.T) {
	cop, led := setup(t)

	assert.False(t, led.Has(alice))
	bal := led.Balance(alice)
	assert.True(t, led.Has(alice))
	assert.Equal(t, uint64(0), reveal(t, cop, bal))
}

func TestCredit(t *testing.T) {
	cop, led := setup(t)

	bal := led.Credit(alice, cop.TrivialEncrypt(1_000_000, fhe.TypeUint64))
	assert.Equal(t, uint64(1_000_000), reveal(t, cop, bal))

	bal = led.Credit(alice, cop.TrivialEncrypt(500, fhe.TypeUint64))
	assert.Equal(t, uint64(1_000_500), reveal(t, cop, bal))

	// Accounts are independent.
	assert.Equal(t, uint64(0), reveal(t, cop, led.Balance(bob)))
}

func TestDebitMasked(t *testing.T) {
	cop, led := setup(t)
	led.Credit(alice, cop.TrivialEncrypt(1_000_000, fhe.TypeUint64))

	t.Run("allowed debit spends the requested amount", func(t *testing.T) {
		spend := led.DebitMasked(alice,
			cop.TrivialEncrypt(500, fhe.TypeUint64),
			cop.TrivialEncrypt(1, fhe.TypeBool),
		)
		assert.Equal(t, uint64(500), reveal(t, cop, spend))
		assert.Equal(t, uint64(999_500), reveal(t, cop, led.Balance(alice)))
	})

	t.Run("denied debit spends zero", func(t *testing.T) {
		spend := led.DebitMasked(alice,
			cop.TrivialEncrypt(123_456, fhe.TypeUint64),
			cop.TrivialEncrypt(0, fhe.TypeBool),
		)
		assert.Equal(t, uint64(0), reveal(t, cop, spend))
		assert.Equal(t, uint64(999_500), reveal(t, cop, led.Balance(alice)))
	})

	t.Run("denied debit still produces a fresh balance handle", func(t *testing.T) {
		before := led.Balance(alice).Handle()
		led.DebitMasked(alice,
			cop.TrivialEncrypt(1, fhe.TypeUint64),
			cop.TrivialEncrypt(0, fhe.TypeBool),
		)
		assert.NotEqual(t, before, led.Balance(alice).Handle())
	})

	t.Run("untouched account debits from zero", func(t *testing.T) {
		spend := led.DebitMasked(bob,
			cop.TrivialEncrypt(10, fhe.TypeUint64),
			cop.TrivialEncrypt(0, fhe.TypeBool),
		)
		assert.Equal(t, uint64(0), reveal(t, cop, spend))
		assert.Equal(t, uint64(0), reveal(t, cop, led.Balance(bob)))
	})
}

// Package ledger maintains the per-account confidential balances. Balances
// are ciphertext handles; the ledger never observes an amount in cleartext.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/fhe"
)

// Ledger stores one confidential balance per account. A balance is created
// lazily as encrypted zero on first touch and is never destroyed.
//
// The ledger is not safe for concurrent use on its own; the engine serializes
// every mutation, standing in for the ordering authority.
type Ledger struct {
	alg      fhe.Algebra
	balances map[common.Address]fhe.Ciphertext
}

// New creates an empty ledger over the given algebra.
func New(alg fhe.Algebra) *Ledger {
	return &Ledger{
		alg:      alg,
		balances: make(map[common.Address]fhe.Ciphertext),
	}
}

// Balance returns the account's balance ciphertext, initializing it to
// encrypted zero on first touch.
func (l *Ledger) Balance(account common.Address) fhe.Ciphertext {
	bal, ok := l.balances[account]
	if !ok {
		bal = l.alg.TrivialEncrypt(0, fhe.TypeUint64)
		l.balances[account] = bal
	}
	return bal
}

// Has reports whether the account has ever been credited or debited.
func (l *Ledger) Has(account common.Address) bool {
	_, ok := l.balances[account]
	return ok
}

// Credit adds amount to the account's balance and returns the new balance
// ciphertext. It performs no validation: credits originate from publicly
// known purchase amounts that were trivially encrypted by the caller.
func (l *Ledger) Credit(account common.Address, amount fhe.Ciphertext) fhe.Ciphertext {
	next := l.alg.Add(l.Balance(account), amount)
	l.balances[account] = next
	return next
}

// DebitMasked subtracts select(allowed, requested, 0) from the account's
// balance and returns the spend ciphertext. It never fails and never reveals
// whether allowed was true: when the confidential condition is false the
// balance is decremented by an encrypted zero. The caller is responsible for
// folding the balance-sufficiency check into allowed, which keeps the
// balance non-negative.
func (l *Ledger) DebitMasked(account common.Address, requested, allowed fhe.Ciphertext) fhe.Ciphertext {
	zero := l.alg.TrivialEncrypt(0, fhe.TypeUint64)
	spend := l.alg.Select(allowed, requested, zero)
	l.balances[account] = l.alg.Sub(l.Balance(account), spend)
	return spend
}

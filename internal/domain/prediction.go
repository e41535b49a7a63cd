// Package domain holds the core types of the confidential prediction-market
// engine and the interfaces its supporting infrastructure implements.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/fhe"
)

// Option count bounds for a prediction. TotalSlots is fixed regardless of the
// actual option count so that the shape of the confidential total array never
// depends on market parameters.
const (
	MinOptions = 2
	MaxOptions = 4
	TotalSlots = 4
)

// Prediction is one user-created market. Title, options, creator, and
// lifecycle state are public; the per-option wager totals are confidential
// ciphertexts. Slots >= OptionCount are never mutated and carry no meaning.
type Prediction struct {
	ID          uint64
	Title       string
	Options     []string
	OptionCount uint8
	Creator     common.Address
	CreatedAt   time.Time
	IsOpen      bool
	ClosedAt    *time.Time
	Totals      [TotalSlots]fhe.Ciphertext
}

package domain

import (
	"time"

	"github.com/miko-labs/futurify/internal/fhe"
)

// Wager is one account's stored bet on one prediction: a confidential option
// index and a confidential amount. An account holds at most one wager per
// prediction; a later bet overwrites it. A bet that failed its confidential
// validity checks is stored as choice 0 / amount 0 and is indistinguishable
// from a genuine zero bet on option 0.
type Wager struct {
	Choice   fhe.Ciphertext // uint8 option index
	Amount   fhe.Ciphertext // uint64 effectively-applied amount
	PlacedAt time.Time
}

// BetInput carries the externally encrypted bet parameters: two ciphertext
// blobs produced by the wallet collaborator and the single proof attesting
// both were encrypted for this engine-and-account pair.
type BetInput struct {
	Choice []byte
	Amount []byte
	Proof  []byte
}

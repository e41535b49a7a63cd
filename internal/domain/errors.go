package domain

import "errors"

// Structural failures. Each aborts an operation before any state is touched
// and is safe to surface: all of them depend only on public data. A bet that
// is invalid on confidential grounds (insufficient balance, out-of-range
// choice) is deliberately NOT an error: it commits as a masked zero wager so
// that success or failure never leaks the secret condition. Proof failures on
// external ciphertexts are surfaced as fhe.ErrProofMismatch by the algebra
// layer.
var (
	ErrValidation   = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
	ErrMarketClosed = errors.New("market closed")
	ErrUnauthorized = errors.New("unauthorized")
)

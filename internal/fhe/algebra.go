// Package fhe provides the encrypted value algebra the settlement engine is
// built on: opaque confidential scalars with homomorphic arithmetic,
// comparison, and branch-free selection. The engine consumes the algebra as a
// capability and never observes cleartext; the package also ships an
// in-process simulated coprocessor so the whole system runs and tests without
// external key-management infrastructure.
package fhe

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Proof and revelation failures surfaced by the algebra layer.
var (
	// ErrProofMismatch is returned when an externally supplied ciphertext
	// fails its accompanying validity proof. The enclosing operation must
	// abort before touching any state.
	ErrProofMismatch = errors.New("fhe: input proof mismatch")

	// ErrUnknownHandle is returned when a handle does not reference a value
	// held by the coprocessor.
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")
)

// Algebra is the confidential scalar capability. Every operation is evaluated
// over ciphertexts: neither the operands, nor the result, nor - for Select -
// the condition are revealed to the evaluator.
//
// Operand typing is a programmer contract, not request validation: arithmetic
// and ordering require two numeric operands of the same type, And requires
// two booleans, and Select requires a boolean condition with branches of one
// common type. Violations panic. Select is total: given well-typed operands
// it always yields a result of the branch type.
type Algebra interface {
	// TrivialEncrypt lifts a publicly known cleartext into a ciphertext of
	// the given type. Used for minting from public payment amounts and for
	// the zero/index constants of the masking arithmetic.
	TrivialEncrypt(value uint64, typ ScalarType) Ciphertext

	// Add returns a + b, wrapping within the operand type width.
	Add(a, b Ciphertext) Ciphertext
	// Sub returns a - b, wrapping within the operand type width.
	Sub(a, b Ciphertext) Ciphertext

	// Lt returns the confidential boolean a < b.
	Lt(a, b Ciphertext) Ciphertext
	// Le returns the confidential boolean a <= b.
	Le(a, b Ciphertext) Ciphertext
	// Eq returns the confidential boolean a == b.
	Eq(a, b Ciphertext) Ciphertext
	// And returns the confidential boolean a && b.
	And(a, b Ciphertext) Ciphertext

	// Select returns a if cond is (confidentially) true, else b, without
	// revealing cond. This is the branch-free primitive every conditional
	// mutation in the engine is expressed through.
	Select(cond, a, b Ciphertext) Ciphertext

	// VerifyInputs converts externally supplied ciphertext blobs into
	// internal confidential values. The single proof attests that every blob
	// was produced for this coprocessor-and-account pair; any mismatch in
	// proof, account binding, or declared type fails the whole conversion
	// with ErrProofMismatch and registers nothing.
	VerifyInputs(blobs [][]byte, types []ScalarType, proof []byte, account common.Address) ([]Ciphertext, error)
}

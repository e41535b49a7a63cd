package fhe

import (
	"fmt"
	"math"
)

// ScalarType identifies the confidential scalar type behind a handle.
type ScalarType uint8

const (
	// TypeBool is a confidential boolean (0 or 1).
	TypeBool ScalarType = iota
	// TypeUint8 is a confidential unsigned 8-bit integer (option indices).
	TypeUint8
	// TypeUint64 is a confidential unsigned 64-bit integer (amounts).
	TypeUint64
)

// String implements fmt.Stringer.
func (t ScalarType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeUint8:
		return "uint8"
	case TypeUint64:
		return "uint64"
	default:
		return fmt.Sprintf("ScalarType(%d)", uint8(t))
	}
}

// mask returns the value mask for the type's bit width. All arithmetic in the
// coprocessor wraps within this mask, matching unsigned modular semantics.
func (t ScalarType) mask() uint64 {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return math.MaxUint8
	case TypeUint64:
		return math.MaxUint64
	default:
		panic(fmt.Sprintf("fhe: unknown scalar type %d", uint8(t)))
	}
}

// Ciphertext is a typed reference to a confidential scalar. The zero value is
// uninitialized and references nothing.
type Ciphertext struct {
	handle Handle
	typ    ScalarType
}

// Handle returns the opaque handle of the ciphertext.
func (c Ciphertext) Handle() Handle {
	return c.handle
}

// Type returns the confidential scalar type of the ciphertext.
func (c Ciphertext) Type() ScalarType {
	return c.typ
}

// Initialized reports whether the ciphertext references a value.
func (c Ciphertext) Initialized() bool {
	return !c.handle.IsZero()
}

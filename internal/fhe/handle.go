package fhe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// Handle is an opaque reference to a confidential value held by the
// coprocessor. A handle carries no cleartext information by itself; cleartext
// recovery goes through the decryption gateway after a permission check.
type Handle [HandleSize]byte

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h Handle) Hex() string {
	return hexutil.Encode(h[:])
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return h.Hex()
}

// IsZero reports whether the handle is the all-zero value, i.e. references
// nothing.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// ParseHandle decodes a 0x-prefixed hex string into a Handle.
func ParseHandle(s string) (Handle, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("fhe: parse handle %q: %w", s, err)
	}
	if len(raw) != HandleSize {
		return Handle{}, fmt.Errorf("fhe: parse handle %q: want %d bytes, got %d", s, HandleSize, len(raw))
	}
	var h Handle
	copy(h[:], raw)
	return h, nil
}

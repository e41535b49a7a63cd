package fhe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Opcodes folded into handle derivation so every operation yields a distinct,
// deterministic handle lineage.
const (
	opTrivial byte = iota + 1
	opAdd
	opSub
	opLt
	opLe
	opEq
	opAnd
	opSelect
	opInput
)

// handleDomain separates futurify handles from any other keccak usage.
var handleDomain = []byte("futurify/fhe/handle/v1")

// Coprocessor is the in-process simulated FHE coprocessor. It stores
// plaintexts behind 32-byte keccak-derived handles and evaluates the algebra
// over them, presenting to the engine exactly the surface a remote
// coprocessor would: handles in, handles out, no cleartext. Reveal is the
// only way out and is reserved for the decryption gateway and tests.
//
// Handles are derived deterministically from the operation sequence, so a
// replayed operation log produces identical handles - the property the
// replicated state machine relies on.
type Coprocessor struct {
	mu       sync.Mutex
	inputKey []byte // AES-256 key for external input blobs
	nonce    uint64
	values   map[Handle]uint64
}

var _ Algebra = (*Coprocessor)(nil)

// NewCoprocessor creates a simulated coprocessor. inputKey is the 32-byte
// symmetric key external inputs are sealed under; if nil, a random key is
// generated (inputs must then be encrypted through this same instance).
func NewCoprocessor(inputKey []byte) (*Coprocessor, error) {
	if inputKey == nil {
		inputKey = make([]byte, 32)
		if _, err := rand.Read(inputKey); err != nil {
			return nil, fmt.Errorf("fhe: generate input key: %w", err)
		}
	}
	if len(inputKey) != 32 {
		return nil, fmt.Errorf("fhe: input key must be 32 bytes, got %d", len(inputKey))
	}
	key := make([]byte, 32)
	copy(key, inputKey)
	return &Coprocessor{
		inputKey: key,
		values:   make(map[Handle]uint64),
	}, nil
}

// newHandle derives the next handle for an operation over the given operands.
// Caller must hold mu.
func (c *Coprocessor) newHandle(op byte, operands ...Handle) Handle {
	d := sha3.NewLegacyKeccak256()
	d.Write(handleDomain)
	d.Write([]byte{op})
	for _, o := range operands {
		d.Write(o[:])
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], c.nonce)
	c.nonce++
	d.Write(seq[:])

	var h Handle
	copy(h[:], d.Sum(nil))
	return h
}

// register stores value under a fresh handle. Caller must hold mu.
func (c *Coprocessor) register(value uint64, typ ScalarType, op byte, operands ...Handle) Ciphertext {
	h := c.newHandle(op, operands...)
	c.values[h] = value & typ.mask()
	return Ciphertext{handle: h, typ: typ}
}

// lookup resolves a ciphertext to its plaintext. Caller must hold mu.
// An unknown handle is a programmer error: ciphertexts only enter the system
// through this coprocessor.
func (c *Coprocessor) lookup(ct Ciphertext) uint64 {
	v, ok := c.values[ct.handle]
	if !ok {
		panic(fmt.Sprintf("fhe: operand references unknown handle %s", ct.handle))
	}
	return v
}

// TrivialEncrypt lifts a public cleartext into a ciphertext of the given type.
func (c *Coprocessor) TrivialEncrypt(value uint64, typ ScalarType) Ciphertext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(value, typ, opTrivial)
}

// Add returns a + b, wrapping within the operand type width.
func (c *Coprocessor) Add(a, b Ciphertext) Ciphertext {
	requireNumeric("Add", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(c.lookup(a)+c.lookup(b), a.typ, opAdd, a.handle, b.handle)
}

// Sub returns a - b, wrapping within the operand type width.
func (c *Coprocessor) Sub(a, b Ciphertext) Ciphertext {
	requireNumeric("Sub", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(c.lookup(a)-c.lookup(b), a.typ, opSub, a.handle, b.handle)
}

// Lt returns the confidential boolean a < b.
func (c *Coprocessor) Lt(a, b Ciphertext) Ciphertext {
	requireNumeric("Lt", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(boolBit(c.lookup(a) < c.lookup(b)), TypeBool, opLt, a.handle, b.handle)
}

// Le returns the confidential boolean a <= b.
func (c *Coprocessor) Le(a, b Ciphertext) Ciphertext {
	requireNumeric("Le", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(boolBit(c.lookup(a) <= c.lookup(b)), TypeBool, opLe, a.handle, b.handle)
}

// Eq returns the confidential boolean a == b.
func (c *Coprocessor) Eq(a, b Ciphertext) Ciphertext {
	requireSameType("Eq", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(boolBit(c.lookup(a) == c.lookup(b)), TypeBool, opEq, a.handle, b.handle)
}

// And returns the confidential boolean a && b.
func (c *Coprocessor) And(a, b Ciphertext) Ciphertext {
	if a.typ != TypeBool || b.typ != TypeBool {
		panic(fmt.Sprintf("fhe: And requires bool operands, got %s and %s", a.typ, b.typ))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.register(c.lookup(a)&c.lookup(b), TypeBool, opAnd, a.handle, b.handle)
}

// Select returns a if cond is true, else b, without revealing cond.
func (c *Coprocessor) Select(cond, a, b Ciphertext) Ciphertext {
	if cond.typ != TypeBool {
		panic(fmt.Sprintf("fhe: Select condition must be bool, got %s", cond.typ))
	}
	requireSameType("Select", a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.lookup(b)
	if c.lookup(cond) != 0 {
		v = c.lookup(a)
	}
	return c.register(v, a.typ, opSelect, cond.handle, a.handle, b.handle)
}

// Reveal resolves a handle to its plaintext. This is the decryption gateway's
// back end; the engine never calls it.
func (c *Coprocessor) Reveal(h Handle) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	return v, nil
}

func requireSameType(op string, a, b Ciphertext) {
	if a.typ != b.typ {
		panic(fmt.Sprintf("fhe: %s operand type mismatch: %s vs %s", op, a.typ, b.typ))
	}
}

func requireNumeric(op string, a, b Ciphertext) {
	requireSameType(op, a, b)
	if a.typ == TypeBool {
		panic(fmt.Sprintf("fhe: %s requires numeric operands, got bool", op))
	}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

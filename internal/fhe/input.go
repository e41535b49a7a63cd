package fhe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// inputProofDomain separates input proofs from every other keccak usage.
var inputProofDomain = []byte("futurify/fhe/input-proof/v1")

// sealedLen is the plaintext layout sealed inside an input blob:
// 1 type byte followed by the 8-byte big-endian value.
const sealedLen = 1 + 8

// EncryptInput seals a cleartext scalar into an external ciphertext blob
// bound to the submitting account. This is the wallet-collaborator side of
// the input protocol; in production it runs in the client SDK against the
// coprocessor's public input key. The account is folded in as AEAD
// associated data, so a blob replayed under a different account fails to
// open.
func (c *Coprocessor) EncryptInput(value uint64, typ ScalarType, account common.Address) ([]byte, error) {
	gcm, err := c.inputAEAD()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fhe: input nonce: %w", err)
	}

	plain := make([]byte, sealedLen)
	plain[0] = byte(typ)
	binary.BigEndian.PutUint64(plain[1:], value&typ.mask())

	return gcm.Seal(nonce, nonce, plain, account.Bytes()), nil
}

// ProveInputs produces the single validity proof covering a set of input
// blobs for one account. The proof commits to every blob and the account, so
// neither can be swapped without detection.
func ProveInputs(blobs [][]byte, account common.Address) []byte {
	parts := make([][]byte, 0, len(blobs)+2)
	parts = append(parts, inputProofDomain)
	for _, b := range blobs {
		parts = append(parts, ethcrypto.Keccak256(b))
	}
	parts = append(parts, account.Bytes())
	return ethcrypto.Keccak256(parts...)
}

// VerifyInputs implements Algebra. It checks the proof against the blobs and
// account, opens each blob, checks the sealed type against the declared one,
// and registers a fresh handle per value. On any mismatch it returns
// ErrProofMismatch and registers nothing.
func (c *Coprocessor) VerifyInputs(blobs [][]byte, types []ScalarType, proof []byte, account common.Address) ([]Ciphertext, error) {
	if len(blobs) != len(types) {
		return nil, fmt.Errorf("fhe: %d blobs for %d declared types: %w", len(blobs), len(types), ErrProofMismatch)
	}

	want := ProveInputs(blobs, account)
	if subtle.ConstantTimeCompare(want, proof) != 1 {
		return nil, ErrProofMismatch
	}

	gcm, err := c.inputAEAD()
	if err != nil {
		return nil, err
	}

	// Open everything before registering anything, so a bad blob in position
	// N cannot leave positions < N registered.
	values := make([]uint64, len(blobs))
	for i, blob := range blobs {
		ns := gcm.NonceSize()
		if len(blob) < ns+sealedLen {
			return nil, fmt.Errorf("fhe: input blob %d truncated: %w", i, ErrProofMismatch)
		}
		plain, err := gcm.Open(nil, blob[:ns], blob[ns:], account.Bytes())
		if err != nil || len(plain) != sealedLen {
			return nil, fmt.Errorf("fhe: input blob %d: %w", i, ErrProofMismatch)
		}
		if ScalarType(plain[0]) != types[i] {
			return nil, fmt.Errorf("fhe: input blob %d sealed as %s, declared %s: %w",
				i, ScalarType(plain[0]), types[i], ErrProofMismatch)
		}
		values[i] = binary.BigEndian.Uint64(plain[1:]) & types[i].mask()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cts := make([]Ciphertext, len(values))
	for i, v := range values {
		cts[i] = c.register(v, types[i], opInput)
	}
	return cts, nil
}

func (c *Coprocessor) inputAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.inputKey)
	if err != nil {
		return nil, fmt.Errorf("fhe: input cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fhe: input aead: %w", err)
	}
	return gcm, nil
}

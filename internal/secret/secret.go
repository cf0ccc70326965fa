// Package secret implements the secret/hashlock codec used by HTLC escrows.
// A secret is exactly 32 random bytes; its public commitment is the
// keccak256 hash, matching what the settlement engine verifies on-chain.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/majorswap/relayer/pkg/helpers"
)

// Common errors
var (
	ErrInvalidFormat  = errors.New("secret must be a 0x-prefixed 32-byte hex string")
	ErrSecretMismatch = errors.New("secret does not match hash lock")
)

// Generate creates a new 32-byte secret and its hash lock.
func Generate() (secret [32]byte, hashLock [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return [32]byte{}, [32]byte{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, Hash(secret), nil
}

// Hash computes the hash lock (keccak256) for a secret.
func Hash(secret [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(secret[:]))
	return out
}

// Verify checks that a secret is the pre-image of a hash lock.
func Verify(secret, hashLock [32]byte) bool {
	computed := Hash(secret)
	return subtle.ConstantTimeCompare(computed[:], hashLock[:]) == 1
}

// Parse decodes a 0x-prefixed 32-byte hex string into a secret.
func Parse(s string) ([32]byte, error) {
	b, err := helpers.ParseHex32(s)
	if err != nil {
		return [32]byte{}, ErrInvalidFormat
	}
	return b, nil
}

// ParseHashLock decodes a 0x-prefixed 32-byte hex hash lock.
func ParseHashLock(s string) ([32]byte, error) {
	b, err := helpers.ParseHex32(s)
	if err != nil {
		return [32]byte{}, fmt.Errorf("invalid hash lock: %w", helpers.ErrNotHex32)
	}
	return b, nil
}

// Format encodes a 32-byte value as a 0x-prefixed hex string.
func Format(b [32]byte) string {
	return helpers.Hex32(b)
}

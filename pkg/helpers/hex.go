// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// ErrNotHex32 is returned when a value is not a 0x-prefixed 32-byte hex string.
var ErrNotHex32 = errors.New("value must be a 0x-prefixed 32-byte hex string")

// HexToBytes converts a hex string (with or without 0x prefix) to bytes.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// BytesToHex converts bytes to a hex string with 0x prefix.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ParseHex32 parses a 0x-prefixed 64-character hex string into a 32-byte array.
// The 0x prefix is mandatory, matching the on-wire secret/hashlock format.
func ParseHex32(s string) ([32]byte, error) {
	var out [32]byte
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return out, ErrNotHex32
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return out, ErrNotHex32
	}
	copy(out[:], b)
	return out, nil
}

// Hex32 formats a 32-byte array as a 0x-prefixed hex string.
func Hex32(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

// HexToBigInt converts a hex string (with or without 0x prefix) to *big.Int.
// Malformed input yields zero.
func HexToBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	val, ok := new(big.Int).SetString(s, 16)
	if !ok || val == nil {
		return big.NewInt(0)
	}
	return val
}

// BigIntToHex converts a *big.Int to a hex string with 0x prefix.
func BigIntToHex(n *big.Int) string {
	if n == nil || n.Sign() == 0 {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

// Package signer defines the signing capability injected into the chain
// adapters. Orchestration code never sees raw key material; it only holds
// a Signer.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrNoKey is returned when constructing a signer without key material.
var ErrNoKey = errors.New("signer private key is required")

// Signer signs EIP-712 typed data and authorizes transactions.
type Signer interface {
	// Address returns the signing account's address.
	Address() common.Address

	// SignTypedData signs an EIP-712 payload and returns the 65-byte
	// signature with the recovery byte in Ethereum convention (v = 27/28).
	SignTypedData(td apitypes.TypedData) ([]byte, error)

	// Transactor returns bound transact options for the given chain.
	Transactor(chainID *big.Int) (*bind.TransactOpts, error)
}

// Local is a Signer backed by an in-process secp256k1 key.
type Local struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocal creates a Local signer from a hex-encoded private key.
func NewLocal(hexKey string) (*Local, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Local{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signing account's address.
func (l *Local) Address() common.Address {
	return l.addr
}

// SignTypedData signs the EIP-712 digest of the payload.
func (l *Local) SignTypedData(td apitypes.TypedData) ([]byte, error) {
	digest, err := TypedDataDigest(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	// crypto.Sign yields v in {0,1}; contracts expect {27,28}.
	sig[64] += 27
	return sig, nil
}

// Transactor returns keyed transact options for the given chain.
func (l *Local) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(l.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// TypedDataDigest computes the EIP-712 signing digest
// keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data message: %w", err)
	}
	raw := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(raw), nil
}

// Package order derives the canonical identifier for an escrow leg.
// The hash is keccak256 over the abi-encoded immutable escrow parameters
// and must match what the settlement engine derives on-chain, so any
// change to the encoding here is a consensus break with the contracts.
package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Common errors
var (
	ErrMissingAmount    = errors.New("order amount is required")
	ErrInvalidTimeLocks = errors.New("time locks must satisfy deployed < withdrawal < cancellation")
)

// TimeLocks bounds the escrow lifecycle, as unix seconds.
type TimeLocks struct {
	DeployedAt     uint64 `json:"deployed"`
	WithdrawalAt   uint64 `json:"withdrawal"`
	CancellationAt uint64 `json:"cancellation"`
}

// Valid checks the strict ordering the escrow contract enforces.
func (t TimeLocks) Valid() bool {
	return t.DeployedAt < t.WithdrawalAt && t.WithdrawalAt < t.CancellationAt
}

// Params holds the immutable parameters of one escrow leg.
type Params struct {
	HashLock      [32]byte
	Token         common.Address
	Maker         common.Address
	Taker         common.Address
	Resolver      common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	TimeLocks     TimeLocks
}

// hashArgs is the abi tuple the settlement engine hashes over.
var hashArgs abi.Arguments

func init() {
	bytes32, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	address, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}

	hashArgs = abi.Arguments{
		{Name: "hashLock", Type: bytes32},
		{Name: "token", Type: address},
		{Name: "maker", Type: address},
		{Name: "taker", Type: address},
		{Name: "resolver", Type: address},
		{Name: "amount", Type: uint256},
		{Name: "safetyDeposit", Type: uint256},
		{Name: "deployedAt", Type: uint256},
		{Name: "withdrawalAt", Type: uint256},
		{Name: "cancellationAt", Type: uint256},
	}
}

// Hash computes the canonical order hash for the leg.
// Recomputing from the same parameters always reproduces the same hash.
func (p Params) Hash() ([32]byte, error) {
	if p.Amount == nil {
		return [32]byte{}, ErrMissingAmount
	}
	if !p.TimeLocks.Valid() {
		return [32]byte{}, ErrInvalidTimeLocks
	}

	safetyDeposit := p.SafetyDeposit
	if safetyDeposit == nil {
		safetyDeposit = big.NewInt(0)
	}

	packed, err := hashArgs.Pack(
		p.HashLock,
		p.Token,
		p.Maker,
		p.Taker,
		p.Resolver,
		p.Amount,
		safetyDeposit,
		new(big.Int).SetUint64(p.TimeLocks.DeployedAt),
		new(big.Int).SetUint64(p.TimeLocks.WithdrawalAt),
		new(big.Int).SetUint64(p.TimeLocks.CancellationAt),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode order params: %w", err)
	}

	var out [32]byte
	copy(out[:], crypto.Keccak256(packed))
	return out, nil
}

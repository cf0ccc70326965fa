// Package chains provides a uniform interface to each supported
// blockchain's escrow settlement engine and token-approval primitive.
package chains

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/majorswap/relayer/internal/order"
	"github.com/majorswap/relayer/internal/permit"
)

// Adapter error kinds. Callers branch on these to decide whether a
// failure is retryable, so adapters must wrap every error in one of them.
var (
	ErrNetwork           = errors.New("chain rpc unavailable or timed out")
	ErrReverted          = errors.New("contract call reverted")
	ErrInsufficientFunds = errors.New("insufficient funds for transaction")
	ErrUnsupportedChain  = errors.New("unsupported chain")
)

// EscrowState mirrors the settlement engine's escrow state enum.
type EscrowState uint8

const (
	EscrowStateNone      EscrowState = 0
	EscrowStateActive    EscrowState = 1
	EscrowStateWithdrawn EscrowState = 2
	EscrowStateCancelled EscrowState = 3
)

func (s EscrowState) String() string {
	switch s {
	case EscrowStateNone:
		return "none"
	case EscrowStateActive:
		return "active"
	case EscrowStateWithdrawn:
		return "withdrawn"
	case EscrowStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PermitArtifact is a constructed gasless approval: the permit itself and
// the typed-data payload its owner must sign.
type PermitArtifact struct {
	Permit    permit.Permit      `json:"permit"`
	TypedData apitypes.TypedData `json:"typedData"`
}

// EscrowParams carries everything createEscrow needs for one leg.
type EscrowParams struct {
	OrderHash     [32]byte
	HashLock      [32]byte
	Token         common.Address
	Maker         common.Address
	Taker         common.Address
	Resolver      common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	TimeLocks     order.TimeLocks
	PermitData    []byte
}

// Adapter reads and writes one chain's settlement engine.
// All methods that hit the network take a context and return errors
// wrapped in one of the adapter error kinds.
type Adapter interface {
	// Name returns the chain identifier ("sepolia", "monad").
	Name() string

	// ChainID returns the EVM chain id.
	ChainID() uint64

	// BuildPermit constructs a gasless approval for the given token and
	// amount, scoped to the given spender.
	BuildPermit(token common.Address, amount *big.Int, spender common.Address, nonce, deadline *big.Int) PermitArtifact

	// SignPermit signs a permit with the adapter's own (resolver) signer
	// and returns the encoded permitData blob.
	SignPermit(p permit.Permit) ([]byte, error)

	// CreateEscrow deploys an escrow and returns its address and tx hash.
	CreateEscrow(ctx context.Context, params EscrowParams) (common.Address, common.Hash, error)

	// Settle releases an escrow by revealing the secret.
	Settle(ctx context.Context, orderHash [32]byte, secret [32]byte) (common.Hash, error)

	// EscrowExists reports whether an escrow exists for the order hash.
	EscrowExists(ctx context.Context, orderHash [32]byte) (bool, error)

	// EscrowState returns the escrow's on-chain state.
	EscrowState(ctx context.Context, orderHash [32]byte) (EscrowState, error)

	// SettlementEngine returns the settlement contract address.
	SettlementEngine() common.Address
}

// Registry holds the configured adapters keyed by chain name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for a chain name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, name)
	}
	return a, nil
}

// Supports reports whether a chain name is configured.
func (r *Registry) Supports(name string) bool {
	_, ok := r.adapters[name]
	return ok
}

// Names returns the configured chain names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

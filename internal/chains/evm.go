package chains

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/permit"
	"github.com/majorswap/relayer/internal/signer"
	"github.com/majorswap/relayer/pkg/logging"
)

// settlementEngineABI is the call surface the relayer uses. The engine's
// internal accounting is out of scope; only these entry points matter.
const settlementEngineABI = `[
	{"type":"function","name":"createEscrow","stateMutability":"payable","inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"hashLock","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"maker","type":"address"},
		{"name":"taker","type":"address"},
		{"name":"resolver","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"safetyDeposit","type":"uint256"},
		{"name":"timeLocks","type":"uint256[3]"},
		{"name":"permitData","type":"bytes"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"settle","stateMutability":"nonpayable","inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"secret","type":"bytes32"}],
		"outputs":[]},
	{"type":"function","name":"escrowExists","stateMutability":"view","inputs":[
		{"name":"orderHash","type":"bytes32"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getEscrow","stateMutability":"view","inputs":[
		{"name":"orderHash","type":"bytes32"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getEscrowState","stateMutability":"view","inputs":[
		{"name":"orderHash","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint8"}]}
]`

// EVMAdapter implements Adapter for an EVM network's settlement engine.
type EVMAdapter struct {
	network  *config.Network
	client   *ethclient.Client
	contract *bind.BoundContract
	signer   signer.Signer
	chainID  *big.Int
	log      *logging.Logger
}

// NewEVMAdapter connects an adapter to the network's RPC endpoint.
// The signer is the resolver's transaction-signing capability.
func NewEVMAdapter(network *config.Network, sgn signer.Signer) (*EVMAdapter, error) {
	client, err := ethclient.Dial(network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", ErrNetwork, network.Name, err)
	}

	parsed, err := abi.JSON(strings.NewReader(settlementEngineABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement engine abi: %w", err)
	}

	engine := network.SettlementEngineAddress()
	return &EVMAdapter{
		network:  network,
		client:   client,
		contract: bind.NewBoundContract(engine, parsed, client, client, client),
		signer:   sgn,
		chainID:  new(big.Int).SetUint64(network.ChainID),
		log:      logging.GetDefault().Component("chain:" + network.Name),
	}, nil
}

// Close releases the underlying RPC connection.
func (a *EVMAdapter) Close() {
	a.client.Close()
}

// Name returns the chain identifier.
func (a *EVMAdapter) Name() string { return a.network.Name }

// ChainID returns the EVM chain id.
func (a *EVMAdapter) ChainID() uint64 { return a.network.ChainID }

// SettlementEngine returns the settlement contract address.
func (a *EVMAdapter) SettlementEngine() common.Address {
	return a.network.SettlementEngineAddress()
}

// BuildPermit constructs the gasless approval artifact for this chain.
func (a *EVMAdapter) BuildPermit(token common.Address, amount *big.Int, spender common.Address, nonce, deadline *big.Int) PermitArtifact {
	p := permit.Permit{
		Token:    token,
		Amount:   amount,
		Spender:  spender,
		Nonce:    nonce,
		Deadline: deadline,
	}
	return PermitArtifact{
		Permit:    p,
		TypedData: p.TypedData(a.network.ChainID, a.network.Permit2Address()),
	}
}

// SignPermit signs a permit with the resolver's key and encodes permitData.
func (a *EVMAdapter) SignPermit(p permit.Permit) ([]byte, error) {
	sig, err := a.signer.SignTypedData(p.TypedData(a.network.ChainID, a.network.Permit2Address()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit on %s: %w", a.network.Name, err)
	}
	return p.EncodeData(sig)
}

// CreateEscrow deploys an escrow for one leg and returns its address.
// The safety deposit rides along as transaction value.
func (a *EVMAdapter) CreateEscrow(ctx context.Context, params EscrowParams) (common.Address, common.Hash, error) {
	auth, err := a.signer.Transactor(a.chainID)
	if err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	auth.Context = ctx
	auth.Value = params.SafetyDeposit

	timeLocks := [3]*big.Int{
		new(big.Int).SetUint64(params.TimeLocks.DeployedAt),
		new(big.Int).SetUint64(params.TimeLocks.WithdrawalAt),
		new(big.Int).SetUint64(params.TimeLocks.CancellationAt),
	}

	tx, err := a.contract.Transact(auth, "createEscrow",
		params.OrderHash,
		params.HashLock,
		params.Token,
		params.Maker,
		params.Taker,
		params.Resolver,
		params.Amount,
		params.SafetyDeposit,
		timeLocks,
		params.PermitData,
	)
	if err != nil {
		return common.Address{}, common.Hash{}, classify("createEscrow", a.network.Name, err)
	}

	if _, err := bind.WaitMined(ctx, a.client, tx); err != nil {
		return common.Address{}, tx.Hash(), classify("createEscrow wait", a.network.Name, err)
	}

	escrowAddr, err := a.getEscrow(ctx, params.OrderHash)
	if err != nil {
		return common.Address{}, tx.Hash(), err
	}

	a.log.Info("Escrow created",
		"order_hash", common.Hash(params.OrderHash).Hex(),
		"escrow", escrowAddr.Hex(),
		"tx", tx.Hash().Hex(),
	)
	return escrowAddr, tx.Hash(), nil
}

// Settle reveals the secret to release an escrow. The call is idempotent
// from the caller's perspective: retrying with the same secret after a
// network failure is safe.
func (a *EVMAdapter) Settle(ctx context.Context, orderHash [32]byte, secret [32]byte) (common.Hash, error) {
	auth, err := a.signer.Transactor(a.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	auth.Context = ctx

	tx, err := a.contract.Transact(auth, "settle", orderHash, secret)
	if err != nil {
		return common.Hash{}, classify("settle", a.network.Name, err)
	}
	if _, err := bind.WaitMined(ctx, a.client, tx); err != nil {
		return tx.Hash(), classify("settle wait", a.network.Name, err)
	}

	a.log.Info("Escrow settled",
		"order_hash", common.Hash(orderHash).Hex(),
		"tx", tx.Hash().Hex(),
	)
	return tx.Hash(), nil
}

// EscrowExists reports whether an escrow exists for the order hash.
func (a *EVMAdapter) EscrowExists(ctx context.Context, orderHash [32]byte) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := a.contract.Call(opts, &out, "escrowExists", orderHash); err != nil {
		return false, classify("escrowExists", a.network.Name, err)
	}
	exists, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: unexpected escrowExists result", ErrReverted)
	}
	return exists, nil
}

// EscrowState returns the escrow's on-chain state.
func (a *EVMAdapter) EscrowState(ctx context.Context, orderHash [32]byte) (EscrowState, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := a.contract.Call(opts, &out, "getEscrowState", orderHash); err != nil {
		return EscrowStateNone, classify("getEscrowState", a.network.Name, err)
	}
	state, ok := out[0].(uint8)
	if !ok {
		return EscrowStateNone, fmt.Errorf("%w: unexpected getEscrowState result", ErrReverted)
	}
	return EscrowState(state), nil
}

func (a *EVMAdapter) getEscrow(ctx context.Context, orderHash [32]byte) (common.Address, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := a.contract.Call(opts, &out, "getEscrow", orderHash); err != nil {
		return common.Address{}, classify("getEscrow", a.network.Name, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unexpected getEscrow result", ErrReverted)
	}
	return addr, nil
}

// classify maps a raw RPC error onto one of the adapter error kinds.
func classify(op, chain string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %s on %s: %v", ErrNetwork, op, chain, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("%w: %s on %s: %v", ErrInsufficientFunds, op, chain, err)
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "revert"),
		strings.Contains(msg, "always failing transaction"):
		return fmt.Errorf("%w: %s on %s: %v", ErrReverted, op, chain, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %s on %s: %v", ErrNetwork, op, chain, err)
	default:
		return fmt.Errorf("%w: %s on %s: %v", ErrNetwork, op, chain, err)
	}
}

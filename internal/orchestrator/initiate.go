package orchestrator

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/order"
	"github.com/majorswap/relayer/internal/secret"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/helpers"
)

// InitiateRequest describes a swap the user wants to start. QuoteID is
// the optional orderId received over the quote channel; when set,
// chain/token/amount fields default from the stored quote.
type InitiateRequest struct {
	QuoteID         string `json:"orderId,omitempty"`
	HashLock        string `json:"hashLock"`
	FromChain       string `json:"fromChain"`
	ToChain         string `json:"toChain"`
	FromToken       string `json:"fromToken"`
	ToToken         string `json:"toToken"`
	FromAmount      string `json:"fromAmount"`
	ToAmount        string `json:"toAmount"`
	UserAddress     string `json:"userAddress"`
	ReceiverAddress string `json:"receiverAddress,omitempty"`
}

// InitiateResponse carries the prepared order and the permit payload
// the user must sign before execution.
type InitiateResponse struct {
	SwapID        string                `json:"swapId"`
	Status        string                `json:"status"`
	HashLock      string                `json:"hashLock"`
	FromOrderHash string                `json:"fromOrderHash"`
	ToOrderHash   string                `json:"toOrderHash"`
	Permit        chains.PermitArtifact `json:"permit"`
	TimeLocks     order.TimeLocks       `json:"timeLocks"`
}

// Initiate validates a swap request, computes both leg order hashes,
// builds the user's permit, and persists the order awaiting signature.
func (o *Orchestrator) Initiate(req *InitiateRequest) (*InitiateResponse, error) {
	if req.QuoteID != "" {
		q, err := o.store.GetQuote(req.QuoteID)
		if err != nil {
			if err == storage.ErrQuoteNotFound {
				return nil, fmt.Errorf("%w: quote %s", ErrNotFound, req.QuoteID)
			}
			return nil, err
		}
		applyQuoteDefaults(req, q)
	}

	hashLock, err := secret.ParseHashLock(req.HashLock)
	if err != nil {
		return nil, fmt.Errorf("%w: hashLock: %v", ErrValidation, err)
	}
	if !common.IsHexAddress(req.UserAddress) {
		return nil, fmt.Errorf("%w: invalid user address", ErrValidation)
	}
	if req.ReceiverAddress == "" {
		req.ReceiverAddress = req.UserAddress
	}
	if !common.IsHexAddress(req.ReceiverAddress) {
		return nil, fmt.Errorf("%w: invalid receiver address", ErrValidation)
	}

	fromAmount, ok := new(big.Int).SetString(req.FromAmount, 10)
	if !ok || fromAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid fromAmount", ErrValidation)
	}
	toAmount, ok := new(big.Int).SetString(req.ToAmount, 10)
	if !ok || toAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid toAmount", ErrValidation)
	}

	fromAdapter, err := o.adapters.Get(req.FromChain)
	if err != nil {
		return nil, fmt.Errorf("%w: fromChain %s", ErrValidation, req.FromChain)
	}
	if _, err := o.adapters.Get(req.ToChain); err != nil {
		return nil, fmt.Errorf("%w: toChain %s", ErrValidation, req.ToChain)
	}

	fromToken, toToken, err := o.tokenAddresses(req)
	if err != nil {
		return nil, err
	}

	user := common.HexToAddress(req.UserAddress)
	receiver := common.HexToAddress(req.ReceiverAddress)
	resolver := o.signer.Address()
	deposit := o.safetyDeposit()

	// Placeholder timelocks from the current time; recomputed at
	// execution when escrows actually deploy.
	deployed, withdrawal, cancellation := o.timeLocksFrom(time.Now())
	locks := order.TimeLocks{
		DeployedAt:     deployed,
		WithdrawalAt:   withdrawal,
		CancellationAt: cancellation,
	}

	fromHash, toHash, err := legHashes(hashLock, fromToken, toToken, user, receiver, resolver, fromAmount, toAmount, deposit, locks)
	if err != nil {
		return nil, err
	}

	artifact := fromAdapter.BuildPermit(fromToken, fromAmount, fromAdapter.SettlementEngine(),
		permitNonce(), new(big.Int).SetInt64(time.Now().Add(o.cfg.PermitValidity).Unix()))

	permitJSON, err := json.Marshal(artifact.Permit)
	if err != nil {
		return nil, err
	}

	swap := &storage.SwapOrder{
		SwapID:          uuid.New().String(),
		QuoteID:         req.QuoteID,
		HashLock:        helpers.Hex32(hashLock),
		FromChain:       req.FromChain,
		ToChain:         req.ToChain,
		FromToken:       req.FromToken,
		ToToken:         req.ToToken,
		FromAmount:      req.FromAmount,
		ToAmount:        req.ToAmount,
		UserAddress:     user.Hex(),
		ReceiverAddress: receiver.Hex(),
		FromOrderHash:   helpers.Hex32(fromHash),
		ToOrderHash:     helpers.Hex32(toHash),
		DeployedAt:      locks.DeployedAt,
		WithdrawalAt:    locks.WithdrawalAt,
		CancellationAt:  locks.CancellationAt,
		Permit:          string(permitJSON),
		Status:          string(StatusPendingUserSignature),
	}
	if err := o.store.CreateOrder(swap); err != nil {
		return nil, err
	}

	if req.QuoteID != "" {
		if err := o.store.UpdateQuoteStatus(req.QuoteID, "accepted"); err != nil {
			o.log.Warn("Failed to mark quote accepted", "quoteId", req.QuoteID, "error", err)
		}
	}

	o.log.Info("Swap initiated", "swapId", swap.SwapID,
		"fromChain", swap.FromChain, "toChain", swap.ToChain,
		"fromAmount", swap.FromAmount, "toAmount", swap.ToAmount)

	return &InitiateResponse{
		SwapID:        swap.SwapID,
		Status:        swap.Status,
		HashLock:      swap.HashLock,
		FromOrderHash: swap.FromOrderHash,
		ToOrderHash:   swap.ToOrderHash,
		Permit:        artifact,
		TimeLocks:     locks,
	}, nil
}

// tokenAddresses resolves token symbols on both legs.
func (o *Orchestrator) tokenAddresses(req *InitiateRequest) (common.Address, common.Address, error) {
	var zero common.Address
	fromNet, ok := o.networks[req.FromChain]
	if !ok {
		return zero, zero, fmt.Errorf("%w: %s", chains.ErrUnsupportedChain, req.FromChain)
	}
	toNet, ok := o.networks[req.ToChain]
	if !ok {
		return zero, zero, fmt.Errorf("%w: %s", chains.ErrUnsupportedChain, req.ToChain)
	}

	fromToken, ok := fromNet.TokenAddress(req.FromToken)
	if !ok {
		return zero, zero, fmt.Errorf("%w: %s on %s", ErrUnknownToken, req.FromToken, req.FromChain)
	}
	toToken, ok := toNet.TokenAddress(req.ToToken)
	if !ok {
		return zero, zero, fmt.Errorf("%w: %s on %s", ErrUnknownToken, req.ToToken, req.ToChain)
	}
	return fromToken, toToken, nil
}

// legHashes computes the origin and destination order hashes. On the
// origin leg the user is maker and the resolver taker; the destination
// leg inverts the pair, paying out to the receiver.
func legHashes(hashLock [32]byte, fromToken, toToken, user, receiver, resolver common.Address,
	fromAmount, toAmount, deposit *big.Int, locks order.TimeLocks) ([32]byte, [32]byte, error) {

	fromHash, err := order.Params{
		HashLock:      hashLock,
		Token:         fromToken,
		Maker:         user,
		Taker:         resolver,
		Resolver:      resolver,
		Amount:        fromAmount,
		SafetyDeposit: deposit,
		TimeLocks:     locks,
	}.Hash()
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	toHash, err := order.Params{
		HashLock:      hashLock,
		Token:         toToken,
		Maker:         resolver,
		Taker:         receiver,
		Resolver:      resolver,
		Amount:        toAmount,
		SafetyDeposit: deposit,
		TimeLocks:     locks,
	}.Hash()
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	return fromHash, toHash, nil
}

func applyQuoteDefaults(req *InitiateRequest, q *storage.Quote) {
	if req.FromChain == "" {
		req.FromChain = q.FromChain
	}
	if req.ToChain == "" {
		req.ToChain = q.ToChain
	}
	if req.FromToken == "" {
		req.FromToken = q.FromToken
	}
	if req.ToToken == "" {
		req.ToToken = q.ToToken
	}
	if req.FromAmount == "" {
		req.FromAmount = q.FromChainAmount
	}
	if req.ToAmount == "" {
		req.ToAmount = q.Amount
	}
}

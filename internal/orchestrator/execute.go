package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/order"
	"github.com/majorswap/relayer/internal/permit"
	"github.com/majorswap/relayer/pkg/helpers"
)

// ExecuteRequest carries the user's signature over the permit typed
// data returned from initiation.
type ExecuteRequest struct {
	SwapID    string `json:"swapId"`
	Signature string `json:"signature"`
}

// ExecuteResponse reports the deployed escrows.
type ExecuteResponse struct {
	SwapID            string          `json:"swapId"`
	Status            string          `json:"status"`
	FromEscrowAddress string          `json:"fromEscrowAddress"`
	ToEscrowAddress   string          `json:"toEscrowAddress"`
	FromCreateTx      string          `json:"fromCreateTx"`
	ToCreateTx        string          `json:"toCreateTx"`
	TimeLocks         order.TimeLocks `json:"timeLocks"`
}

// Execute deploys the escrows for a signed swap. The origin escrow is
// funded first with the user's permit; only once the user's funds are
// locked does the resolver fund the destination escrow.
func (o *Orchestrator) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	mu := o.lock(req.SwapID)
	mu.Lock()
	defer mu.Unlock()

	swap, err := o.Status(req.SwapID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(Status(swap.Status)) {
		o.forgetLock(req.SwapID)
		return nil, fmt.Errorf("%w: swap already %s", ErrInvalidState, swap.Status)
	}

	sig, err := helpers.HexToBytes(req.Signature)
	if err != nil || len(sig) == 0 {
		return nil, fmt.Errorf("%w: invalid signature", ErrValidation)
	}

	if err := transition(swap, StatusCreatingEscrows); err != nil {
		return nil, err
	}
	if err := o.store.UpdateOrder(swap); err != nil {
		return nil, err
	}

	// From here until the chain calls, every failure is terminal: the
	// order already left pending_user_signature and has no way back.
	fromAdapter, err := o.adapters.Get(swap.FromChain)
	if err != nil {
		o.fail(swap, err)
		return nil, err
	}
	toAdapter, err := o.adapters.Get(swap.ToChain)
	if err != nil {
		o.fail(swap, err)
		return nil, err
	}

	hashLock, err := helpers.ParseHex32(swap.HashLock)
	if err != nil {
		o.fail(swap, err)
		return nil, err
	}

	fromToken, toToken, err := o.tokenAddresses(&InitiateRequest{
		FromChain: swap.FromChain, ToChain: swap.ToChain,
		FromToken: swap.FromToken, ToToken: swap.ToToken,
	})
	if err != nil {
		o.fail(swap, err)
		return nil, err
	}

	fromAmount, _ := new(big.Int).SetString(swap.FromAmount, 10)
	toAmount, _ := new(big.Int).SetString(swap.ToAmount, 10)
	user := common.HexToAddress(swap.UserAddress)
	receiver := common.HexToAddress(swap.ReceiverAddress)
	resolver := o.signer.Address()
	deposit := o.safetyDeposit()

	// Timelocks are anchored to actual deployment time, replacing the
	// placeholders computed at initiation. Order hashes move with them.
	deployed, withdrawal, cancellation := o.timeLocksFrom(time.Now())
	locks := order.TimeLocks{
		DeployedAt:     deployed,
		WithdrawalAt:   withdrawal,
		CancellationAt: cancellation,
	}
	fromHash, toHash, err := legHashes(hashLock, fromToken, toToken, user, receiver, resolver, fromAmount, toAmount, deposit, locks)
	if err != nil {
		o.fail(swap, err)
		return nil, err
	}
	swap.DeployedAt = locks.DeployedAt
	swap.WithdrawalAt = locks.WithdrawalAt
	swap.CancellationAt = locks.CancellationAt
	swap.FromOrderHash = helpers.Hex32(fromHash)
	swap.ToOrderHash = helpers.Hex32(toHash)

	var userPermit permit.Permit
	if err := json.Unmarshal([]byte(swap.Permit), &userPermit); err != nil {
		err = fmt.Errorf("stored permit corrupt: %w", err)
		o.fail(swap, err)
		return nil, err
	}
	userPermitData, err := userPermit.EncodeData(sig)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrValidation, err)
		o.fail(swap, err)
		return nil, err
	}

	// Origin leg: user's tokens move via their signed permit.
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	fromEscrow, fromTx, err := fromAdapter.CreateEscrow(callCtx, chains.EscrowParams{
		OrderHash:     fromHash,
		HashLock:      hashLock,
		Token:         fromToken,
		Maker:         user,
		Taker:         resolver,
		Resolver:      resolver,
		Amount:        fromAmount,
		SafetyDeposit: deposit,
		TimeLocks:     locks,
		PermitData:    userPermitData,
	})
	cancel()
	if err != nil {
		o.fail(swap, fmt.Errorf("origin escrow: %w", err))
		return nil, err
	}
	swap.FromEscrowAddress = fromEscrow.Hex()
	swap.FromCreateTx = fromTx.Hex()
	if err := o.store.UpdateOrder(swap); err != nil {
		return nil, err
	}

	// Destination leg: resolver signs its own permit and locks the
	// payout for the receiver.
	resolverArtifact := toAdapter.BuildPermit(toToken, toAmount, toAdapter.SettlementEngine(),
		permitNonce(), new(big.Int).SetInt64(time.Now().Add(o.cfg.PermitValidity).Unix()))
	resolverPermitData, err := toAdapter.SignPermit(resolverArtifact.Permit)
	if err != nil {
		o.fail(swap, fmt.Errorf("resolver permit: %w", err))
		return nil, err
	}

	callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
	toEscrow, toTx, err := toAdapter.CreateEscrow(callCtx, chains.EscrowParams{
		OrderHash:     toHash,
		HashLock:      hashLock,
		Token:         toToken,
		Maker:         resolver,
		Taker:         receiver,
		Resolver:      resolver,
		Amount:        toAmount,
		SafetyDeposit: deposit,
		TimeLocks:     locks,
		PermitData:    resolverPermitData,
	})
	cancel()
	if err != nil {
		o.fail(swap, fmt.Errorf("destination escrow: %w", err))
		return nil, err
	}
	swap.ToEscrowAddress = toEscrow.Hex()
	swap.ToCreateTx = toTx.Hex()

	if err := transition(swap, StatusEscrowsCreated); err != nil {
		return nil, err
	}
	if err := o.store.UpdateOrder(swap); err != nil {
		return nil, err
	}

	if err := transition(swap, StatusAwaitingSecret); err != nil {
		return nil, err
	}
	if err := o.store.UpdateOrder(swap); err != nil {
		return nil, err
	}

	o.log.Info("Escrows created", "swapId", swap.SwapID,
		"fromEscrow", swap.FromEscrowAddress, "toEscrow", swap.ToEscrowAddress)

	return &ExecuteResponse{
		SwapID:            swap.SwapID,
		Status:            swap.Status,
		FromEscrowAddress: swap.FromEscrowAddress,
		ToEscrowAddress:   swap.ToEscrowAddress,
		FromCreateTx:      swap.FromCreateTx,
		ToCreateTx:        swap.ToCreateTx,
		TimeLocks:         locks,
	}, nil
}

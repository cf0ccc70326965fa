package orchestrator

import (
	"context"
	"fmt"

	"github.com/majorswap/relayer/internal/secret"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/helpers"
)

// SettleRequest reveals the swap secret.
type SettleRequest struct {
	SwapID string `json:"swapId"`
	Secret string `json:"secret"`
}

// SettleResponse reports the settlement transactions.
type SettleResponse struct {
	SwapID           string `json:"swapId"`
	Status           string `json:"status"`
	FromSettlementTx string `json:"fromSettlementTx"`
	ToSettlementTx   string `json:"toSettlementTx"`
}

// Settle releases both escrows with the revealed secret. The
// destination escrow settles first so the user is paid before the
// resolver claims the origin funds; a partially settled swap stays in
// settling and the call can be retried.
func (o *Orchestrator) Settle(ctx context.Context, req *SettleRequest) (*SettleResponse, error) {
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

	sec, err := secret.Parse(req.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret: %v", ErrValidation, err)
	}
	hashLock, err := helpers.ParseHex32(swap.HashLock)
	if err != nil {
		return nil, err
	}
	if !secret.Verify(sec, hashLock) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, secret.ErrSecretMismatch)
	}

	switch Status(swap.Status) {
	case StatusAwaitingSecret:
		if err := transition(swap, StatusSettling); err != nil {
			return nil, err
		}
		if err := o.store.UpdateOrder(swap); err != nil {
			return nil, err
		}
	case StatusSettling:
		// Retry of a partially settled swap.
	default:
		return nil, fmt.Errorf("%w: cannot settle from %s", ErrInvalidState, swap.Status)
	}

	fromAdapter, err := o.adapters.Get(swap.FromChain)
	if err != nil {
		return nil, err
	}
	toAdapter, err := o.adapters.Get(swap.ToChain)
	if err != nil {
		return nil, err
	}

	fromHash, err := helpers.ParseHex32(swap.FromOrderHash)
	if err != nil {
		return nil, err
	}
	toHash, err := helpers.ParseHex32(swap.ToOrderHash)
	if err != nil {
		return nil, err
	}

	// Destination first: the user must be paid before the resolver
	// claims the origin escrow.
	if swap.ToSettlementTx == "" {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		tx, err := toAdapter.Settle(callCtx, toHash, sec)
		cancel()
		if err != nil {
			return nil, o.settleFailed(swap, fmt.Errorf("destination settle: %w", err))
		}
		swap.ToSettlementTx = tx.Hex()
		swap.Error = ""
		if err := o.store.UpdateOrder(swap); err != nil {
			return nil, err
		}
	}

	if swap.FromSettlementTx == "" {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		tx, err := fromAdapter.Settle(callCtx, fromHash, sec)
		cancel()
		if err != nil {
			return nil, o.settleFailed(swap, fmt.Errorf("origin settle: %w", err))
		}
		swap.FromSettlementTx = tx.Hex()
		swap.Error = ""
		if err := o.store.UpdateOrder(swap); err != nil {
			return nil, err
		}
	}

	if _, err := o.store.CreateSecret(swap.SwapID, secret.Format(sec)); err != nil {
		o.log.Warn("Failed to record secret", "swapId", swap.SwapID, "error", err)
	}

	if err := transition(swap, StatusCompleted); err != nil {
		return nil, err
	}
	if err := o.store.UpdateOrder(swap); err != nil {
		return nil, err
	}
	o.forgetLock(swap.SwapID)

	if swap.QuoteID != "" {
		if err := o.store.UpdateQuoteStatus(swap.QuoteID, "completed"); err != nil {
			o.log.Warn("Failed to mark quote completed", "quoteId", swap.QuoteID, "error", err)
		}
	}

	o.log.Info("Swap settled", "swapId", swap.SwapID,
		"toTx", swap.ToSettlementTx, "fromTx", swap.FromSettlementTx)

	return &SettleResponse{
		SwapID:           swap.SwapID,
		Status:           swap.Status,
		FromSettlementTx: swap.FromSettlementTx,
		ToSettlementTx:   swap.ToSettlementTx,
	}, nil
}

// settleFailed records a settlement-leg failure on the order without
// leaving settling; the caller may retry with the same secret.
func (o *Orchestrator) settleFailed(swap *storage.SwapOrder, cause error) error {
	swap.Error = cause.Error()
	if err := o.store.UpdateOrder(swap); err != nil {
		o.log.Error("Failed to persist settlement failure", "swapId", swap.SwapID, "error", err)
	}
	return cause
}

// Package orchestrator drives the cross-chain swap state machine:
// building orders and permits, deploying escrows on both legs, and
// settling them with the revealed secret.
package orchestrator

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/signer"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/logging"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateOrder(o *storage.SwapOrder) error
	GetOrder(swapID string) (*storage.SwapOrder, error)
	UpdateOrder(o *storage.SwapOrder) error
	GetQuote(id string) (*storage.Quote, error)
	UpdateQuoteStatus(id, status string) error
	CreateSecret(swapID, value string) (*storage.Secret, error)
}

// Orchestrator coordinates swap execution across two chains.
type Orchestrator struct {
	store    Store
	adapters *chains.Registry
	signer   signer.Signer
	networks map[string]*config.Network
	cfg      config.SwapConfig
	log      *logging.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(store Store, adapters *chains.Registry, sig signer.Signer, networks map[string]*config.Network, cfg config.SwapConfig) *Orchestrator {
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		signer:   sig,
		networks: networks,
		cfg:      cfg,
		log:      logging.GetDefault().Component("orchestrator"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock returns the per-swap mutex, creating it on first use. Swap
// mutations are serialized per swap ID so concurrent execute/settle
// calls cannot interleave.
func (o *Orchestrator) lock(swapID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	m, ok := o.locks[swapID]
	if !ok {
		m = &sync.Mutex{}
		o.locks[swapID] = m
	}
	return m
}

// forgetLock drops a swap's mutex once the order is terminal. A late
// caller re-creates the entry, reads the terminal status, and is
// rejected by the state machine.
func (o *Orchestrator) forgetLock(swapID string) {
	o.locksMu.Lock()
	delete(o.locks, swapID)
	o.locksMu.Unlock()
}

// Status returns the stored swap order.
func (o *Orchestrator) Status(swapID string) (*storage.SwapOrder, error) {
	order, err := o.store.GetOrder(swapID)
	if err != nil {
		if err == storage.ErrOrderNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, swapID)
		}
		return nil, err
	}
	return order, nil
}

// safetyDeposit parses the configured per-escrow collateral.
func (o *Orchestrator) safetyDeposit() *big.Int {
	d, ok := new(big.Int).SetString(o.cfg.SafetyDepositWei, 10)
	if !ok {
		return big.NewInt(0)
	}
	return d
}

// timeLocksFrom derives the three escrow timelocks from a deployment time.
func (o *Orchestrator) timeLocksFrom(deployed time.Time) (uint64, uint64, uint64) {
	return uint64(deployed.Unix()),
		uint64(deployed.Add(o.cfg.WithdrawalWindow).Unix()),
		uint64(deployed.Add(o.cfg.CancellationWindow).Unix())
}

// permitNonce draws a random Permit2 unordered nonce.
func permitNonce() *big.Int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return new(big.Int).SetInt64(time.Now().UnixNano())
	}
	return new(big.Int).SetUint64(binary.BigEndian.Uint64(buf[:]))
}

// fail marks an order failed and records the cause. Persistence errors
// are logged but not returned; the original failure wins.
func (o *Orchestrator) fail(order *storage.SwapOrder, cause error) {
	order.Status = string(StatusFailed)
	order.Error = cause.Error()
	if err := o.store.UpdateOrder(order); err != nil {
		o.log.Error("Failed to persist failure", "swapId", order.SwapID, "error", err)
	}
	o.forgetLock(order.SwapID)
	o.log.Error("Swap failed", "swapId", order.SwapID, "error", cause)
}

package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/permit"
	"github.com/majorswap/relayer/internal/secret"
	"github.com/majorswap/relayer/internal/signer"
	"github.com/majorswap/relayer/internal/storage"
)

// testKey is a throwaway key, never funded.
const testKey = "e2cc5c01b44547c70e2740e409322ca9b27502a2a2a5e366a5d1745f02608711"

type memStore struct {
	mu      sync.Mutex
	orders  map[string]*storage.SwapOrder
	quotes  map[string]*storage.Quote
	secrets []*storage.Secret
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[string]*storage.SwapOrder),
		quotes: make(map[string]*storage.Quote),
	}
}

func (m *memStore) CreateOrder(o *storage.SwapOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.SwapID] = &cp
	return nil
}

func (m *memStore) GetOrder(swapID string) (*storage.SwapOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[swapID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) UpdateOrder(o *storage.SwapOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.SwapID]; !ok {
		return storage.ErrOrderNotFound
	}
	cp := *o
	m.orders[o.SwapID] = &cp
	return nil
}

func (m *memStore) GetQuote(id string) (*storage.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, storage.ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memStore) UpdateQuoteStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return storage.ErrQuoteNotFound
	}
	q.Status = status
	return nil
}

func (m *memStore) CreateSecret(swapID, value string) (*storage.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &storage.Secret{ID: swapID + "-secret", SwapID: swapID, Secret: value}
	m.secrets = append(m.secrets, s)
	return s, nil
}

// callLog records chain calls across both fake adapters so tests can
// assert ordering between legs.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeAdapter struct {
	name    string
	chainID uint64
	log     *callLog

	failCreate bool
	failSettle bool
	settleOnce bool // fail the first settle, succeed after
	settled    int
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) ChainID() uint64 { return f.chainID }

func (f *fakeAdapter) SettlementEngine() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000e1")
}

func (f *fakeAdapter) BuildPermit(token common.Address, amount *big.Int, spender common.Address, nonce, deadline *big.Int) chains.PermitArtifact {
	p := permit.Permit{Token: token, Amount: amount, Spender: spender, Nonce: nonce, Deadline: deadline}
	return chains.PermitArtifact{
		Permit:    p,
		TypedData: p.TypedData(f.chainID, common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")),
	}
}

func (f *fakeAdapter) SignPermit(p permit.Permit) ([]byte, error) {
	return p.EncodeData(make([]byte, 65))
}

func (f *fakeAdapter) CreateEscrow(ctx context.Context, params chains.EscrowParams) (common.Address, common.Hash, error) {
	f.log.add("create:" + f.name)
	if f.failCreate {
		return common.Address{}, common.Hash{}, chains.ErrReverted
	}
	return common.BytesToAddress(params.OrderHash[:20]), common.BytesToHash(params.OrderHash[:]), nil
}

func (f *fakeAdapter) Settle(ctx context.Context, orderHash [32]byte, sec [32]byte) (common.Hash, error) {
	f.log.add("settle:" + f.name)
	if f.failSettle || (f.settleOnce && f.settled == 0) {
		f.settled++
		return common.Hash{}, chains.ErrNetwork
	}
	f.settled++
	return common.BytesToHash(orderHash[:]), nil
}

func (f *fakeAdapter) EscrowExists(ctx context.Context, orderHash [32]byte) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) EscrowState(ctx context.Context, orderHash [32]byte) (chains.EscrowState, error) {
	return chains.EscrowStateActive, nil
}

type fixture struct {
	orch  *Orchestrator
	store *memStore
	from  *fakeAdapter
	to    *fakeAdapter
	log   *callLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sig, err := signer.NewLocal(testKey)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	cl := &callLog{}
	from := &fakeAdapter{name: "sepolia", chainID: 11155111, log: cl}
	to := &fakeAdapter{name: "monad", chainID: 10143, log: cl}

	networks := map[string]*config.Network{
		"sepolia": {
			Name: "sepolia", ChainID: 11155111,
			Tokens: map[string]string{"USDC": "0x4e3E4E8FC04ba2B6A0cCaDA9fA478E42a7482945"},
		},
		"monad": {
			Name: "monad", ChainID: 10143,
			Tokens: map[string]string{"USDC": "0x85f754abfD3b82158E2925f877f0b201187d3a3c"},
		},
	}

	store := newMemStore()
	orch := New(store, chains.NewRegistry(from, to), sig, networks, config.SwapConfig{
		WithdrawalWindow:   5 * time.Minute,
		CancellationWindow: 30 * time.Minute,
		PermitValidity:     time.Hour,
		SafetyDepositWei:   "1000000000000000",
		CallTimeout:        time.Second,
	})

	return &fixture{orch: orch, store: store, from: from, to: to, log: cl}
}

func validInitiate(hashLock string) *InitiateRequest {
	return &InitiateRequest{
		HashLock:    hashLock,
		FromChain:   "sepolia",
		ToChain:     "monad",
		FromToken:   "USDC",
		ToToken:     "USDC",
		FromAmount:  "1000000",
		ToAmount:    "995000",
		UserAddress: "0x1111111111111111111111111111111111111111",
	}
}

func TestSwapLifecycle(t *testing.T) {
	f := newFixture(t)

	sec, hashLock, err := secret.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if init.Status != string(StatusPendingUserSignature) {
		t.Errorf("status = %s", init.Status)
	}
	if init.HashLock != secret.Format(hashLock) {
		t.Errorf("hashLock = %s, want %s", init.HashLock, secret.Format(hashLock))
	}
	if init.FromOrderHash == init.ToOrderHash {
		t.Error("leg order hashes must differ")
	}
	if init.Permit.TypedData.PrimaryType != "PermitTransferFrom" {
		t.Errorf("permit primary type = %s", init.Permit.TypedData.PrimaryType)
	}
	if !(init.TimeLocks.DeployedAt < init.TimeLocks.WithdrawalAt &&
		init.TimeLocks.WithdrawalAt < init.TimeLocks.CancellationAt) {
		t.Errorf("timelocks not ordered: %+v", init.TimeLocks)
	}

	exec, err := f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID:    init.SwapID,
		Signature: "0x" + strings.Repeat("11", 65),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Status != string(StatusAwaitingSecret) {
		t.Errorf("status = %s, want awaiting_secret", exec.Status)
	}
	if exec.FromEscrowAddress == "" || exec.ToEscrowAddress == "" {
		t.Error("escrow addresses missing")
	}

	// Replaying execute must not touch the chains again.
	before := len(f.log.snapshot())
	if _, err := f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID:    init.SwapID,
		Signature: "0x" + strings.Repeat("11", 65),
	}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replayed execute err = %v, want ErrInvalidState", err)
	}
	if got := len(f.log.snapshot()); got != before {
		t.Errorf("replayed execute made %d chain calls", got-before)
	}

	settle, err := f.orch.Settle(context.Background(), &SettleRequest{
		SwapID: init.SwapID,
		Secret: secret.Format(sec),
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settle.Status != string(StatusCompleted) {
		t.Errorf("status = %s, want completed", settle.Status)
	}

	want := []string{"create:sepolia", "create:monad", "settle:monad", "settle:sepolia"}
	got := f.log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("chain calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain calls = %v, want %v", got, want)
		}
	}

	if len(f.store.secrets) != 1 {
		t.Fatalf("persisted secrets = %d, want 1", len(f.store.secrets))
	}
	if f.store.secrets[0].Secret != secret.Format(sec) {
		t.Errorf("stored secret = %s", f.store.secrets[0].Secret)
	}

	// Settling a completed swap is rejected.
	if _, err := f.orch.Settle(context.Background(), &SettleRequest{
		SwapID: init.SwapID,
		Secret: secret.Format(sec),
	}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replayed settle err = %v, want ErrInvalidState", err)
	}

	f.orch.locksMu.Lock()
	held := len(f.orch.locks)
	f.orch.locksMu.Unlock()
	if held != 0 {
		t.Errorf("lock map holds %d entries after completion, want 0", held)
	}
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	_, hashLock, _ := secret.Generate()
	hl := secret.Format(hashLock)

	cases := []struct {
		name   string
		mutate func(*InitiateRequest)
		want   error
	}{
		{"bad hashlock", func(r *InitiateRequest) { r.HashLock = "deadbeef" }, ErrValidation},
		{"bad user address", func(r *InitiateRequest) { r.UserAddress = "not-an-address" }, ErrValidation},
		{"zero amount", func(r *InitiateRequest) { r.FromAmount = "0" }, ErrValidation},
		{"non-numeric amount", func(r *InitiateRequest) { r.ToAmount = "ten" }, ErrValidation},
		{"unknown chain", func(r *InitiateRequest) { r.FromChain = "solana" }, ErrValidation},
		{"unknown token", func(r *InitiateRequest) { r.FromToken = "WBTC" }, ErrUnknownToken},
	}

	for _, tc := range cases {
		req := validInitiate(hl)
		tc.mutate(req)
		if _, err := f.orch.Initiate(req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestSettleRejectsWrongSecret(t *testing.T) {
	f := newFixture(t)

	sec, hashLock, _ := secret.Generate()
	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID: init.SwapID, Signature: "0x" + strings.Repeat("22", 65),
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wrong, _, _ := secret.Generate()
	if wrong == sec {
		t.Fatal("generated identical secrets")
	}
	before := len(f.log.snapshot())
	_, err = f.orch.Settle(context.Background(), &SettleRequest{
		SwapID: init.SwapID, Secret: secret.Format(wrong),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if got := len(f.log.snapshot()); got != before {
		t.Errorf("wrong secret reached the chains: %d calls", got-before)
	}
}

func TestSettleBeforeEscrows(t *testing.T) {
	f := newFixture(t)

	sec, hashLock, _ := secret.Generate()
	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if _, err := f.orch.Settle(context.Background(), &SettleRequest{
		SwapID: init.SwapID, Secret: secret.Format(sec),
	}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestEscrowFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.to.failCreate = true

	_, hashLock, _ := secret.Generate()
	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	_, err = f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID: init.SwapID, Signature: "0x" + strings.Repeat("33", 65),
	})
	if !errors.Is(err, chains.ErrReverted) {
		t.Fatalf("err = %v, want ErrReverted", err)
	}

	order, err := f.orch.Status(init.SwapID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if order.Status != string(StatusFailed) {
		t.Errorf("status = %s, want failed", order.Status)
	}
	if order.Error == "" {
		t.Error("failure cause not recorded")
	}
}

func TestExecuteFailsTerminalOnCorruptPermit(t *testing.T) {
	f := newFixture(t)

	_, hashLock, _ := secret.Generate()
	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	f.store.mu.Lock()
	f.store.orders[init.SwapID].Permit = "{"
	f.store.mu.Unlock()

	if _, err := f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID: init.SwapID, Signature: "0x" + strings.Repeat("55", 65),
	}); err == nil {
		t.Fatal("execute succeeded with corrupt permit")
	}

	// The swap must not be stranded in creating_escrows.
	order, err := f.orch.Status(init.SwapID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if order.Status != string(StatusFailed) {
		t.Errorf("status = %s, want failed", order.Status)
	}
	if order.Error == "" {
		t.Error("failure cause not recorded")
	}
}

func TestSettleRetryAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.from.settleOnce = true // origin settle fails on the first attempt

	sec, hashLock, _ := secret.Generate()
	init, err := f.orch.Initiate(validInitiate(secret.Format(hashLock)))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.orch.Execute(context.Background(), &ExecuteRequest{
		SwapID: init.SwapID, Signature: "0x" + strings.Repeat("44", 65),
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := &SettleRequest{SwapID: init.SwapID, Secret: secret.Format(sec)}

	if _, err := f.orch.Settle(context.Background(), req); !errors.Is(err, chains.ErrNetwork) {
		t.Fatalf("first settle err = %v, want ErrNetwork", err)
	}
	order, _ := f.orch.Status(init.SwapID)
	if order.Status != string(StatusSettling) {
		t.Fatalf("status = %s, want settling", order.Status)
	}
	if order.ToSettlementTx == "" {
		t.Error("destination settlement tx not recorded on partial failure")
	}
	if order.Error == "" {
		t.Error("settlement failure not recorded on the order")
	}

	resp, err := f.orch.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if resp.Status != string(StatusCompleted) {
		t.Errorf("status = %s, want completed", resp.Status)
	}

	order, _ = f.orch.Status(init.SwapID)
	if order.Error != "" {
		t.Errorf("error not cleared after successful retry: %q", order.Error)
	}

	// The already-settled destination leg is not settled again.
	settles := 0
	for _, c := range f.log.snapshot() {
		if c == "settle:monad" {
			settles++
		}
	}
	if settles != 1 {
		t.Errorf("destination settled %d times, want 1", settles)
	}
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.Status("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTransitions(t *testing.T) {
	o := &storage.SwapOrder{Status: string(StatusPendingUserSignature)}

	for _, next := range []Status{StatusCreatingEscrows, StatusEscrowsCreated, StatusAwaitingSecret, StatusSettling, StatusCompleted} {
		if err := transition(o, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !IsTerminal(Status(o.Status)) {
		t.Error("completed not terminal")
	}
	if err := transition(o, StatusFailed); !errors.Is(err, ErrInvalidState) {
		t.Errorf("transition out of completed err = %v, want ErrInvalidState", err)
	}

	o = &storage.SwapOrder{Status: string(StatusPendingUserSignature)}
	if err := transition(o, StatusAwaitingSecret); !errors.Is(err, ErrInvalidState) {
		t.Errorf("skipped transition err = %v, want ErrInvalidState", err)
	}
}

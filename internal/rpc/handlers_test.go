package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/majorswap/relayer/internal/broker"
	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/orchestrator"
	"github.com/majorswap/relayer/internal/permit"
	"github.com/majorswap/relayer/internal/secret"
	"github.com/majorswap/relayer/internal/signer"
	"github.com/majorswap/relayer/internal/storage"
)

const testKey = "e2cc5c01b44547c70e2740e409322ca9b27502a2a2a5e366a5d1745f02608711"

type stubAdapter struct {
	name    string
	chainID uint64
}

func (a *stubAdapter) Name() string    { return a.name }
func (a *stubAdapter) ChainID() uint64 { return a.chainID }

func (a *stubAdapter) SettlementEngine() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000e1")
}

func (a *stubAdapter) BuildPermit(token common.Address, amount *big.Int, spender common.Address, nonce, deadline *big.Int) chains.PermitArtifact {
	p := permit.Permit{Token: token, Amount: amount, Spender: spender, Nonce: nonce, Deadline: deadline}
	return chains.PermitArtifact{
		Permit:    p,
		TypedData: p.TypedData(a.chainID, common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")),
	}
}

func (a *stubAdapter) SignPermit(p permit.Permit) ([]byte, error) {
	return p.EncodeData(make([]byte, 65))
}

func (a *stubAdapter) CreateEscrow(ctx context.Context, params chains.EscrowParams) (common.Address, common.Hash, error) {
	return common.BytesToAddress(params.OrderHash[:20]), common.BytesToHash(params.OrderHash[:]), nil
}

func (a *stubAdapter) Settle(ctx context.Context, orderHash [32]byte, sec [32]byte) (common.Hash, error) {
	return common.BytesToHash(orderHash[:]), nil
}

func (a *stubAdapter) EscrowExists(ctx context.Context, orderHash [32]byte) (bool, error) {
	return true, nil
}

func (a *stubAdapter) EscrowState(ctx context.Context, orderHash [32]byte) (chains.EscrowState, error) {
	return chains.EscrowStateActive, nil
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sig, err := signer.NewLocal(testKey)
	if err != nil {
		t.Fatalf("signer.NewLocal: %v", err)
	}

	cfg := config.Default()
	cfg.Swap.CallTimeout = time.Second

	registry := chains.NewRegistry(
		&stubAdapter{name: "sepolia", chainID: 11155111},
		&stubAdapter{name: "monad", chainID: 10143},
	)

	orch := orchestrator.New(store, registry, sig, cfg.ResolveNetworks(), cfg.Swap)
	brk := broker.New(cfg.Quote.RequestTimeout, store)
	hub := broker.NewHub(brk)

	srv := NewServer(store, orch, brk, hub, cfg)
	return srv, srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func initiateBody(hashLock string) map[string]string {
	return map[string]string{
		"hashLock":    hashLock,
		"fromChain":   "sepolia",
		"toChain":     "monad",
		"fromToken":   "USDC",
		"toToken":     "USDC",
		"fromAmount":  "1000000",
		"toAmount":    "995000",
		"userAddress": "0x1111111111111111111111111111111111111111",
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
}

func TestSwapFlowOverHTTP(t *testing.T) {
	_, h := newTestServer(t)

	sec, hashLock, err := secret.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/swap/initiate", initiateBody(secret.Format(hashLock)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var init orchestrator.InitiateResponse
	decode(t, rec, &init)
	if init.SwapID == "" {
		t.Fatal("no swapId returned")
	}

	rec = doJSON(t, h, http.MethodPost, "/swap/execute", map[string]string{
		"swapId":    init.SwapID,
		"signature": "0x" + strings.Repeat("11", 65),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute code = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/swap/"+init.SwapID+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var order storage.SwapOrder
	decode(t, rec, &order)
	if order.Status != "awaiting_secret" {
		t.Errorf("status = %s, want awaiting_secret", order.Status)
	}

	rec = doJSON(t, h, http.MethodPost, "/swap/"+init.SwapID+"/settle", map[string]string{
		"secret": secret.Format(sec),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settle code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var settled orchestrator.SettleResponse
	decode(t, rec, &settled)
	if settled.Status != "completed" {
		t.Errorf("status = %s, want completed", settled.Status)
	}

	// Settling an already completed swap is a client error.
	rec = doJSON(t, h, http.MethodPost, "/swap/"+init.SwapID+"/settle", map[string]string{
		"secret": secret.Format(sec),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("replayed settle code = %d, want 400", rec.Code)
	}
}

func TestInitiateRejectsBadHashLock(t *testing.T) {
	_, h := newTestServer(t)

	body := initiateBody("not-a-hashlock")
	rec := doJSON(t, h, http.MethodPost, "/swap/initiate", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestSwapStatusNotFound(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/swap/nope/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}

func TestExecuteRequiresSwapID(t *testing.T) {
	_, h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/swap/execute", map[string]string{"signature": "0x11"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestSecretEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	sec, hashLock, _ := secret.Generate()

	rec := doJSON(t, h, http.MethodPost, "/swap/initiate", initiateBody(secret.Format(hashLock)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate code = %d", rec.Code)
	}
	var init orchestrator.InitiateResponse
	decode(t, rec, &init)

	// Malformed secret
	rec = doJSON(t, h, http.MethodPost, "/secret", map[string]string{
		"swapId": init.SwapID, "secret": "xyz",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad secret code = %d, want 400", rec.Code)
	}

	// Unknown swap
	rec = doJSON(t, h, http.MethodPost, "/secret", map[string]string{
		"swapId": "missing", "secret": secret.Format(sec),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown swap code = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/secret", map[string]string{
		"swapId": init.SwapID, "secret": secret.Format(sec),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create secret code = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Not old enough to appear in the expired view.
	rec = doJSON(t, h, http.MethodGet, "/secrets/expired", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expired code = %d", rec.Code)
	}
	var out []*storage.ExpiredSecret
	decode(t, rec, &out)
	if len(out) != 0 {
		t.Errorf("expired = %d entries, want 0", len(out))
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/swap/initiate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("code = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
}

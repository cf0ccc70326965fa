package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/orchestrator"
	"github.com/majorswap/relayer/internal/secret"
	"github.com/majorswap/relayer/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeMapped translates domain errors into HTTP status codes.
func writeMapped(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrValidation),
		errors.Is(err, orchestrator.ErrInvalidState),
		errors.Is(err, orchestrator.ErrUnknownToken),
		errors.Is(err, chains.ErrUnsupportedChain):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chains.ErrNetwork):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStatus reports service health and connectivity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"clients":       s.hub.ClientCount(),
		"resolvers":     s.hub.ResolverCount(),
		"pendingQuotes": s.broker.PendingCount(),
		"timestamp":     time.Now().Unix(),
	})
}

func (s *Server) handleSwapInitiate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.orch.Initiate(&req)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSwapExecute(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SwapID == "" {
		writeError(w, http.StatusBadRequest, "swapId is required")
		return
	}

	resp, err := s.orch.Execute(r.Context(), &req)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSwapStatus(w http.ResponseWriter, r *http.Request) {
	order, err := s.orch.Status(r.PathValue("swapId"))
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleSwapSettle(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SwapID = r.PathValue("swapId")

	resp, err := s.orch.Settle(r.Context(), &req)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type secretRequest struct {
	SwapID string `json:"swapId"`
	Secret string `json:"secret"`
}

// handleSecretCreate records a revealed secret against its swap so it
// shows up in the recovery view once the swap's timelocks lapse.
func (s *Server) handleSecretCreate(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SwapID == "" {
		writeError(w, http.StatusBadRequest, "swapId is required")
		return
	}
	if _, err := secret.Parse(req.Secret); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetOrder(req.SwapID); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sec, err := s.store.CreateSecret(req.SwapID, req.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

// handleExpiredSecrets lists secrets old enough for recovery tooling.
func (s *Server) handleExpiredSecrets(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().Add(-s.cfg.Swap.ExpiredSecretAge)
	out, err := s.store.ListExpiredSecrets(cutoff)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []*storage.ExpiredSecret{}
	}
	writeJSON(w, http.StatusOK, out)
}

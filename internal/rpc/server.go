// Package rpc exposes the relayer's HTTP and WebSocket API.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/majorswap/relayer/internal/broker"
	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/orchestrator"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/logging"
)

// Server serves the REST API and the quote WebSocket.
type Server struct {
	store  *storage.Storage
	orch   *orchestrator.Orchestrator
	broker *broker.Broker
	hub    *broker.Hub
	cfg    *config.Config
	log    *logging.Logger

	server   *http.Server
	listener net.Listener
}

// NewServer creates the API server.
func NewServer(store *storage.Storage, orch *orchestrator.Orchestrator, brk *broker.Broker, hub *broker.Hub, cfg *config.Config) *Server {
	return &Server{
		store:  store,
		orch:   orch,
		broker: brk,
		hub:    hub,
		cfg:    cfg,
		log:    logging.GetDefault().Component("rpc"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /swap/initiate", s.handleSwapInitiate)
	mux.HandleFunc("POST /swap/execute", s.handleSwapExecute)
	mux.HandleFunc("GET /swap/{swapId}/status", s.handleSwapStatus)
	mux.HandleFunc("POST /swap/{swapId}/settle", s.handleSwapSettle)

	mux.HandleFunc("POST /secret", s.handleSecretCreate)
	mux.HandleFunc("GET /secrets/expired", s.handleExpiredSecrets)

	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.HandleFunc("GET /ws/", s.hub.ServeWS)

	return corsMiddleware(mux)
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.hub.Run()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", "error", err)
		}
	}()

	s.log.Info("API server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the API server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Package main provides the relayerd daemon: quote broker, swap
// orchestrator, and HTTP/WebSocket API for cross-chain token swaps.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/majorswap/relayer/internal/broker"
	"github.com/majorswap/relayer/internal/chains"
	"github.com/majorswap/relayer/internal/config"
	"github.com/majorswap/relayer/internal/orchestrator"
	"github.com/majorswap/relayer/internal/rpc"
	"github.com/majorswap/relayer/internal/signer"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.relayer", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("api", "", "HTTP API address, overrides config")
		envFile     = flag.String("env", "", "Env file with RESOLVER_PRIVATE_KEY (default: .env if present)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("relayerd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// The resolver key lives in the environment, never in config files.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatal("Failed to load env file", "path", *envFile, "error", err)
		}
	} else {
		godotenv.Load()
	}

	resolverKey := os.Getenv("RESOLVER_PRIVATE_KEY")
	sig, err := signer.NewLocal(resolverKey)
	if err != nil {
		log.Fatal("Failed to load resolver key", "error", err)
	}

	cfgDir := *dataDir
	if *configFile != "" {
		cfgDir = filepath.Dir(*configFile)
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over config file
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = *dataDir

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(cfgDir))

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "dir", cfg.Storage.DataDir)

	networks := cfg.ResolveNetworks()
	adapters := make([]chains.Adapter, 0, len(networks))
	for name, network := range networks {
		adapter, err := chains.NewEVMAdapter(network, sig)
		if err != nil {
			log.Fatal("Failed to connect chain", "chain", name, "error", err)
		}
		adapters = append(adapters, adapter)
		log.Info("Chain connected", "chain", name, "chainId", network.ChainID,
			"engine", network.SettlementEngine)
	}
	registry := chains.NewRegistry(adapters...)

	orch := orchestrator.New(store, registry, sig, networks, cfg.Swap)
	brk := broker.New(cfg.Quote.RequestTimeout, store)
	hub := broker.NewHub(brk)

	server := rpc.NewServer(store, orch, brk, hub, cfg)
	if err := server.Start(cfg.API.ListenAddr); err != nil {
		log.Fatal("Failed to start API server", "error", err)
	}

	log.Info("Relayer started",
		"version", version,
		"resolver", sig.Address().Hex(),
		"chains", registry.Names(),
		"api", cfg.API.ListenAddr,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		log.Error("Error stopping API server", "error", err)
	}
	log.Info("Shutdown complete")
}

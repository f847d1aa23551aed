// Driftwatch - standalone detector for silent external state changes
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/statewatch/internal/config"
	"github.com/mbd888/statewatch/internal/daemon"
	"github.com/mbd888/statewatch/internal/logging"
	"github.com/mbd888/statewatch/internal/traces"
	"github.com/mbd888/statewatch/pkg/chain"
	"github.com/mbd888/statewatch/pkg/monitor"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting driftwatch",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"watched", len(cfg.WatchAddresses),
	)

	ctx := context.Background()

	// Tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(ctx) }()

	// RPC client
	client, err := chain.New(chain.Config{RPCURL: cfg.RPCURL, ChainID: cfg.ChainID})
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	agg, err := buildAggregator(cfg, client, logger)
	if err != nil {
		logger.Error("failed to build monitors", "error", err)
		os.Exit(1)
	}

	d := daemon.New(cfg, agg, daemon.WithLogger(logger))
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

// buildAggregator wires one balance monitor per watched address, plus
// token balance monitors when a token contract is configured.
func buildAggregator(cfg *config.Config, client *chain.Client, logger *slog.Logger) (*monitor.Aggregator, error) {
	wallets, err := monitor.NewGroup("wallets")
	if err != nil {
		return nil, err
	}
	for _, hex := range cfg.WatchAddresses {
		addr := common.HexToAddress(hex)
		m := monitor.NewBalance(addr.Hex(), addr, client)
		if err := wallets.Add(m.Monitor); err != nil {
			return nil, err
		}
	}
	groups := []*monitor.Group{wallets}

	if cfg.TokenContract != "" {
		token := common.HexToAddress(cfg.TokenContract)
		reader := client.TokenBalanceReader(token)
		tokens, err := monitor.NewGroup("tokens")
		if err != nil {
			return nil, err
		}
		for _, hex := range cfg.WatchAddresses {
			addr := common.HexToAddress(hex)
			m := monitor.NewBalance(addr.Hex(), addr, reader)
			if err := tokens.Add(m.Monitor); err != nil {
				return nil, err
			}
		}
		groups = append(groups, tokens)
		logger.Info("token balances monitored", "contract", token.Hex())
	}

	return monitor.NewAggregator(groups, monitor.WithLogger(logger)), nil
}

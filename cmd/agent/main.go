// Package main runs the autonomous trading agent:
// - Market data (continuous): snapshot polling + WS block listener
// - Strategies → aggregation → decisions → execution each cycle
// - Trade history and snapshot persistence
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-trading-agent/internal/agent"
	"solana-trading-agent/internal/aggregator"
	"solana-trading-agent/internal/ai"
	"solana-trading-agent/internal/decision"
	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/execution"
	"solana-trading-agent/internal/market"
	"solana-trading-agent/internal/observability"
	"solana-trading-agent/internal/portfolio"
	"solana-trading-agent/internal/storage"
	chstore "solana-trading-agent/internal/storage/clickhouse"
	"solana-trading-agent/internal/storage/memory"
	"solana-trading-agent/internal/storage/migrations"
	pgstore "solana-trading-agent/internal/storage/postgres"
	"solana-trading-agent/internal/strategy"
)

// agentStores holds the persistence backends.
type agentStores struct {
	tradeRecords storage.TradeRecordStore
	history      storage.SnapshotHistoryStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("MARKET_RPC_ENDPOINT"), "Market data HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("MARKET_WS_ENDPOINT"), "Block notification WebSocket endpoint (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	tokens := flag.String("tokens", os.Getenv("TRACKED_TOKENS"), "Comma-separated token mint addresses to track")
	strategies := flag.String("strategies", "pulse,momentum", "Comma-separated strategy names")
	weights := flag.String("strategy-weights", "", "Comma-separated name=weight pairs (default 1.0)")
	wallet := flag.String("wallet", os.Getenv("WALLET_ADDRESS"), "Wallet label stamped on the portfolio")
	initialCash := flag.Float64("initial-cash", 1000, "Starting cash balance in USD")
	interval := flag.Duration("interval", 30*time.Second, "Market-update cycle interval")
	confidence := flag.Float64("confidence-threshold", aggregator.DefaultConfidenceThreshold, "Minimum signal strength to act on")
	maxTrade := flag.Float64("max-trade-usd", 100, "Maximum USD per BUY")
	maxAlloc := flag.Float64("max-alloc-pct", 20, "Maximum percent of cash per BUY")
	minReserve := flag.Float64("min-cash-reserve", 0, "Cash floor a BUY may never breach")
	slippage := flag.Float64("slippage-pct", 0.5, "Simulated executor slippage percent")
	fee := flag.Float64("fee-pct", 0.25, "Simulated executor fee percent")
	aiURL := flag.String("ai-url", os.Getenv("AI_BASE_URL"), "OpenAI-compatible endpoint for signal enhancement (optional)")
	aiKey := flag.String("ai-key", os.Getenv("AI_API_KEY"), "API key for the enhancement endpoint")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	addresses := splitList(*tokens)
	if len(addresses) == 0 {
		logger.Fatal("No tokens specified. Use --tokens or TRACKED_TOKENS")
	}
	for _, addr := range addresses {
		if err := domain.ValidateAddress(addr); err != nil {
			logger.Fatalf("Invalid token address %q: %v", addr, err)
		}
	}

	strategyList, err := strategy.ParseList(*strategies)
	if err != nil {
		logger.Fatalf("Invalid --strategies: %v", err)
	}
	strategyWeights, err := strategy.ParseWeights(*weights)
	if err != nil {
		logger.Fatalf("Invalid --strategy-weights: %v", err)
	}

	limits := domain.DefaultRiskLimits()
	limits.MaxTradeAmountUSD = *maxTrade
	limits.MaxAllocationPercent = *maxAlloc
	limits.MinCashReserve = *minReserve
	if err := limits.Validate(); err != nil {
		logger.Fatalf("Invalid risk limits: %v", err)
	}

	if err := validateConfig(*confidence, *initialCash, *slippage, *fee, *interval); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Market data
	fetcher := market.NewHTTPFetcher(*rpcEndpoint)
	tracker, err := market.NewTracker(fetcher, addresses, logger)
	if err != nil {
		logger.Fatalf("Failed to create tracker: %v", err)
	}

	var events <-chan market.BlockEvent
	var listener *market.BlockListener
	if *wsEndpoint != "" {
		listener = market.NewBlockListener(*wsEndpoint, nil, logger)
		events = listener.Events()
	}

	// Portfolio + decision engine
	pf := portfolio.New(*wallet, *initialCash)
	executor := execution.NewSimulatedExecutor(*slippage, *fee)
	engine, err := decision.NewEngine(limits, executor, pf, stores.tradeRecords, logger)
	if err != nil {
		logger.Fatalf("Failed to create decision engine: %v", err)
	}

	// Aggregator with optional AI enhancement
	agg := aggregator.New(strategyWeights, *confidence)
	agg.Logger = logger
	if *aiURL != "" {
		agg.Enhancer = ai.NewChatClient(*aiURL, *aiKey)
		logger.Printf("AI enhancement enabled: %s", *aiURL)
	}

	a, err := agent.New(agent.Options{
		Tracker:    tracker,
		Strategies: strategyList,
		Aggregator: agg,
		Engine:     engine,
		Portfolio:  pf,
		History:    stores.history,
		Events:     events,
		Config:     &agent.Config{Interval: *interval},
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create agent: %v", err)
	}

	// Handle shutdown signals
	done := make(chan error, 1)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server for health/metrics/status
	go startHTTPServer(*metricsAddr, pf, tracker, logger)

	// Start block listener in background
	if listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil && err != context.Canceled {
				logger.Printf("Block listener stopped: %v", err)
			}
		}()
	}

	// Run the agent loop
	err = a.Run(ctx)
	done <- err

	if err != nil && err != context.Canceled {
		logger.Fatalf("Agent error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// validateConfig checks the non-risk flag ranges. Violations are fatal
// at startup, never during a running cycle.
func validateConfig(confidence, initialCash, slippagePct, feePct float64, interval time.Duration) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %f", confidence)
	}
	if initialCash < 0 {
		return fmt.Errorf("initial cash must be non-negative, got %f", initialCash)
	}
	if slippagePct < 0 {
		return fmt.Errorf("slippage percent must be non-negative, got %f", slippagePct)
	}
	if feePct < 0 {
		return fmt.Errorf("fee percent must be non-negative, got %f", feePct)
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	return nil
}

// splitList splits a comma-separated flag value, dropping empties.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// createStores creates the persistence backends and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*agentStores, func(), error) {
	if useMemory {
		stores := &agentStores{
			tradeRecords: memory.NewTradeRecordStore(),
			history:      memory.NewSnapshotHistoryStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL (trade records)
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse (snapshot history)
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &agentStores{
		tradeRecords: pgstore.NewTradeRecordStore(pool),
		history:      chstore.NewSnapshotHistoryStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// startHTTPServer serves health, metrics and portfolio status.
func startHTTPServer(addr string, pf *portfolio.Portfolio, tracker *market.Tracker, logger *log.Logger) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	started := time.Now()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		prices := tracker.Prices()
		view := pf.Snapshot()

		resp := statusResponse{
			Status:     "running",
			Uptime:     time.Since(started).String(),
			Wallet:     view.Wallet,
			Cash:       view.Cash,
			TotalValue: pf.TotalValue(prices),
			Holdings:   len(view.Holdings),
			Trades:     len(pf.History()),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// statusResponse is the JSON response for the /status endpoint.
type statusResponse struct {
	Status     string  `json:"status"`
	Uptime     string  `json:"uptime"`
	Wallet     string  `json:"wallet"`
	Cash       float64 `json:"cash"`
	TotalValue float64 `json:"total_value"`
	Holdings   int     `json:"holdings"`
	Trades     int     `json:"trades"`
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

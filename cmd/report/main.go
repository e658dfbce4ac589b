// Package main renders a portfolio and trade history report from the
// persisted trade records. Holdings and cash are reconstructed by
// replaying the append-only history; unrealized P&L uses live prices
// when an endpoint is given, last trade prices otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"solana-trading-agent/internal/domain"
	"solana-trading-agent/internal/market"
	"solana-trading-agent/internal/portfolio"
	"solana-trading-agent/internal/storage"
	"solana-trading-agent/internal/storage/memory"
	pgstore "solana-trading-agent/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("MARKET_RPC_ENDPOINT"), "Market data endpoint for live prices (optional)")
	initialCash := flag.Float64("initial-cash", 1000, "Starting cash the history is replayed from")
	wallet := flag.String("wallet", os.Getenv("WALLET_ADDRESS"), "Wallet label")
	tail := flag.Int("tail", 20, "Number of most recent trades to print")
	demo := flag.Bool("demo", false, "Render a report from built-in demo trades")
	flag.Parse()

	ctx := context.Background()

	if !*demo && *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required (or use --demo)")
		os.Exit(1)
	}

	var store storage.TradeRecordStore
	if *demo {
		store = demoStore(ctx)
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = pgstore.NewTradeRecordStore(pool)
	}

	records, err := store.GetAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trade records: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	pf, err := replayHistory(*wallet, *initialCash, records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying history: %v\n", err)
		os.Exit(1)
	}

	prices := resolvePrices(ctx, *rpcEndpoint, pf, records)

	printPortfolio(pf, prices)
	printHoldings(pf, prices)
	printHistory(records, *tail)
}

// replayHistory rebuilds portfolio state from the append-only records.
func replayHistory(wallet string, initialCash float64, records []*domain.TradeRecord) (*portfolio.Portfolio, error) {
	pf := portfolio.New(wallet, initialCash)
	for _, r := range records {
		switch r.Side {
		case domain.TradeBuy:
			// records were written with settle semantics, so a fill
			// that floored cash at zero must replay the same way
			if _, err := pf.SettleDebit(r.Value); err != nil {
				return nil, fmt.Errorf("replay %s: %w", r.ID, err)
			}
			if err := pf.AddHolding(r.TokenAddress, r.Symbol, r.Amount, r.Price, r.Timestamp); err != nil {
				return nil, fmt.Errorf("replay %s: %w", r.ID, err)
			}
		case domain.TradeSell:
			if err := pf.RemoveHolding(r.TokenAddress, r.Amount, r.Timestamp); err != nil {
				return nil, fmt.Errorf("replay %s: %w", r.ID, err)
			}
			if err := pf.CreditCash(r.Value); err != nil {
				return nil, fmt.Errorf("replay %s: %w", r.ID, err)
			}
		default:
			return nil, fmt.Errorf("replay %s: unknown side %q", r.ID, r.Side)
		}
		pf.Append(*r)
	}
	return pf, nil
}

// resolvePrices fetches live prices for held tokens, falling back to
// each token's most recent trade price.
func resolvePrices(ctx context.Context, endpoint string, pf *portfolio.Portfolio, records []*domain.TradeRecord) map[string]float64 {
	prices := make(map[string]float64)
	for _, r := range records {
		prices[r.TokenAddress] = r.Price // records are oldest-first
	}

	if endpoint == "" {
		return prices
	}

	var addresses []string
	for _, h := range pf.Holdings() {
		addresses = append(addresses, h.TokenAddress)
	}
	if len(addresses) == 0 {
		return prices
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	fetcher := market.NewHTTPFetcher(endpoint)
	snapshots, err := fetcher.FetchSnapshots(fetchCtx, addresses)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: live price fetch failed, using last trade prices: %v\n", err)
		return prices
	}
	for _, snap := range snapshots {
		if snap != nil && snap.Price > 0 {
			prices[snap.Address] = snap.Price
		}
	}
	return prices
}

func printPortfolio(pf *portfolio.Portfolio, prices map[string]float64) {
	view := pf.Snapshot()

	fmt.Println("PORTFOLIO")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if view.Wallet != "" {
		fmt.Fprintf(w, "Wallet:\t%s\n", view.Wallet)
	}
	fmt.Fprintf(w, "Cash:\t$%.2f\n", view.Cash)
	fmt.Fprintf(w, "Total value:\t$%.2f\n", pf.TotalValue(prices))
	fmt.Fprintf(w, "Holdings:\t%d\n", len(view.Holdings))
	fmt.Fprintf(w, "Trades:\t%d\n", len(pf.History()))
	w.Flush()
	fmt.Println()
}

func printHoldings(pf *portfolio.Portfolio, prices map[string]float64) {
	holdings := pf.Holdings()
	if len(holdings) == 0 {
		return
	}

	fmt.Println("HOLDINGS")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tSYMBOL\tAMOUNT\tAVG PRICE\tPRICE\tVALUE\tUNREALIZED P&L")
	for _, h := range holdings {
		price, ok := prices[h.TokenAddress]
		if !ok {
			price = h.AvgPrice
		}
		value := h.Amount * price
		pnl := (price - h.AvgPrice) * h.Amount
		fmt.Fprintf(w, "%s\t%s\t%.6f\t$%.6f\t$%.6f\t$%.2f\t$%+.2f\n",
			shortAddr(h.TokenAddress), h.Symbol, h.Amount, h.AvgPrice, price, value, pnl)
	}
	w.Flush()
	fmt.Println()
}

func printHistory(records []*domain.TradeRecord, tail int) {
	if tail > 0 && len(records) > tail {
		records = records[len(records)-tail:]
	}

	fmt.Printf("TRADE HISTORY (last %d)\n", len(records))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSIDE\tTOKEN\tSYMBOL\tAMOUNT\tPRICE\tVALUE\tSTRATEGY\tSIM")
	for _, r := range records {
		sim := ""
		if r.Simulated {
			sim = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.6f\t$%.6f\t$%.2f\t%s\t%s\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.Side, shortAddr(r.TokenAddress), r.Symbol, r.Amount, r.Price, r.Value, r.Strategy, sim)
	}
	w.Flush()
}

// shortAddr truncates a mint address for table display.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

// demoStore returns an in-memory store seeded with a small history.
func demoStore(ctx context.Context) storage.TradeRecordStore {
	store := memory.NewTradeRecordStore()
	base := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)

	seed := []*domain.TradeRecord{
		{
			ID: domain.ComputeTradeID("So11111111111111111111111111111111111111112", domain.TradeBuy, base.UnixMilli(), 0),
			Timestamp: base, TokenAddress: "So11111111111111111111111111111111111111112",
			Symbol: "WSOL", Side: domain.TradeBuy, Amount: 0.5, Price: 180, Value: 90,
			Simulated: true, Strategy: "pulse", Strength: 0.82,
		},
		{
			ID: domain.ComputeTradeID("So11111111111111111111111111111111111111112", domain.TradeSell, base.Add(2*time.Hour).UnixMilli(), 1),
			Timestamp: base.Add(2 * time.Hour), TokenAddress: "So11111111111111111111111111111111111111112",
			Symbol: "WSOL", Side: domain.TradeSell, Amount: 0.25, Price: 195, Value: 48.75,
			Simulated: true, Strategy: "momentum", Strength: 0.71,
		},
	}
	for _, r := range seed {
		if err := store.Insert(ctx, r); err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding demo data: %v\n", err)
			os.Exit(1)
		}
	}
	return store
}

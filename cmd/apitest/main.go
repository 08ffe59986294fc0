// apitest exercises the REST client against a live backend.
// Usage: go run ./cmd/apitest --config configs/client.example.yaml --symbol AAPL
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gil10101/sokin-sub003/internal/api"
	"github.com/gil10101/sokin-sub003/internal/auth"
	"github.com/gil10101/sokin-sub003/internal/cache"
	"github.com/gil10101/sokin-sub003/internal/config"
	"github.com/gil10101/sokin-sub003/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	symbol := flag.String("symbol", "AAPL", "symbol for the single-stock lookup")
	query := flag.String("query", "apple", "search query")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Optional .env for ${VAR} references in the config file.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("apitest", "version", version.String(), "base_url", cfg.API.BaseURL)

	client := api.NewClient(cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithCache(cache.New()),
		api.WithRetries(cfg.API.MaxRetries),
		api.WithAttemptTimeout(cfg.API.AttemptTimeout),
		api.WithTokenSource(tokenSource(cfg.Auth)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("=== Market Indices ===")
	indices, err := client.GetMarketIndices(ctx)
	if err != nil {
		logger.Error("GetMarketIndices failed", "error", err)
		os.Exit(1)
	}
	for _, idx := range indices {
		fmt.Printf("  %s (%s): %.2f (%+.2f%%)\n", idx.Name, idx.Symbol, idx.Price, idx.ChangePercent)
	}

	fmt.Println("\n=== Trending Stocks ===")
	trending, err := client.GetTrendingStocks(ctx, 5)
	if err != nil {
		logger.Error("GetTrendingStocks failed", "error", err)
		os.Exit(1)
	}
	for i, s := range trending {
		fmt.Printf("  %d. %s %s %.2f (%+.2f%%)\n", i+1, s.Symbol, s.Name, s.Price, s.ChangePercent)
	}

	fmt.Printf("\n=== Stock Data (%s) ===\n", *symbol)
	stock, err := client.GetStockData(ctx, *symbol)
	if err != nil {
		logger.Error("GetStockData failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("  %s %s price=%.2f change=%+.2f volume=%d\n",
		stock.Symbol, stock.Name, stock.Price, stock.Change, stock.Volume)

	// Second read should come from the cache.
	start := time.Now()
	if _, err := client.GetStockData(ctx, *symbol); err != nil {
		logger.Error("cached GetStockData failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("  cached re-read took %v\n", time.Since(start))

	fmt.Printf("\n=== Search (%q) ===\n", *query)
	results, err := client.SearchStocks(ctx, *query, 5)
	if err != nil {
		logger.Error("SearchStocks failed", "error", err)
		os.Exit(1)
	}
	for i, r := range results {
		fmt.Printf("  %d. %s - %s\n", i+1, r.Symbol, r.Name)
	}

	fmt.Println("\n=== All API tests passed! ===")
}

func tokenSource(cfg config.AuthConfig) auth.TokenSource {
	switch {
	case cfg.Token != "":
		return auth.NewStaticTokenSource(cfg.Token)
	case cfg.TokenFile != "":
		return &auth.FileTokenSource{Path: cfg.TokenFile}
	default:
		return nil
	}
}

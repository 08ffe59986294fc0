// streamtest subscribes to live price updates and prints them to the
// console.
// Usage: go run ./cmd/streamtest --config configs/client.example.yaml --symbols AAPL,MSFT,^GSPC
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gil10101/sokin-sub003/internal/api"
	"github.com/gil10101/sokin-sub003/internal/cache"
	"github.com/gil10101/sokin-sub003/internal/config"
	"github.com/gil10101/sokin-sub003/internal/connection"
	"github.com/gil10101/sokin-sub003/internal/model"
	"github.com/gil10101/sokin-sub003/internal/version"
	"github.com/gil10101/sokin-sub003/internal/watch"
)

// printer logs every update it receives.
type printer struct{}

func (printer) OnPriceUpdate(u model.PriceUpdate) {
	fmt.Printf("[UPDATE] %s price=%.2f change=%+.2f (%+.2f%%) at=%s\n",
		u.Symbol, u.Price, u.Change, u.ChangePercent, u.Timestamp)
}

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	symbolList := flag.String("symbols", "AAPL,MSFT", "comma-separated symbols to watch")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("streamtest", "version", version.String(), "ws_url", cfg.Stream.WSURL)

	symbols := strings.Split(*symbolList, ",")

	client := api.NewClient(cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithCache(cache.New()),
		api.WithRetries(cfg.API.MaxRetries),
		api.WithAttemptTimeout(cfg.API.AttemptTimeout),
	)

	mgr := connection.NewManager(connection.ManagerConfig{
		WSURL:             cfg.Stream.WSURL,
		HealthURL:         cfg.Stream.HealthURL,
		SymbolLimit:       cfg.Stream.SymbolLimit,
		WatchdogTimeout:   cfg.Stream.WatchdogTimeout,
		ReconnectCooldown: cfg.Stream.ReconnectCooldown,
		ProbeTimeout:      cfg.Stream.ProbeTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		BufferSize:        cfg.Stream.BufferSize,
	}, connection.WithManagerLogger(logger))
	defer mgr.Close()

	// Raw update feed straight from the manager.
	dispose, err := mgr.Subscribe(symbols, printer{})
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer dispose()

	// Merged snapshots with REST fallback alongside the raw feed.
	watcher := watch.NewWatcher(mgr, client,
		watch.WithLogger(logger),
		watch.WithPollInterval(cfg.Watch.PollInterval),
	)
	defer watcher.Close()

	if err := watcher.SetSymbols(symbols); err != nil {
		logger.Error("watch failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	logger.Info("streaming started - press Ctrl+C to stop")

	for {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			return
		case <-ticker.C:
			stats := mgr.Stats()
			logger.Info("stats",
				"state", stats.State.String(),
				"live", mgr.Live(),
				"symbols", stats.DistinctSymbols,
				"listeners", stats.Listeners,
			)
			if err := mgr.Err(); err != nil {
				logger.Warn("stream degraded", "error", err)
			}
			for sym, s := range watcher.GetPrices(symbols) {
				fmt.Printf("[SNAPSHOT] %s %s price=%.2f (%+.2f%%)\n",
					sym, s.Name, s.Price, s.ChangePercent)
			}
		}
	}
}

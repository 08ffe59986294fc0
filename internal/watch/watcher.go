package watch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gil10101/sokin-sub003/internal/connection"
	"github.com/gil10101/sokin-sub003/internal/model"
)

// PriceStream is the shared connection manager surface the watcher
// drives. *connection.Manager implements it.
type PriceStream interface {
	Subscribe(symbols []string, l connection.Listener) (func(), error)
	Live() bool
	Err() error
	Reconnect()
}

// Quotes is the REST source used to seed snapshots and to poll while
// the push channel is not delivering. *api.Client implements it.
type Quotes interface {
	GetStockData(ctx context.Context, symbol string) (model.Stock, error)
}

// Config holds watcher settings.
type Config struct {
	// PollInterval is the fallback refresh cadence while not live.
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
	}
}

// Watcher multiplexes one consumer's symbol interest onto the shared
// stream and holds the merged snapshot per symbol.
type Watcher struct {
	cfg    Config
	stream PriceStream
	quotes Quotes
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	symbols []string
	enabled bool
	dispose func()
	prices  map[string]model.Stock
	subErr  error
	closed  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithPollInterval sets the fallback refresh cadence.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.cfg.PollInterval = d
	}
}

// NewWatcher creates a Watcher. It starts enabled with no symbols;
// call SetSymbols to begin receiving updates.
func NewWatcher(stream PriceStream, quotes Quotes, opts ...Option) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		cfg:     DefaultConfig(),
		stream:  stream,
		quotes:  quotes,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
		prices:  make(map[string]model.Stock),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.pollLoop()

	return w
}

// SetSymbols replaces the tracked symbol list. The comparison is by
// value: a new slice with the same symbols is a no-op. On any real
// change the previous subscription is fully disposed before the new
// one is made, so every subscribe is paired with exactly one
// unsubscribe.
func (w *Watcher) SetSymbols(symbols []string) error {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, model.NormalizeSymbol(s))
	}
	sort.Strings(normalized)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return connection.ErrAlreadyClosed
	}
	if equalSymbols(w.symbols, normalized) {
		w.mu.Unlock()
		return nil
	}

	old := w.dispose
	w.dispose = nil
	w.symbols = normalized
	enabled := w.enabled
	w.mu.Unlock()

	if old != nil {
		old()
	}
	if !enabled || len(normalized) == 0 {
		return nil
	}

	return w.resubscribe(normalized)
}

// SetEnabled turns live delivery on or off. Disabling keeps the held
// snapshots but detaches the listener so no further callback fires.
func (w *Watcher) SetEnabled(enabled bool) error {
	w.mu.Lock()
	if w.closed || w.enabled == enabled {
		w.mu.Unlock()
		return nil
	}
	w.enabled = enabled
	old := w.dispose
	w.dispose = nil
	symbols := w.symbols
	w.mu.Unlock()

	if old != nil {
		old()
	}
	if !enabled || len(symbols) == 0 {
		return nil
	}

	return w.resubscribe(symbols)
}

// resubscribe attaches the watcher to the stream for symbols and
// seeds missing snapshots from the REST source.
func (w *Watcher) resubscribe(symbols []string) error {
	dispose, err := w.stream.Subscribe(symbols, w)

	w.mu.Lock()
	w.subErr = err
	if err == nil {
		if w.closed || !equalSymbols(w.symbols, symbols) {
			// Superseded while subscribing; undo immediately.
			w.mu.Unlock()
			dispose()
			return nil
		}
		w.dispose = dispose
	}
	w.mu.Unlock()

	if err != nil {
		return err
	}

	w.seedSnapshots(symbols)
	return nil
}

// seedSnapshots fetches full records for symbols the watcher has not
// seen yet, so the first partial update has something to merge into.
func (w *Watcher) seedSnapshots(symbols []string) {
	var missing []string
	w.mu.Lock()
	for _, s := range symbols {
		if _, ok := w.prices[s]; !ok {
			missing = append(missing, s)
		}
	}
	w.mu.Unlock()

	for _, s := range missing {
		w.refreshSnapshot(s)
	}
}

// refreshSnapshot fetches one full record and stores it, preserving
// nothing older: a full REST record supersedes the held snapshot.
func (w *Watcher) refreshSnapshot(symbol string) {
	stock, err := w.quotes.GetStockData(w.ctx, symbol)
	if err != nil {
		w.logger.Debug("snapshot refresh failed", "symbol", symbol, "error", err)
		return
	}

	w.mu.Lock()
	if !w.closed {
		w.prices[stock.Symbol] = stock
	}
	w.mu.Unlock()
}

// OnPriceUpdate merges a partial update into the held snapshot.
// Fields absent from the push payload (name, volume, ...) are
// preserved.
func (w *Watcher) OnPriceUpdate(update model.PriceUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	snapshot := w.prices[update.Symbol]
	snapshot.Symbol = update.Symbol
	snapshot.Price = update.Price
	snapshot.Change = update.Change
	snapshot.ChangePercent = update.ChangePercent
	snapshot.LastUpdated = update.Timestamp
	w.prices[update.Symbol] = snapshot
}

// GetPrice returns the held snapshot for one symbol.
func (w *Watcher) GetPrice(symbol string) (model.Stock, bool) {
	symbol = model.NormalizeSymbol(symbol)

	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.prices[symbol]
	return s, ok
}

// GetPrices returns the held snapshots for the requested symbols.
// Unknown symbols are simply absent from the result.
func (w *Watcher) GetPrices(symbols []string) map[string]model.Stock {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]model.Stock, len(symbols))
	for _, s := range symbols {
		s = model.NormalizeSymbol(s)
		if snapshot, ok := w.prices[s]; ok {
			out[s] = snapshot
		}
	}
	return out
}

// Connected reports whether live delivery is actually happening.
func (w *Watcher) Connected() bool {
	return w.stream.Live()
}

// Err returns the subscription or connection error visible to this
// consumer, if any.
func (w *Watcher) Err() error {
	w.mu.Lock()
	subErr := w.subErr
	w.mu.Unlock()

	if subErr != nil {
		return subErr
	}
	return w.stream.Err()
}

// Reconnect asks the shared manager to clear a sticky failure and
// retry.
func (w *Watcher) Reconnect() {
	w.stream.Reconnect()
}

// Close detaches the watcher. Its listener is removed synchronously
// so no further callback fires, even if a reconnect is pending
// elsewhere.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	old := w.dispose
	w.dispose = nil
	w.mu.Unlock()

	if old != nil {
		old()
	}
	w.cancel()
	w.wg.Wait()

	return nil
}

// pollLoop refreshes tracked symbols over REST while the push channel
// is not delivering.
func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}

		if w.stream.Live() {
			continue
		}

		w.mu.Lock()
		enabled := w.enabled
		symbols := append([]string(nil), w.symbols...)
		w.mu.Unlock()

		if !enabled || len(symbols) == 0 {
			continue
		}

		for _, s := range symbols {
			w.refreshSnapshot(s)
		}
	}
}

// equalSymbols compares two sorted symbol lists by value.
func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

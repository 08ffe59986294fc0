package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gil10101/sokin-sub003/internal/model"
)

// Manager owns the single shared push-channel transport and fans
// incoming price updates out to per-symbol listener sets.
type Manager struct {
	cfg        ManagerConfig
	logger     *slog.Logger
	httpClient *http.Client
	factory    TransportFactory
	sessionID  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	lastErr   error
	transport Transport
	// gen increments on every reconnect/close so callbacks from a
	// superseded transport or timer cannot mutate current state.
	gen        int
	subs       map[string]map[Listener]struct{}
	gotUpdate  bool
	lastUpdate time.Time
	watchdog   *time.Timer
	cooldown   *time.Timer
	// reconnectPending marks the window between Reconnect and its
	// cooldown firing; the cooldown owns the next establish, so a
	// Subscribe landing in the window must not launch its own.
	reconnectPending bool
	closed           bool
}

// ManagerStats provides a snapshot of manager state.
type ManagerStats struct {
	State           State
	DistinctSymbols int
	Listeners       int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTransportFactory replaces the WebSocket transport constructor.
func WithTransportFactory(factory TransportFactory) ManagerOption {
	return func(m *Manager) {
		m.factory = factory
	}
}

// WithProbeClient sets the HTTP client used for the health probe.
func WithProbeClient(hc *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = hc
	}
}

// NewManager creates a connection manager. No connection is attempted
// until the first Subscribe.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) *Manager {
	def := DefaultManagerConfig()
	if cfg.SymbolLimit == 0 {
		cfg.SymbolLimit = def.SymbolLimit
	}
	if cfg.WatchdogTimeout == 0 {
		cfg.WatchdogTimeout = def.WatchdogTimeout
	}
	if cfg.ReconnectCooldown == 0 {
		cfg.ReconnectCooldown = def.ReconnectCooldown
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:        cfg,
		logger:     slog.Default(),
		httpClient: &http.Client{},
		factory:    NewTransport,
		sessionID:  uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateUnattempted,
		subs:       make(map[string]map[Listener]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("session", m.sessionID)

	return m
}

// Subscribe registers listener for each symbol and lazily brings the
// shared transport up on first use. It returns a disposer that
// removes exactly this registration; calling it more than once is a
// no-op.
func (m *Manager) Subscribe(symbols []string, listener Listener) (func(), error) {
	seen := make(map[string]struct{}, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = model.NormalizeSymbol(s)
		if !model.ValidSymbol(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		normalized = append(normalized, s)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrAlreadyClosed
	}

	// Admission control: the aggregate distinct-symbol count across
	// all consumers is capped to protect the shared transport.
	added := 0
	for _, s := range normalized {
		if _, ok := m.subs[s]; !ok {
			added++
		}
	}
	if len(m.subs)+added > m.cfg.SymbolLimit {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: cap is %d", ErrSymbolLimit, m.cfg.SymbolLimit)
	}

	for _, s := range normalized {
		set, ok := m.subs[s]
		if !ok {
			set = make(map[Listener]struct{})
			m.subs[s] = set
		}
		set[listener] = struct{}{}
	}

	var (
		launch  bool
		gen     = m.gen
		current []string
		t       Transport
	)
	switch m.state {
	case StateUnattempted:
		// During a reconnect cooldown the pending timer owns the next
		// establish; launching here too would create a second
		// transport.
		if !m.reconnectPending {
			m.state = StateProbing
			m.wg.Add(1)
			launch = true
		}
	case StateConnected:
		current = m.symbolsLocked()
		t = m.transport
	}

	m.armWatchdogLocked()
	m.mu.Unlock()

	if launch {
		go m.establish(gen)
	}
	if t != nil {
		// The server treats repeated subscribe intents idempotently,
		// so the full current interest is always sent.
		m.sendEvent(t, "subscribe_prices", current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.unsubscribe(normalized, listener)
		})
	}, nil
}

// unsubscribe removes listener from each symbol's set. Symbols whose
// set empties are deleted and an unsubscribe intent is emitted.
func (m *Manager) unsubscribe(symbols []string, listener Listener) {
	m.mu.Lock()

	var drained []string
	for _, s := range symbols {
		set, ok := m.subs[s]
		if !ok {
			continue
		}
		delete(set, listener)
		if len(set) == 0 {
			delete(m.subs, s)
			drained = append(drained, s)
		}
	}

	t := m.transport
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && t != nil && len(drained) > 0 {
		m.sendEvent(t, "unsubscribe_prices", drained)
	}
}

// Reconnect clears a sticky failure, waits the fixed cooldown, and
// re-runs the probe/connect sequence. The cooldown prevents thrash
// when callers mash a retry control.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen

	old := m.transport
	m.transport = nil
	m.state = StateUnattempted
	m.lastErr = nil
	m.gotUpdate = false
	m.reconnectPending = true

	if m.cooldown != nil {
		m.cooldown.Stop()
	}
	m.cooldown = time.AfterFunc(m.cfg.ReconnectCooldown, func() {
		m.mu.Lock()
		if m.closed || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.reconnectPending = false
		if m.state != StateUnattempted {
			m.mu.Unlock()
			return
		}
		m.state = StateProbing
		m.wg.Add(1)
		m.mu.Unlock()

		m.establish(gen)
	})
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	m.logger.Info("reconnect requested", "cooldown", m.cfg.ReconnectCooldown)
}

// Close tears the manager down. All listeners are dropped and the
// transport is closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	if m.cooldown != nil {
		m.cooldown.Stop()
	}
	t := m.transport
	m.transport = nil
	m.subs = make(map[string]map[Listener]struct{})
	m.mu.Unlock()

	m.cancel()
	if t != nil {
		t.Close()
	}
	m.wg.Wait()

	return nil
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Live reports whether the channel is actually delivering: the
// transport is up and at least one valid update has arrived since the
// watchdog last reported silence. A completed handshake alone is not
// enough.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.gotUpdate && m.lastErr == nil
}

// Err returns the most recent connection-level error, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns a snapshot of manager state.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	listeners := 0
	for _, set := range m.subs {
		listeners += len(set)
	}

	return ManagerStats{
		State:           m.state,
		DistinctSymbols: len(m.subs),
		Listeners:       listeners,
	}
}

// symbolsLocked returns the sorted distinct symbol interest.
// Callers must hold m.mu.
func (m *Manager) symbolsLocked() []string {
	symbols := make([]string, 0, len(m.subs))
	for s := range m.subs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// establish runs the probe→connect sequence for generation gen.
func (m *Manager) establish(gen int) {
	defer m.wg.Done()

	if m.cfg.HealthURL != "" {
		if err := m.probe(); err != nil {
			// An absent streaming tier fails here, before paying for
			// the push handshake.
			m.fail(gen, err)
			return
		}
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	t := m.factory(ClientConfig{
		URL:              m.cfg.WSURL,
		HandshakeTimeout: DefaultClientConfig().HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger)

	if err := t.Connect(m.ctx); err != nil {
		m.fail(gen, fmt.Errorf("connect push channel: %w", err))
		return
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		t.Close()
		return
	}
	m.transport = t
	m.state = StateConnected
	symbols := m.symbolsLocked()
	m.mu.Unlock()

	m.logger.Info("push channel established", "symbols", len(symbols))

	m.wg.Add(1)
	go m.readLoop(t, gen)

	if len(symbols) > 0 {
		m.sendEvent(t, "subscribe_prices", symbols)
	}
}

// probe queries the status endpoint; only a "healthy" response
// permits attempting the push handshake.
func (m *Manager) probe() error {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.HealthURL, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probe failed: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return fmt.Errorf("%w: malformed probe response", ErrUnhealthy)
	}
	if hr.Status != "healthy" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, hr.Status)
	}

	return nil
}

// readLoop pumps frames from transport t while generation gen is
// current.
func (m *Manager) readLoop(t Transport, gen int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-t.Errors():
			m.fail(gen, err)
			return

		case data, ok := <-t.Messages():
			if !ok {
				return
			}
			m.handleFrame(gen, data)
		}
	}
}

// handleFrame decodes one server frame and fans updates out.
func (m *Manager) handleFrame(gen int, data []byte) {
	var event serverEvent
	if err := json.Unmarshal(data, &event); err != nil {
		m.logger.Debug("discarding unparseable frame", "error", err)
		return
	}

	switch event.Event {
	case "price_updates":
		m.deliver(gen, event.Updates)

	case "error":
		m.logger.Warn("push channel reported error", "message", event.Message)

	default:
		// Acks like "subscribed"/"unsubscribed" carry no data.
	}
}

// deliver decodes each symbol's partial quote and invokes every
// registered listener. Malformed updates are discarded, not stored.
func (m *Manager) deliver(gen int, updates map[string]json.RawMessage) {
	if len(updates) == 0 {
		return
	}

	// Malformed updates (e.g. non-numeric price) are discarded and do
	// not count toward liveness.
	valid := make([]model.PriceUpdate, 0, len(updates))
	for symbol, raw := range updates {
		var update model.PriceUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			m.logger.Debug("discarding malformed update", "symbol", symbol, "error", err)
			continue
		}
		if update.Symbol == "" {
			update.Symbol = symbol
		}
		valid = append(valid, update)
	}
	if len(valid) == 0 {
		return
	}

	type delivery struct {
		update    model.PriceUpdate
		listeners []Listener
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.gotUpdate = true
	m.lastUpdate = time.Now()
	m.lastErr = nil

	deliveries := make([]delivery, 0, len(valid))
	for _, update := range valid {
		set, ok := m.subs[update.Symbol]
		if !ok {
			continue
		}
		listeners := make([]Listener, 0, len(set))
		for l := range set {
			listeners = append(listeners, l)
		}
		deliveries = append(deliveries, delivery{update: update, listeners: listeners})
	}
	m.mu.Unlock()

	for _, d := range deliveries {
		for _, l := range d.listeners {
			l.OnPriceUpdate(d.update)
		}
	}
}

// fail moves generation gen to the sticky Failed state and drops the
// shared transport reference.
func (m *Manager) fail(gen int, err error) {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateFailed
	m.lastErr = err
	m.transport = nil
	m.gotUpdate = false
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.mu.Unlock()

	m.logger.Warn("push channel failed", "error", err)
}

// armWatchdogLocked starts the one-shot liveness watchdog for the
// current subscribe call. Callers must hold m.mu.
func (m *Manager) armWatchdogLocked() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	started := time.Now()
	m.watchdog = time.AfterFunc(m.cfg.WatchdogTimeout, func() {
		m.watchdogExpired(started)
	})
}

// watchdogExpired reports "connected but silent". The transport is
// left open; delivery resumes as soon as traffic does.
func (m *Manager) watchdogExpired(started time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.state == StateFailed {
		return
	}
	if m.lastUpdate.After(started) {
		return
	}

	m.gotUpdate = false
	m.lastErr = ErrNoUpdates
	m.logger.Warn("liveness watchdog expired",
		"window", m.cfg.WatchdogTimeout,
		"state", m.state.String(),
	)
}

// sendEvent marshals and sends a client event; send failures are
// logged and left to the read loop's error path.
func (m *Manager) sendEvent(t Transport, event string, symbols []string) {
	data, err := json.Marshal(clientEvent{Event: event, Symbols: symbols})
	if err != nil {
		return
	}
	if err := t.Send(data); err != nil {
		m.logger.Warn("failed to send intent", "event", event, "error", err)
	}
}

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gil10101/sokin-sub003/internal/model"
)

// fakeTransport is a scriptable Transport for manager tests.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	sent       [][]byte
	closed     bool

	messages chan []byte
	errors   chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan []byte, 16),
		errors:   make(chan error, 1),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Messages() <-chan []byte { return f.messages }
func (f *fakeTransport) Errors() <-chan error    { return f.errors }

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentEvents() []clientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := make([]clientEvent, 0, len(f.sent))
	for _, data := range f.sent {
		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

// push injects a price_updates frame as raw JSON.
func (f *fakeTransport) push(t *testing.T, updates map[string]any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"event":   "price_updates",
		"updates": updates,
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.messages <- data
}

// recordListener collects delivered updates.
type recordListener struct {
	mu      sync.Mutex
	updates []model.PriceUpdate
}

func (r *recordListener) OnPriceUpdate(u model.PriceUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recordListener) last() (model.PriceUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return model.PriceUpdate{}, false
	}
	return r.updates[len(r.updates)-1], true
}

// waitFor polls cond until it holds or the deadline elapses.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// healthServer serves the status probe with the given status value.
func healthServer(status string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: status})
	}))
}

// testManager wires a manager to a factory producing fakeTransports.
func testManager(cfg ManagerConfig) (*Manager, func() *fakeTransport) {
	var mu sync.Mutex
	var transports []*fakeTransport

	factory := func(ClientConfig, *slog.Logger) Transport {
		ft := newFakeTransport()
		mu.Lock()
		transports = append(transports, ft)
		mu.Unlock()
		return ft
	}

	m := NewManager(cfg, WithTransportFactory(factory))

	latest := func() *fakeTransport {
		mu.Lock()
		defer mu.Unlock()
		if len(transports) == 0 {
			return nil
		}
		return transports[len(transports)-1]
	}
	return m, latest
}

func TestManager_LazyConnectAndDeliver(t *testing.T) {
	health := healthServer("healthy")
	defer health.Close()

	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test", HealthURL: health.URL})
	defer m.Close()

	listener := &recordListener{}
	dispose, err := m.Subscribe([]string{"aapl"}, listener)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer dispose()

	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	ft := latest()
	waitFor(t, "subscribe intent", func() bool { return len(ft.sentEvents()) > 0 })
	events := ft.sentEvents()
	if events[0].Event != "subscribe_prices" {
		t.Errorf("event = %q, want subscribe_prices", events[0].Event)
	}
	if len(events[0].Symbols) != 1 || events[0].Symbols[0] != "AAPL" {
		t.Errorf("symbols = %v, want [AAPL]", events[0].Symbols)
	}

	if m.Live() {
		t.Error("Live = true before any update arrived")
	}

	ft.push(t, map[string]any{
		"AAPL": map[string]any{"symbol": "AAPL", "price": 187.42, "change": -1.2, "changePercent": -0.64, "timestamp": "2026-08-30T14:05:00"},
	})

	waitFor(t, "update delivery", func() bool { return listener.count() == 1 })
	if u, _ := listener.last(); u.Price != 187.42 {
		t.Errorf("Price = %v, want 187.42", u.Price)
	}
	if !m.Live() {
		t.Error("Live = false after a valid update")
	}
}

func TestManager_DuplicateListenerDeliversOnce(t *testing.T) {
	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test"})
	defer m.Close()

	listener := &recordListener{}
	d1, err := m.Subscribe([]string{"AAPL"}, listener)
	if err != nil {
		t.Fatalf("Subscribe #1: %v", err)
	}
	defer d1()
	d2, err := m.Subscribe([]string{"AAPL"}, listener)
	if err != nil {
		t.Fatalf("Subscribe #2: %v", err)
	}
	defer d2()

	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })
	ft := latest()

	ft.push(t, map[string]any{
		"AAPL": map[string]any{"price": 100.0},
	})

	waitFor(t, "first delivery", func() bool { return listener.count() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := listener.count(); got != 1 {
		t.Errorf("deliveries = %d, want 1 (set semantics)", got)
	}
}

func TestManager_DisjointUnsubscribe(t *testing.T) {
	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test"})
	defer m.Close()

	l1 := &recordListener{}
	l2 := &recordListener{}

	dispose1, err := m.Subscribe([]string{"AAPL", "MSFT"}, l1)
	if err != nil {
		t.Fatalf("Subscribe l1: %v", err)
	}
	if _, err := m.Subscribe([]string{"NVDA"}, l2); err != nil {
		t.Fatalf("Subscribe l2: %v", err)
	}

	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })
	ft := latest()

	// Removing all of l1's symbols must not perturb l2's delivery.
	dispose1()
	dispose1() // Second call is a no-op.

	waitFor(t, "unsubscribe intent", func() bool {
		for _, ev := range ft.sentEvents() {
			if ev.Event == "unsubscribe_prices" {
				return true
			}
		}
		return false
	})

	ft.push(t, map[string]any{
		"NVDA": map[string]any{"price": 121.3},
		"AAPL": map[string]any{"price": 187.4},
	})

	waitFor(t, "l2 delivery", func() bool { return l2.count() == 1 })
	if l1.count() != 0 {
		t.Errorf("l1 received %d updates after dispose, want 0", l1.count())
	}

	stats := m.Stats()
	if stats.DistinctSymbols != 1 {
		t.Errorf("DistinctSymbols = %d, want 1", stats.DistinctSymbols)
	}
}

func TestManager_AdmissionControl(t *testing.T) {
	m, _ := testManager(ManagerConfig{WSURL: "ws://stream.test", SymbolLimit: 3})
	defer m.Close()

	listener := &recordListener{}

	t.Run("invalid symbol", func(t *testing.T) {
		_, err := m.Subscribe([]string{"not a symbol"}, listener)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("err = %v, want ErrInvalidSymbol", err)
		}
	})

	t.Run("symbol cap", func(t *testing.T) {
		if _, err := m.Subscribe([]string{"AAPL", "MSFT", "NVDA"}, listener); err != nil {
			t.Fatalf("Subscribe under cap: %v", err)
		}
		_, err := m.Subscribe([]string{"TSLA"}, listener)
		if !errors.Is(err, ErrSymbolLimit) {
			t.Errorf("err = %v, want ErrSymbolLimit", err)
		}
		// Re-subscribing existing symbols stays under the cap.
		if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
			t.Errorf("Subscribe existing symbol: %v", err)
		}
	})

	t.Run("duplicate symbols count once", func(t *testing.T) {
		m2, _ := testManager(ManagerConfig{WSURL: "ws://stream.test", SymbolLimit: 3})
		defer m2.Close()

		if _, err := m2.Subscribe([]string{"AAPL", "MSFT"}, &recordListener{}); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		// Two copies of one new symbol still only add one to the cap.
		if _, err := m2.Subscribe([]string{"NVDA", "NVDA"}, &recordListener{}); err != nil {
			t.Errorf("Subscribe with duplicates: %v", err)
		}
	})
}

func TestManager_UnhealthyProbeFailsWithoutHandshake(t *testing.T) {
	health := healthServer("degraded")
	defer health.Close()

	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test", HealthURL: health.URL})
	defer m.Close()

	if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitFor(t, "failed state", func() bool { return m.State() == StateFailed })

	if latest() != nil {
		t.Error("push handshake attempted despite unhealthy probe")
	}
	if !errors.Is(m.Err(), ErrUnhealthy) {
		t.Errorf("Err = %v, want ErrUnhealthy", m.Err())
	}
}

func TestManager_FailedIsStickyUntilReconnect(t *testing.T) {
	var mu sync.Mutex
	status := "unreachable"
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewEncoder(w).Encode(healthResponse{Status: status})
	}))
	defer health.Close()

	m, latest := testManager(ManagerConfig{
		WSURL:             "ws://stream.test",
		HealthURL:         health.URL,
		ReconnectCooldown: 20 * time.Millisecond,
	})
	defer m.Close()

	if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "failed state", func() bool { return m.State() == StateFailed })

	// Failed must not self-heal: further subscribes do not retrigger
	// the probe/connect sequence.
	if _, err := m.Subscribe([]string{"MSFT"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe while failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if m.State() != StateFailed {
		t.Fatalf("state = %v, want failed (sticky)", m.State())
	}

	// An explicit reconnect clears the stickiness after the cooldown.
	mu.Lock()
	status = "healthy"
	mu.Unlock()

	m.Reconnect()
	if err := m.Err(); err != nil {
		t.Errorf("Err = %v immediately after Reconnect, want nil", err)
	}
	waitFor(t, "connected after reconnect", func() bool { return m.State() == StateConnected })

	ft := latest()
	waitFor(t, "resubscribe intent", func() bool { return len(ft.sentEvents()) > 0 })
	ev := ft.sentEvents()[0]
	if ev.Event != "subscribe_prices" || len(ev.Symbols) != 2 {
		t.Errorf("resubscribe intent = %+v, want both symbols", ev)
	}
}

func TestManager_WatchdogReportsSilenceWithoutTeardown(t *testing.T) {
	m, latest := testManager(ManagerConfig{
		WSURL:           "ws://stream.test",
		WatchdogTimeout: 30 * time.Millisecond,
	})
	defer m.Close()

	listener := &recordListener{}
	if _, err := m.Subscribe([]string{"AAPL"}, listener); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })
	waitFor(t, "watchdog expiry", func() bool { return errors.Is(m.Err(), ErrNoUpdates) })

	if m.Live() {
		t.Error("Live = true after watchdog expiry")
	}
	if m.State() != StateConnected {
		t.Errorf("state = %v, want connected (transport stays open)", m.State())
	}
	ft := latest()
	if ft.isClosed() {
		t.Error("transport was closed by the watchdog")
	}

	// Traffic resuming clears the silence report.
	ft.push(t, map[string]any{"AAPL": map[string]any{"price": 1.0}})
	waitFor(t, "liveness recovery", func() bool { return m.Live() })
	if m.Err() != nil {
		t.Errorf("Err = %v after recovery, want nil", m.Err())
	}
}

func TestManager_SubscribeDuringReconnectCooldown(t *testing.T) {
	var mu sync.Mutex
	var transports []*fakeTransport
	factory := func(ClientConfig, *slog.Logger) Transport {
		ft := newFakeTransport()
		mu.Lock()
		transports = append(transports, ft)
		mu.Unlock()
		return ft
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(transports)
	}

	m := NewManager(ManagerConfig{
		WSURL:             "ws://stream.test",
		ReconnectCooldown: 50 * time.Millisecond,
	}, WithTransportFactory(factory))
	defer m.Close()

	if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	m.Reconnect()

	// A subscribe inside the cooldown window must not race the pending
	// timer into a second transport.
	if _, err := m.Subscribe([]string{"MSFT"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe during cooldown: %v", err)
	}

	waitFor(t, "reconnected state", func() bool { return m.State() == StateConnected })
	time.Sleep(100 * time.Millisecond)

	if got := count(); got != 2 {
		t.Fatalf("transports created = %d, want 2 (initial + one reconnect)", got)
	}

	mu.Lock()
	first, second := transports[0], transports[1]
	mu.Unlock()
	if !first.isClosed() {
		t.Error("superseded transport left open")
	}

	// The post-reconnect intent carries the full interest.
	waitFor(t, "resubscribe intent", func() bool { return len(second.sentEvents()) > 0 })
	ev := second.sentEvents()[0]
	if ev.Event != "subscribe_prices" || len(ev.Symbols) != 2 {
		t.Errorf("resubscribe intent = %+v, want both symbols", ev)
	}
}

func TestManager_CloseDuringReconnectCooldown(t *testing.T) {
	var mu sync.Mutex
	created := 0
	factory := func(ClientConfig, *slog.Logger) Transport {
		mu.Lock()
		created++
		mu.Unlock()
		return newFakeTransport()
	}

	m := NewManager(ManagerConfig{
		WSURL:             "ws://stream.test",
		ReconnectCooldown: 20 * time.Millisecond,
	}, WithTransportFactory(factory))

	if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	m.Reconnect()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if created != 1 {
		t.Errorf("transports created = %d, want 1 (cooldown cancelled by Close)", created)
	}
}

func TestManager_TransportErrorIsSticky(t *testing.T) {
	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test"})
	defer m.Close()

	if _, err := m.Subscribe([]string{"AAPL"}, &recordListener{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	latest().errors <- fmt.Errorf("connection reset")

	waitFor(t, "failed state", func() bool { return m.State() == StateFailed })
	if m.Live() {
		t.Error("Live = true after transport failure")
	}
	if m.Err() == nil {
		t.Error("Err = nil after transport failure")
	}
}

func TestManager_MalformedUpdatesDiscarded(t *testing.T) {
	m, latest := testManager(ManagerConfig{WSURL: "ws://stream.test"})
	defer m.Close()

	listener := &recordListener{}
	if _, err := m.Subscribe([]string{"AAPL"}, listener); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })
	ft := latest()

	// Non-numeric price: discarded, does not count toward liveness.
	ft.push(t, map[string]any{"AAPL": map[string]any{"price": "N/A"}})
	time.Sleep(30 * time.Millisecond)
	if listener.count() != 0 {
		t.Errorf("deliveries = %d for malformed update, want 0", listener.count())
	}
	if m.Live() {
		t.Error("Live = true after only malformed updates")
	}

	ft.push(t, map[string]any{"AAPL": map[string]any{"price": 2.5}})
	waitFor(t, "valid delivery", func() bool { return listener.count() == 1 })
}

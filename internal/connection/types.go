package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gil10101/sokin-sub003/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrSymbolLimit   = errors.New("distinct symbol limit reached")
	ErrUnhealthy     = errors.New("streaming tier unhealthy")
	ErrNoUpdates     = errors.New("no price updates received within watchdog window")
)

// State is the lifecycle position of the shared transport.
type State int32

const (
	StateUnattempted State = iota
	StateProbing
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnattempted:
		return "unattempted"
	case StateProbing:
		return "probing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Listener receives price updates for subscribed symbols.
// Implementations must be comparable (use pointer receivers); the
// registry keeps one entry per distinct listener value so subscribing
// the same listener twice still delivers each update once.
type Listener interface {
	OnPriceUpdate(update model.PriceUpdate)
}

// clientEvent is a client→server frame.
type clientEvent struct {
	Event   string   `json:"event"` // "subscribe_prices" or "unsubscribe_prices"
	Symbols []string `json:"symbols"`
}

// serverEvent is a server→client frame. For "price_updates" the
// Updates map carries one partial quote per symbol.
type serverEvent struct {
	Event   string                     `json:"event"`
	Updates map[string]json.RawMessage `json:"updates"`
	Message string                     `json:"message,omitempty"`
}

// healthResponse is the body of the status probe endpoint.
type healthResponse struct {
	Status string `json:"status"`
}

// ClientConfig configures a WebSocket transport.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://host/stream)
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	WSURL             string        // Push channel URL
	HealthURL         string        // Status probe URL (GET, expects {"status":"healthy"})
	SymbolLimit       int           // Aggregate distinct-symbol cap across all consumers
	WatchdogTimeout   time.Duration // Window for the liveness watchdog
	ReconnectCooldown time.Duration // Fixed wait before a reconnect attempt
	ProbeTimeout      time.Duration // HTTP timeout for the health probe
	WriteTimeout      time.Duration // Transport write deadline
	BufferSize        int           // Transport message buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SymbolLimit:       20,
		WatchdogTimeout:   10 * time.Second,
		ReconnectCooldown: 2 * time.Second,
		ProbeTimeout:      5 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        256,
	}
}

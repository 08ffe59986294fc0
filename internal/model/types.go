package model

import (
	"regexp"
	"strings"
	"time"
)

// symbolPattern matches plain tickers and index symbols like ^GSPC.
var symbolPattern = regexp.MustCompile(`^[A-Z^]{1,10}$`)

// NormalizeSymbol trims whitespace and uppercases a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidSymbol reports whether a symbol is well-formed after normalization.
func ValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Stock is the full record for a single security.
type Stock struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	AvgVolume     int64     `json:"avgVolume"`
	MarketCap     float64   `json:"marketCap"`
	PERatio       float64   `json:"peRatio"`
	WeekHigh52    float64   `json:"weekHigh52"`
	WeekLow52     float64   `json:"weekLow52"`
	WeekChange52  float64   `json:"weekChange52"`
	Chart         []float64 `json:"chart,omitempty"`       // Closing prices, last 30 days
	LastUpdated   string    `json:"lastUpdated,omitempty"` // Time of the latest live tick, ISO-8601
}

// Index is a single market index quote (e.g., ^GSPC).
type Index struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// SearchResult is a single match from symbol/name search.
type SearchResult struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Exchange      string  `json:"exchange,omitempty"`
}

// PriceUpdate is a partial quote delivered over the push channel.
// Only price-related fields are present; descriptive fields (name,
// volume) must be merged from a previously fetched full record.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Timestamp     string  `json:"timestamp"` // ISO-8601, server-local
}

// -----------------------------------------------------------------------------
// Portfolio Types
// -----------------------------------------------------------------------------

// Holding is a position in the user's portfolio with live valuation.
type Holding struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Change          float64 `json:"change"`
	ChangePercent   float64 `json:"changePercent"`
	Shares          float64 `json:"shares"`
	TotalValue      float64 `json:"totalValue"`
	PurchasePrice   float64 `json:"purchasePrice"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercent"`
}

// Portfolio is the aggregate view returned by the portfolio endpoint.
type Portfolio struct {
	Holdings   []Holding `json:"holdings"`
	TotalValue float64   `json:"totalValue"`
	CashValue  float64   `json:"cashValue"`
}

// TransactionSide is the direction of a trade.
type TransactionSide string

const (
	SideBuy  TransactionSide = "buy"
	SideSell TransactionSide = "sell"
)

// Transaction is a single executed trade in the history.
type Transaction struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       TransactionSide `json:"type"`
	Shares     float64         `json:"shares"`
	Price      float64         `json:"price"`
	TotalValue float64         `json:"totalValue"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TransactionRequest is a currency-denominated trade instruction.
// Amount is the cash value to trade, not a share count.
type TransactionRequest struct {
	Symbol string          `json:"symbol"`
	Side   TransactionSide `json:"type"`
	Amount float64         `json:"amount"`
	Price  float64         `json:"price"`
}

// TransactionResult is the server acknowledgement of a trade.
type TransactionResult struct {
	Message string  `json:"message"`
	Shares  float64 `json:"shares,omitempty"`
}

// MaxSellAmount is the server-authoritative sell limit for a symbol.
type MaxSellAmount struct {
	Symbol    string  `json:"symbol"`
	Shares    float64 `json:"shares"`
	MaxAmount float64 `json:"maxAmount"`
}

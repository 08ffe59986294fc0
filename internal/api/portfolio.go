package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gil10101/sokin-sub003/internal/auth"
	"github.com/gil10101/sokin-sub003/internal/cache"
	"github.com/gil10101/sokin-sub003/internal/model"
)

// bearerToken resolves the caller's identity. auth.ErrNoIdentity is
// returned before any network attempt when the user is signed out or
// no token source was configured.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", auth.ErrNoIdentity
	}
	return c.tokens.Token(ctx)
}

// GetUserPortfolio returns the user's aggregate portfolio.
func (c *Client) GetUserPortfolio(ctx context.Context, userID string) (model.Portfolio, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return model.Portfolio{}, err
	}

	key := "portfolio_" + userID
	v, err := c.cached(ctx, key, cache.TTLPortfolio, func(ctx context.Context) (any, error) {
		var p model.Portfolio
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/portfolio/"+url.PathEscape(userID), nil, nil, token, &p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return model.Portfolio{}, err
	}
	return v.(model.Portfolio), nil
}

// GetPortfolioHoldings returns the user's individual positions.
func (c *Client) GetPortfolioHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	key := "holdings_" + userID
	v, err := c.cached(ctx, key, cache.TTLPortfolio, func(ctx context.Context) (any, error) {
		var holdings []model.Holding
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/portfolio/"+url.PathEscape(userID)+"/holdings", nil, nil, token, &holdings); err != nil {
			return nil, err
		}
		return holdings, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Holding), nil
}

// GetTransactionHistory returns the user's executed trades.
func (c *Client) GetTransactionHistory(ctx context.Context, userID string) ([]model.Transaction, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	key := "transactions_" + userID
	v, err := c.cached(ctx, key, cache.TTLPortfolio, func(ctx context.Context) (any, error) {
		var txs []model.Transaction
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/portfolio/"+url.PathEscape(userID)+"/transactions", nil, nil, token, &txs); err != nil {
			return nil, err
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Transaction), nil
}

// GetMaxSellAmount returns the server-authoritative sell limit for a
// symbol. Sell limits are time-sensitive, so this always round-trips
// and is never cached.
func (c *Client) GetMaxSellAmount(ctx context.Context, symbol string) (model.MaxSellAmount, error) {
	symbol = model.NormalizeSymbol(symbol)
	if !model.ValidSymbol(symbol) {
		return model.MaxSellAmount{}, &ValidationError{Field: "symbol", Message: "must match ^[A-Z^]{1,10}$"}
	}

	token, err := c.bearerToken(ctx)
	if err != nil {
		return model.MaxSellAmount{}, err
	}

	var out model.MaxSellAmount
	if err := c.call(ctx, http.MethodGet, apiBasePath+"/portfolio/max-sell/"+url.PathEscape(symbol), nil, nil, token, &out); err != nil {
		return model.MaxSellAmount{}, err
	}
	return out, nil
}

// ExecuteTransaction posts a currency-denominated trade instruction.
// On success the whole response cache is cleared: one trade can touch
// portfolio, holdings, and sell-limit data at once.
func (c *Client) ExecuteTransaction(ctx context.Context, req model.TransactionRequest) (model.TransactionResult, error) {
	req.Symbol = model.NormalizeSymbol(req.Symbol)
	if !model.ValidSymbol(req.Symbol) {
		return model.TransactionResult{}, &ValidationError{Field: "symbol", Message: "must match ^[A-Z^]{1,10}$"}
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return model.TransactionResult{}, &ValidationError{Field: "type", Message: `must be "buy" or "sell"`}
	}
	if req.Amount <= 0 {
		return model.TransactionResult{}, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if req.Price <= 0 {
		return model.TransactionResult{}, &ValidationError{Field: "price", Message: "must be positive"}
	}

	token, err := c.bearerToken(ctx)
	if err != nil {
		return model.TransactionResult{}, err
	}

	var result model.TransactionResult
	if err := c.call(ctx, http.MethodPost, apiBasePath+"/portfolio/transaction", nil, req, token, &result); err != nil {
		return model.TransactionResult{}, err
	}

	c.cache.Clear()
	c.logger.Info("transaction executed, cache cleared",
		"symbol", req.Symbol,
		"side", req.Side,
	)

	return result, nil
}

// GetWatchlist returns the user's watched symbols.
func (c *Client) GetWatchlist(ctx context.Context, userID string) ([]string, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	key := "watchlist_" + userID
	v, err := c.cached(ctx, key, cache.TTLPortfolio, func(ctx context.Context) (any, error) {
		var symbols []string
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/watchlist/"+url.PathEscape(userID), nil, nil, token, &symbols); err != nil {
			return nil, err
		}
		return symbols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// UpdateWatchlist replaces the user's watched symbols. Every symbol
// is validated before the request is sent, and the watchlist cache
// entry is dropped afterwards so the next read observes the change.
func (c *Client) UpdateWatchlist(ctx context.Context, userID string, symbols []string) error {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = model.NormalizeSymbol(s)
		if !model.ValidSymbol(s) {
			return &ValidationError{Field: "symbols", Message: "contains malformed symbol"}
		}
		normalized = append(normalized, s)
	}

	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	body := map[string][]string{"symbols": normalized}
	if err := c.call(ctx, http.MethodPost, apiBasePath+"/watchlist/"+url.PathEscape(userID), nil, body, token, nil); err != nil {
		return err
	}

	c.cache.Clear()
	return nil
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gil10101/sokin-sub003/internal/cache"
	"github.com/gil10101/sokin-sub003/internal/model"
)

const maxSearchQueryLen = 50

// GetTrendingStocks returns up to limit trending stocks. The limit
// must be within [1, 50].
func (c *Client) GetTrendingStocks(ctx context.Context, limit int) ([]model.Stock, error) {
	if limit < 1 || limit > 50 {
		return nil, &ValidationError{Field: "limit", Message: "must be between 1 and 50"}
	}

	key := fmt.Sprintf("trending_stocks_%d", limit)
	v, err := c.cached(ctx, key, cache.TTLTrending, func(ctx context.Context) (any, error) {
		query := url.Values{"limit": {strconv.Itoa(limit)}}
		var stocks []model.Stock
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/trending-stocks", query, nil, "", &stocks); err != nil {
			return nil, err
		}
		return stocks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Stock), nil
}

// GetMarketIndices returns the major market index quotes.
func (c *Client) GetMarketIndices(ctx context.Context) ([]model.Index, error) {
	v, err := c.cached(ctx, "market_indices", cache.TTLIndices, func(ctx context.Context) (any, error) {
		var indices []model.Index
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/market-indices", nil, nil, "", &indices); err != nil {
			return nil, err
		}
		return indices, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Index), nil
}

// GetStockData returns the full record for one symbol. The symbol is
// normalized before validation.
func (c *Client) GetStockData(ctx context.Context, symbol string) (model.Stock, error) {
	symbol = model.NormalizeSymbol(symbol)
	if !model.ValidSymbol(symbol) {
		return model.Stock{}, &ValidationError{Field: "symbol", Message: "must match ^[A-Z^]{1,10}$"}
	}

	key := "stock_" + symbol
	v, err := c.cached(ctx, key, cache.TTLStock, func(ctx context.Context) (any, error) {
		var stock model.Stock
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/stock/"+url.PathEscape(symbol), nil, nil, "", &stock); err != nil {
			return nil, err
		}
		return stock, nil
	})
	if err != nil {
		return model.Stock{}, err
	}
	return v.(model.Stock), nil
}

// SearchStocks searches by symbol or name. The query is trimmed and
// truncated to 50 characters; limit must be within [1, 25].
func (c *Client) SearchStocks(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = trimQuery(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "must be non-empty"}
	}
	if limit < 1 || limit > 25 {
		return nil, &ValidationError{Field: "limit", Message: "must be between 1 and 25"}
	}

	key := fmt.Sprintf("search_%s_%d", query, limit)
	v, err := c.cached(ctx, key, cache.TTLSearch, func(ctx context.Context) (any, error) {
		params := url.Values{
			"q":     {query},
			"limit": {strconv.Itoa(limit)},
		}
		var results []model.SearchResult
		if err := c.call(ctx, http.MethodGet, apiBasePath+"/search", params, nil, "", &results); err != nil {
			return nil, err
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.SearchResult), nil
}

// trimQuery normalizes a search query to its bounded form. The bound
// is in runes so a multi-byte character is never split.
func trimQuery(q string) string {
	q = strings.TrimSpace(q)
	if runes := []rune(q); len(runes) > maxSearchQueryLen {
		q = string(runes[:maxSearchQueryLen])
	}
	return q
}

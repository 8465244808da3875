package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kraken exercises the list_symbols + per-symbol fetch_ticker branch of the
// strategy (spec §4.8 step 2): no bulk ticker endpoint, but a cheap pair
// listing to iterate.
type Kraken struct {
	http *httpClient

	namesMu sync.RWMutex
	names   map[string]string // pair code -> wsname, populated by ListSymbols
}

// NewKraken builds a Kraken adapter. Kraken's public tier rate-limits more
// aggressively than Binance's, reflected in the lower burst.
func NewKraken() *Kraken {
	return &Kraken{http: newHTTPClient("https://api.kraken.com", 10*time.Second, 1, 3), names: make(map[string]string)}
}

func (k *Kraken) Name() string          { return "kraken" }
func (k *Kraken) HasFetchTickers() bool { return false }

func (k *Kraken) FetchTickers(ctx context.Context) (map[string]map[string]interface{}, error) {
	return nil, nil
}

type krakenAssetPairsResp struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Wsname string `json:"wsname"` // "XBT/USD"-shaped
	} `json:"result"`
}

// ListSymbols calls /0/public/AssetPairs, returning Kraken's native pair
// codes (used as the FetchTicker argument).
func (k *Kraken) ListSymbols(ctx context.Context) ([]string, error) {
	var resp krakenAssetPairsResp
	if err := k.http.getJSON(ctx, "/0/public/AssetPairs", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken AssetPairs error: %s", strings.Join(resp.Error, "; "))
	}
	symbols := make([]string, 0, len(resp.Result))
	k.namesMu.Lock()
	for pair, info := range resp.Result {
		symbols = append(symbols, pair)
		k.names[pair] = info.Wsname
	}
	k.namesMu.Unlock()
	return symbols, nil
}

type krakenTickerResp struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		A []string `json:"a"` // ask: price, whole lot volume, lot volume
		B []string `json:"b"` // bid
		C []string `json:"c"` // last trade: price, lot volume
		O string   `json:"o"` // today's opening price
		H []string `json:"h"` // high: today, last 24h
		L []string `json:"l"` // low: today, last 24h
		V []string `json:"v"` // volume: today, last 24h
	} `json:"result"`
}

// FetchTicker calls /0/public/Ticker?pair=<symbol>. Kraken namespaces the
// "EAPI:Rate limit exceeded" condition inside a 200 response body rather
// than an HTTP status, so it is classified here rather than in httpClient.
func (k *Kraken) FetchTicker(ctx context.Context, symbol string) (map[string]interface{}, error) {
	var resp krakenTickerResp
	if err := k.http.getJSON(ctx, "/0/public/Ticker", urlValues("pair", symbol), &resp); err != nil {
		return nil, PerSymbol(symbol, err)
	}
	if len(resp.Error) > 0 {
		msg := strings.Join(resp.Error, "; ")
		if strings.Contains(msg, "Rate limit") || strings.Contains(msg, "Busy") {
			return nil, RateLimitOrTimeout(fmt.Errorf("kraken: %s", msg))
		}
		return nil, PerSymbol(symbol, fmt.Errorf("kraken: %s", msg))
	}

	t, ok := resp.Result[symbol]
	if !ok {
		return nil, PerSymbol(symbol, fmt.Errorf("symbol missing from response"))
	}

	wsname := k.wsname(symbol)
	return map[string]interface{}{
		"symbol":     wsname,
		"last":       parseFloat(first(t.C)),
		"bid":        parseFloat(first(t.B)),
		"ask":        parseFloat(first(t.A)),
		"open":       parseFloat(t.O),
		"high":       parseFloat(second(t.H)),
		"low":        parseFloat(second(t.L)),
		"baseVolume": parseFloat(second(t.V)),
	}, nil
}

// wsname resolves symbol ("XXBTZUSD") to its "/"-separated display form
// ("XBT/USD") so the Ticker Parser's rule 2 can split it. Falls back to the
// raw symbol (handled by the parser's key-split fallback, rule 3) if the
// pair isn't cached.
func (k *Kraken) wsname(symbol string) string {
	k.namesMu.RLock()
	defer k.namesMu.RUnlock()
	if name, ok := k.names[symbol]; ok {
		return name
	}
	return symbol
}

func (k *Kraken) FetchMarkets(ctx context.Context) ([]MarketInfo, error) { return nil, nil }

func first(v []string) string {
	if len(v) > 0 {
		return v[0]
	}
	return ""
}

func second(v []string) string {
	if len(v) > 1 {
		return v[1]
	}
	return first(v)
}

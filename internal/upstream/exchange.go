// Package upstream implements the narrow capability set the Fetch Worker
// uses to pull ticker data from an exchange (spec §4.8): has_fetch_tickers,
// fetch_tickers, fetch_ticker(symbol), list_symbols, fetch_markets.
package upstream

import (
	"context"
	"errors"
)

// MarketInfo is one entry from an exchange's market enumeration, used by
// the fetch_markets branch of the strategy (spec §4.8 step 3).
type MarketInfo struct {
	Symbol string // exchange-native symbol, passed back into FetchTicker
	Quote  string // uppercased quote asset, used for the fiat-market filter
}

// Exchange is the capability set a Fetch Worker needs from an upstream
// venue. Adapters implement only the methods their strategy branch uses;
// the others return (nil, nil) or (false) as appropriate.
type Exchange interface {
	Name() string

	// HasFetchTickers reports whether this venue exposes a bulk ticker
	// endpoint (spec §4.8 step 1).
	HasFetchTickers() bool

	// FetchTickers bulk-fetches every ticker in one call. Each value is a
	// duck-typed raw record consumed directly by internal/tickerparser.
	FetchTickers(ctx context.Context) (map[string]map[string]interface{}, error)

	// ListSymbols enumerates the venue's tradable symbols for the
	// per-symbol iteration branch (spec §4.8 step 2).
	ListSymbols(ctx context.Context) ([]string, error)

	// FetchTicker fetches one symbol's raw ticker record.
	FetchTicker(ctx context.Context, symbol string) (map[string]interface{}, error)

	// FetchMarkets enumerates markets for the fallback enumeration branch
	// (spec §4.8 step 3), with enough metadata to apply the fiat-market
	// filter without a round trip per market.
	FetchMarkets(ctx context.Context) ([]MarketInfo, error)
}

// ErrNoSymbols is returned by FetchAll when none of the three strategy
// branches produce any symbols (spec §4.8 step 4).
var ErrNoSymbols = errors.New("no symbols in exchange")

// PerSymbolError wraps a per-symbol fetch failure that should be swallowed
// and the loop continued (spec §4.8 "swallow per-symbol exchange errors").
type PerSymbolError struct {
	Symbol string
	Err    error
}

func (e *PerSymbolError) Error() string { return e.Symbol + ": " + e.Err.Error() }
func (e *PerSymbolError) Unwrap() error { return e.Err }

// PerSymbol wraps err as a PerSymbolError for symbol.
func PerSymbol(symbol string, err error) error {
	return &PerSymbolError{Symbol: symbol, Err: err}
}

// RateLimitOrTimeoutError signals a batch-fatal condition that must break
// the per-symbol iteration loop (spec §4.8 "break out on rate-limit/DDoS-
// protection or request-timeout errors").
type RateLimitOrTimeoutError struct {
	Err error
}

func (e *RateLimitOrTimeoutError) Error() string { return "rate limit or timeout: " + e.Err.Error() }
func (e *RateLimitOrTimeoutError) Unwrap() error { return e.Err }

// RateLimitOrTimeout wraps err as a RateLimitOrTimeoutError.
func RateLimitOrTimeout(err error) error {
	return &RateLimitOrTimeoutError{Err: err}
}

package upstream

import (
	"context"
	"strings"
	"time"
)

// Bittrex exercises the fetch_markets enumeration branch of the strategy
// (spec §4.8 step 3). Its payload shape (symbol "BASE-USD", no slash)
// grounds the Ticker Parser's dash-separator default path — spec.md's own
// scenario 1 names Bittrex explicitly.
type Bittrex struct {
	http *httpClient
}

// NewBittrex builds a Bittrex adapter.
func NewBittrex() *Bittrex {
	return &Bittrex{http: newHTTPClient("https://api.bittrex.com/v3", 10*time.Second, 5, 10)}
}

func (x *Bittrex) Name() string          { return "bittrex" }
func (x *Bittrex) HasFetchTickers() bool { return false }

func (x *Bittrex) ListSymbols(context.Context) ([]string, error) { return nil, nil }

func (x *Bittrex) FetchTickers(ctx context.Context) (map[string]map[string]interface{}, error) {
	return nil, nil
}

type bittrexMarket struct {
	Symbol              string `json:"symbol"` // "BTC-USD"
	BaseCurrencySymbol  string `json:"baseCurrencySymbol"`
	QuoteCurrencySymbol string `json:"quoteCurrencySymbol"`
	Status              string `json:"status"` // "ONLINE" | "OFFLINE"
}

// FetchMarkets calls GET /markets, filtering to currently tradable markets.
func (x *Bittrex) FetchMarkets(ctx context.Context) ([]MarketInfo, error) {
	var raw []bittrexMarket
	if err := x.http.getJSON(ctx, "/markets", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]MarketInfo, 0, len(raw))
	for _, m := range raw {
		if m.Status != "ONLINE" {
			continue
		}
		out = append(out, MarketInfo{Symbol: m.Symbol, Quote: strings.ToUpper(m.QuoteCurrencySymbol)})
	}
	return out, nil
}

type bittrexTicker struct {
	Symbol        string `json:"symbol"`
	LastTradeRate string `json:"lastTradeRate"`
	BidRate       string `json:"bidRate"`
	AskRate       string `json:"askRate"`
}

type bittrexSummary struct {
	High   string `json:"high"`
	Low    string `json:"low"`
	Volume string `json:"volume"` // base-denominated
}

// FetchTicker joins GET /markets/{symbol}/ticker and .../summary, since
// Bittrex splits last/bid/ask from OHLCV across two endpoints.
func (x *Bittrex) FetchTicker(ctx context.Context, symbol string) (map[string]interface{}, error) {
	var t bittrexTicker
	if err := x.http.getJSON(ctx, "/markets/"+symbol+"/ticker", nil, &t); err != nil {
		return nil, PerSymbol(symbol, err)
	}

	var s bittrexSummary
	if err := x.http.getJSON(ctx, "/markets/"+symbol+"/summary", nil, &s); err != nil {
		return nil, PerSymbol(symbol, err)
	}

	return map[string]interface{}{
		"symbol":     symbol,
		"last":       parseFloat(t.LastTradeRate),
		"bid":        parseFloat(t.BidRate),
		"ask":        parseFloat(t.AskRate),
		"high":       parseFloat(s.High),
		"low":        parseFloat(s.Low),
		"baseVolume": parseFloat(s.Volume),
	}, nil
}

package upstream

import (
	"context"
	"errors"

	"marketmanager/pkg/utils"
)

// FetchAll runs the three-branch strategy from spec §4.8 against one
// exchange. fiatMarkets/fiatSymbols are only consulted by the fetch_markets
// branch (step 3's "skip markets whose quote is not in FIAT_SYMBOLS", but
// only when the exchange is already flagged fiat_markets).
func FetchAll(ctx context.Context, ex Exchange, fiatMarkets bool, fiatSymbols []string) (map[string]map[string]interface{}, error) {
	if ex.HasFetchTickers() {
		return ex.FetchTickers(ctx)
	}

	if symbols, err := ex.ListSymbols(ctx); err == nil && len(symbols) > 0 {
		return fetchBySymbols(ctx, ex, symbols)
	}

	if markets, err := ex.FetchMarkets(ctx); err == nil && len(markets) > 0 {
		symbols := filterMarkets(markets, fiatMarkets, fiatSymbols)
		if len(symbols) == 0 {
			return nil, ErrNoSymbols
		}
		return fetchBySymbols(ctx, ex, symbols)
	}

	return nil, ErrNoSymbols
}

func filterMarkets(markets []MarketInfo, fiatMarkets bool, fiatSymbols []string) []string {
	symbols := make([]string, 0, len(markets))
	for _, m := range markets {
		if fiatMarkets && !isFiat(m.Quote, fiatSymbols) {
			continue
		}
		symbols = append(symbols, m.Symbol)
	}
	return symbols
}

func isFiat(symbol string, fiatSymbols []string) bool {
	for _, f := range fiatSymbols {
		if f == symbol {
			return true
		}
	}
	return false
}

func fetchBySymbols(ctx context.Context, ex Exchange, symbols []string) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{}, len(symbols))
	for _, symbol := range symbols {
		t, err := ex.FetchTicker(ctx, symbol)
		if err != nil {
			var rl *RateLimitOrTimeoutError
			if errors.As(err, &rl) {
				utils.L().Warn("breaking ticker fetch loop on rate limit/timeout",
					utils.String("exchange", ex.Name()), utils.String("symbol", symbol), utils.Err(err))
				break
			}
			utils.L().Debug("per-symbol ticker fetch failed, skipping",
				utils.String("exchange", ex.Name()), utils.String("symbol", symbol), utils.Err(err))
			continue
		}
		out[symbol] = t
	}
	return out, nil
}

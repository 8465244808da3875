// Package fiatrate derives a FiatRateMap covering as many symbols in a
// TickerBatch as possible (spec §4.2), so the Snapshot Updater can express
// every pair's volume in one canonical fiat unit.
package fiatrate

import (
	"context"

	"marketmanager/internal/models"
	"marketmanager/internal/statusstore"
	"marketmanager/pkg/utils"
)

// CurrencyService is the external fallback contract (spec §6.4), narrowed
// to what the resolver needs.
type CurrencyService interface {
	FetchCurrencyPrices(ctx context.Context) (map[string]float64, error)
}

// Resolver implements spec §4.2's seed/transitive/local-fallback/external-fallback
// algorithm.
type Resolver struct {
	store    statusstore.Store
	currency CurrencyService
	fiats    []string // FIAT_SYMBOLS, ordered; first is canonical
}

// New builds a Resolver. fiatSymbols must be non-empty (config.Load already
// enforces this).
func New(store statusstore.Store, currency CurrencyService, fiatSymbols []string) *Resolver {
	return &Resolver{store: store, currency: currency, fiats: fiatSymbols}
}

func (r *Resolver) isFiat(symbol string) bool {
	for _, f := range r.fiats {
		if f == symbol {
			return true
		}
	}
	return false
}

// Result is the Resolver's output: the full rate map plus the subset of
// bases directly fiat-quoted in this batch, persisted verbatim to
// CurrencyFiatPrices (spec §4.2).
type Result struct {
	Rate      models.FiatRateMap
	FiatPairs models.FiatRateMap
}

// Resolve runs the four-step algorithm against one run's TickerBatch for
// exchangeID (used only by the local-fallback query).
func (r *Resolver) Resolve(ctx context.Context, batch models.TickerBatch, exchangeID int) Result {
	rate := make(models.FiatRateMap)
	fiatPairs := make(models.FiatRateMap)

	// Step 1: seed from fiat-quoted pairs. Last one visited wins on
	// collision (spec §4.2 step 1, acknowledged non-determinism — see
	// DESIGN.md Open Questions).
	for _, entry := range batch {
		if r.isFiat(entry.Quote) && entry.Last > 0 {
			rate[entry.Base] = entry.Last
			fiatPairs[entry.Base] = entry.Last
		}
	}

	// Step 2: transitive closure, one pass.
	for _, entry := range batch {
		if _, has := rate[entry.Base]; has {
			continue
		}
		quoteRate, ok := rate[entry.Quote]
		if !ok || entry.Last <= 0 {
			continue
		}
		rate[entry.Base] = entry.Last * quoteRate
	}

	if len(rate) > 0 {
		return Result{Rate: rate, FiatPairs: fiatPairs}
	}

	// Step 3: local fallback, every Market whose quote is a fiat symbol,
	// across all exchanges (spec §4.2 step 3). exchangeID is not used here:
	// the fallback is deliberately exchange-agnostic, matching
	// get_local_fiat_prices()'s unfiltered Market.objects.filter(quote__in=...).
	if r.store != nil {
		if markets, err := r.store.Markets().GetAll(); err == nil {
			for _, m := range markets {
				if r.isFiat(m.Quote) && m.Last > 0 {
					rate[m.Base] = m.Last
				}
			}
		} else {
			utils.L().Warn("fiat rate local fallback query failed", utils.Err(err), utils.Int("exchange_id", exchangeID))
		}
	}

	if len(rate) > 0 {
		return Result{Rate: rate, FiatPairs: fiatPairs}
	}

	// Step 4: external fallback. On error or empty response, return an
	// empty map; the Snapshot Updater's Summariser skips this run.
	if r.currency != nil {
		prices, err := r.currency.FetchCurrencyPrices(ctx)
		if err != nil {
			utils.L().Warn("fiat rate external fallback failed", utils.Err(err))
			return Result{Rate: models.FiatRateMap{}, FiatPairs: fiatPairs}
		}
		return Result{Rate: models.FiatRateMap(prices), FiatPairs: fiatPairs}
	}

	return Result{Rate: models.FiatRateMap{}, FiatPairs: fiatPairs}
}

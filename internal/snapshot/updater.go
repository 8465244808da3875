// Package snapshot implements the Snapshot Updater (spec §4.3): given
// (exchange_id, TickerBatch, FiatRateMap), atomically bring the snapshot
// store to a state reflecting this batch and advance the exchange's
// last-fetch watermark.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"marketmanager/internal/metrics"
	"marketmanager/internal/models"
	"marketmanager/pkg/retry"
	"marketmanager/pkg/utils"
)

// MarketRepo is the subset of internal/repository.MarketRepository the
// updater needs, plus the row-level-locking query this package adds.
type MarketRepo interface {
	Upsert(tx *sql.Tx, m *models.Market) error
	GetByExchangeIDForUpdate(tx *sql.Tx, exchangeID int) ([]*models.Market, error)
}

// FiatPriceRepo is the subset of internal/repository.FiatPriceRepository
// the updater needs.
type FiatPriceRepo interface {
	Upsert(tx *sql.Tx, p *models.CurrencyFiatPrices) error
}

// ExchangeRepo is the subset of internal/repository.ExchangeRepository the
// updater needs to write the computed summary.
type ExchangeRepo interface {
	GetByIDForUpdate(tx *sql.Tx, id int) (*models.Exchange, error)
	UpdateSummary(tx *sql.Tx, e *models.Exchange) error
}

// Updater runs the transactional reconciliation described in spec §4.3.
type Updater struct {
	db         *sql.DB
	markets    MarketRepo
	fiatPrices FiatPriceRepo
	exchanges  ExchangeRepo
	fiats      []string
}

// New builds an Updater. fiatSymbols is FIAT_SYMBOLS (first element is the
// canonical unit).
func New(db *sql.DB, markets MarketRepo, fiatPrices FiatPriceRepo, exchanges ExchangeRepo, fiatSymbols []string) *Updater {
	return &Updater{db: db, markets: markets, fiatPrices: fiatPrices, exchanges: exchanges, fiats: fiatSymbols}
}

func (u *Updater) isFiat(symbol string) bool {
	for _, f := range u.fiats {
		if f == symbol {
			return true
		}
	}
	return false
}

// Summary is the computed per-exchange rollup (spec §4.3 "Per-exchange
// summary").
type Summary struct {
	Volume        float64
	TopPair       string
	TopPairVolume float64
	Computed      bool // false when the rate map was empty; existing fields untouched
}

// ComputeSummary implements the formula in spec §4.3, ties resolved by
// latest iteration order (>= not >).
func ComputeSummary(batch models.TickerBatch, rate models.FiatRateMap, isFiat func(string) bool) Summary {
	if len(rate) == 0 {
		return Summary{}
	}

	var s Summary
	for name, p := range batch {
		var quotePrice float64
		quoteIsFiat := isFiat(p.Quote)
		if quoteIsFiat {
			quotePrice = 1
		} else if v, ok := rate.Get(p.Quote); ok {
			quotePrice = v
		}

		var basePrice float64
		haveBasePrice := false
		switch {
		case isFiat(p.Base):
			basePrice, haveBasePrice = 1, true
		case quotePrice > 0 && p.Last > 0 && quoteIsFiat:
			basePrice, haveBasePrice = p.Last, true
		default:
			if v, ok := rate.Get(p.Base); ok {
				basePrice, haveBasePrice = v, true
			}
		}

		var v float64
		switch {
		case haveBasePrice:
			v = p.Volume * basePrice
		case quotePrice > 0 && p.Last > 0:
			v = p.Volume * p.Last * quotePrice
		default:
			continue // skip this pair, cannot price it
		}

		s.Volume += v
		if v >= s.TopPairVolume {
			s.TopPair, s.TopPairVolume = name, v
		}
	}
	s.Computed = true
	return s
}

// Apply runs the full transaction described in spec §4.3 steps 1-6. It
// retries once on a transaction conflict (spec §7: "the Snapshot Updater
// retries the whole transaction once; a second failure is reported").
func (u *Updater) Apply(ctx context.Context, exchangeID int, batch models.TickerBatch, result fiatRateResult) error {
	cfg := retry.Config{
		MaxRetries: 2, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0.1,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			metrics.SnapshotConflictRetriesTotal.WithLabelValues(strconv.Itoa(exchangeID)).Inc()
		},
	}
	return retry.Do(ctx, func() error {
		return u.applyOnce(ctx, exchangeID, batch, result)
	}, cfg)
}

// fiatRateResult decouples this package from internal/fiatrate's concrete
// Result type while keeping the two fields the updater needs.
type fiatRateResult struct {
	Rate      models.FiatRateMap
	FiatPairs models.FiatRateMap
}

// NewFiatRateResult adapts a (rate, fiatPairs) pair from internal/fiatrate.
func NewFiatRateResult(rate, fiatPairs models.FiatRateMap) fiatRateResult {
	return fiatRateResult{Rate: rate, FiatPairs: fiatPairs}
}

func (u *Updater) applyOnce(ctx context.Context, exchangeID int, batch models.TickerBatch, result fiatRateResult) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Step 1: acquire row-level locks on existing Markets for this exchange.
	existing, err := u.markets.GetByExchangeIDForUpdate(tx, exchangeID)
	if err != nil {
		return fmt.Errorf("lock existing markets: %w", err)
	}

	// Step 2: for each existing row present in the batch, overwrite from
	// the batch and remove it from the working set. Step 3: insert
	// whatever remains. Both are the same upsert statement; the "remove
	// from working batch" bookkeeping only matters for Market rows no
	// longer present, which are intentionally left untouched (spec §9 Open
	// Question 2: stale rows persist until GC, never deleted here).
	working := make(models.TickerBatch, len(batch))
	for k, v := range batch {
		working[k] = v
	}
	for _, m := range existing {
		if entry, ok := working[m.Name]; ok {
			m.Base, m.Quote = entry.Base, entry.Quote
			m.Last, m.Bid, m.Ask = entry.Last, entry.Bid, entry.Ask
			m.Open, m.Close, m.High, m.Low = entry.Open, entry.Close, entry.High, entry.Low
			m.Volume = entry.Volume
			if err := u.markets.Upsert(tx, m); err != nil {
				return fmt.Errorf("upsert existing market %s: %w", m.Name, err)
			}
			delete(working, m.Name)
		}
	}
	for name, entry := range working {
		m := &models.Market{
			ExchangeID: exchangeID,
			Name:       name,
			Base:       entry.Base,
			Quote:      entry.Quote,
			Last:       entry.Last,
			Bid:        entry.Bid,
			Ask:        entry.Ask,
			Open:       entry.Open,
			Close:      entry.Close,
			High:       entry.High,
			Low:        entry.Low,
			Volume:     entry.Volume,
		}
		if err := u.markets.Upsert(tx, m); err != nil {
			return fmt.Errorf("insert new market %s: %w", name, err)
		}
	}

	// Step 4: upsert CurrencyFiatPrices for fiatPairs.
	for currency, price := range result.FiatPairs {
		p := &models.CurrencyFiatPrices{Currency: currency, ExchangeID: exchangeID, Price: price}
		if err := u.fiatPrices.Upsert(tx, p); err != nil {
			return fmt.Errorf("upsert fiat price %s: %w", currency, err)
		}
	}

	// Step 5: compute and write the per-exchange summary.
	exchange, err := u.exchanges.GetByIDForUpdate(tx, exchangeID)
	if err != nil {
		return fmt.Errorf("load exchange %d: %w", exchangeID, err)
	}
	summary := ComputeSummary(batch, result.Rate, u.isFiat)
	if summary.Computed {
		exchange.Volume = summary.Volume
		exchange.TopPair = summary.TopPair
		exchange.TopPairVolume = summary.TopPairVolume
	}

	// Step 6: advance last_data_fetch.
	now := time.Now()
	exchange.LastDataFetch = &now
	if err := u.exchanges.UpdateSummary(tx, exchange); err != nil {
		return fmt.Errorf("write exchange summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot transaction: %w", err)
	}

	utils.L().Info("snapshot updated",
		utils.Int("exchange_id", exchangeID), utils.Int("pairs", len(batch)),
		utils.Bool("summary_computed", summary.Computed))
	return nil
}

// Package timeseries implements the Timeseries Writer (spec §4.4): a
// best-effort history sink, independent of the Snapshot Updater's
// authoritative transaction. Individual point-write failures are logged
// and otherwise ignored.
package timeseries

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"marketmanager/internal/metrics"
	"marketmanager/internal/models"
	"marketmanager/pkg/ratelimit"
	"marketmanager/pkg/utils"
)

// LineWriter is the narrow capability this package needs from a
// timeseries backend: accept one already-encoded line-protocol point.
type LineWriter interface {
	WriteLine(ctx context.Context, line string) error
}

// Writer fans batch entries out to LineWriter, one goroutine per point.
// Each write first waits on a token bucket that holds fanout tokens and
// refills at fanout tokens per second, so up to fanout writes start at once
// and later ones start at fanout per second. Tokens are not returned when a
// write finishes, so the number of writes in flight is not capped at fanout.
type Writer struct {
	backend LineWriter
	gate    *ratelimit.RateLimiter
	timeout time.Duration
}

// New builds a Writer. fanout (TIMESERIES_WRITE_FANOUT) is both the token
// bucket's capacity and its refill rate per second.
func New(backend LineWriter, fanout int, writeTimeout time.Duration) *Writer {
	if fanout < 1 {
		fanout = 1
	}
	return &Writer{backend: backend, gate: ratelimit.NewRateLimiter(float64(fanout), float64(fanout)), timeout: writeTimeout}
}

// Write appends one point per batch entry (pairs measurement) and one
// point per fiatPairs entry (fiat measurement), per spec §4.4. Each write
// runs concurrently, gated by the fanout limiter; failures are logged and
// do not propagate, since the Snapshot Updater's transaction remains the
// authoritative record for "current" state.
func (w *Writer) Write(ctx context.Context, exchangeID int, batch models.TickerBatch, fiatPairs models.FiatRateMap) {
	var wg sync.WaitGroup

	for name, entry := range batch {
		wg.Add(1)
		go func(name string, entry models.TickerEntry) {
			defer wg.Done()
			w.writeOne(ctx, "pairs", pairsLine(exchangeID, name, entry))
		}(name, entry)
	}

	for currency, price := range fiatPairs {
		wg.Add(1)
		go func(currency string, price float64) {
			defer wg.Done()
			w.writeOne(ctx, "fiat", fiatLine(exchangeID, currency, price))
		}(currency, price)
	}

	wg.Wait()
}

func (w *Writer) writeOne(ctx context.Context, measurement, line string) {
	if err := w.gate.Wait(ctx); err != nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.backend.WriteLine(writeCtx, line); err != nil {
		metrics.TimeseriesWriteFailuresTotal.WithLabelValues(measurement).Inc()
		utils.L().Warn("timeseries write failed", utils.Err(err), utils.String("line", line))
	}
}

// pairsLine encodes one pairs-measurement point (spec §4.4: tags
// base/quote/symbol/exchange_id, fields last/bid/ask/open/close/high/low/volume).
func pairsLine(exchangeID int, symbol string, e models.TickerEntry) string {
	tags := fmt.Sprintf("pairs,base=%s,quote=%s,symbol=%s,exchange_id=%d",
		escapeTag(e.Base), escapeTag(e.Quote), escapeTag(symbol), exchangeID)
	fields := fmt.Sprintf("last=%g,bid=%g,ask=%g,open=%g,close=%g,high=%g,low=%g,volume=%g",
		e.Last, e.Bid, e.Ask, e.Open, e.Close, e.High, e.Low, e.Volume)
	return tags + " " + fields
}

// fiatLine encodes one fiat-measurement point (spec §4.4: tags
// currency/exchange_id, field price).
func fiatLine(exchangeID int, currency string, price float64) string {
	return fmt.Sprintf("fiat,currency=%s,exchange_id=%d price=%g", escapeTag(currency), exchangeID, price)
}

func escapeTag(v string) string {
	v = strings.ReplaceAll(v, " ", "\\ ")
	v = strings.ReplaceAll(v, ",", "\\,")
	return strings.ReplaceAll(v, "=", "\\=")
}

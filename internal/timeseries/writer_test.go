package timeseries

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketmanager/internal/models"
)

type fakeBackend struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (f *fakeBackend) WriteLine(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return f.err
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

func TestWriteWritesOnePointPerBatchEntryAndFiatPair(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 5, time.Second)

	batch := models.TickerBatch{
		"BTC/USD": {Base: "BTC", Quote: "USD", Last: 50000, Volume: 10},
		"ETH/USD": {Base: "ETH", Quote: "USD", Last: 3000, Volume: 20},
	}
	fiatPairs := models.FiatRateMap{"BTC": 50000}

	w.Write(context.Background(), 1, batch, fiatPairs)

	if got := backend.count(); got != 3 {
		t.Fatalf("count() = %d, want 3 (2 pairs + 1 fiat)", got)
	}
}

func TestWriteToleratesBackendErrors(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	w := New(backend, 5, time.Second)

	batch := models.TickerBatch{"BTC/USD": {Base: "BTC", Quote: "USD", Last: 50000, Volume: 10}}

	// Must not panic or block despite every write failing.
	w.Write(context.Background(), 1, batch, nil)

	if got := backend.count(); got != 1 {
		t.Fatalf("count() = %d, want 1", got)
	}
}

func TestPairsLineEscapesTagValues(t *testing.T) {
	line := pairsLine(1, "BTC/USD", models.TickerEntry{Base: "BTC", Quote: "USD", Last: 1})
	if line == "" {
		t.Fatal("pairsLine() returned empty string")
	}
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"marketmanager/internal/fiatrate"
	"marketmanager/internal/models"
	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/snapshot"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/timeseries"
	"marketmanager/internal/upstream"
)

// fakeExchangeRepo/fakeStatusRepo/fakeMarketRepo/fakeFiatPriceRepo are the
// minimal in-memory statusstore.Store backing this package's own tests;
// internal/repository's real implementations are exercised (over sqlmock)
// by the Snapshot Updater side of TestPoolProcessSucceeds instead.
type fakeExchangeRepo struct {
	exchange *models.Exchange
}

func (f *fakeExchangeRepo) GetByID(id int) (*models.Exchange, error) { return f.exchange, nil }
func (f *fakeExchangeRepo) GetByName(string) (*models.Exchange, error) { return f.exchange, nil }
func (f *fakeExchangeRepo) GetAll() ([]*models.Exchange, error)        { return nil, nil }
func (f *fakeExchangeRepo) GetEnabled() ([]*models.Exchange, error)    { return nil, nil }
func (f *fakeExchangeRepo) Create(*models.Exchange) error              { return nil }
func (f *fakeExchangeRepo) Update(*models.Exchange) error              { return nil }
func (f *fakeExchangeRepo) SetEnabled(int, bool) error                 { return nil }
func (f *fakeExchangeRepo) SetFiatMarkets(id int, v bool) error {
	f.exchange.FiatMarkets = v
	return nil
}

type fakeStatusRepo struct {
	status  *models.ExchangeStatus
	failed  string
	released bool
}

func (f *fakeStatusRepo) EnsureExists(int) error { return nil }
func (f *fakeStatusRepo) GetByExchangeID(int) (*models.ExchangeStatus, error) { return f.status, nil }
func (f *fakeStatusRepo) GetAllRunning() ([]*models.ExchangeStatus, error)    { return nil, nil }
func (f *fakeStatusRepo) Claim(exchangeID int, runID string, startedAt time.Time) error {
	f.status.Running = true
	f.status.TimeStarted = &startedAt
	f.status.LastRunID = runID
	return nil
}
func (f *fakeStatusRepo) Release(exchangeID int, finishedAt time.Time) error {
	f.status.Running = false
	f.status.LastRun = &finishedAt
	f.released = true
	return nil
}
func (f *fakeStatusRepo) Fail(exchangeID int, status string) error {
	f.status.Running = false
	f.failed = status
	return nil
}
func (f *fakeStatusRepo) SetTimeout(int, int) error { return nil }

type fakeMarketRepo struct{}

func (fakeMarketRepo) GetByExchangeID(int) ([]*models.Market, error)        { return nil, nil }
func (fakeMarketRepo) GetAll() ([]*models.Market, error)                   { return nil, nil }
func (fakeMarketRepo) DeleteStale(time.Time) (int64, error)                { return 0, nil }

type fakeFiatPriceRepo struct{}

func (fakeFiatPriceRepo) GetByCurrencyAndExchange(string, int) (*models.CurrencyFiatPrices, error) {
	return nil, nil
}
func (fakeFiatPriceRepo) GetByExchange(int) ([]*models.CurrencyFiatPrices, error) { return nil, nil }

// fakeUpstream implements upstream.Exchange with a bulk fetch_tickers
// response carrying one fiat-quoted pair, so the Fiat Rate Resolver
// settles in its seed step without touching the store or an external
// currency service.
type fakeUpstream struct{}

func (fakeUpstream) Name() string          { return "fake" }
func (fakeUpstream) HasFetchTickers() bool { return true }
func (fakeUpstream) FetchTickers(context.Context) (map[string]map[string]interface{}, error) {
	return map[string]map[string]interface{}{
		"BTC/USD": {"symbol": "BTC/USD", "last": 30000.0, "baseVolume": 2.0},
	}, nil
}
func (fakeUpstream) ListSymbols(context.Context) ([]string, error) { return nil, nil }
func (fakeUpstream) FetchTicker(context.Context, string) (map[string]interface{}, error) {
	return nil, nil
}
func (fakeUpstream) FetchMarkets(context.Context) ([]upstream.MarketInfo, error) { return nil, nil }

type fakeTimeseriesBackend struct{}

func (fakeTimeseriesBackend) WriteLine(context.Context, string) error { return nil }

func TestPoolProcessSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	const exchangeID = 1

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM markets WHERE exchange_id = \$1 ORDER BY name FOR UPDATE`).
		WithArgs(exchangeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "exchange_id", "name", "base", "quote", "last", "bid", "ask", "open", "close", "high", "low", "volume", "updated"}))
	mock.ExpectQuery(`INSERT INTO markets`).
		WithArgs(exchangeID, "BTC-USD", "BTC", "USD", 30000.0, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 2.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO currency_fiat_prices`).
		WithArgs("BTC", exchangeID, 30000.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`SELECT .+ FROM exchanges WHERE id = \$1 FOR UPDATE`).
		WithArgs(exchangeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "interval", "enabled", "fiat_markets", "url", "logo", "api_url",
			"api_key", "api_secret", "volume", "top_pair", "top_pair_volume", "last_data_fetch",
			"created_at", "updated_at",
		}).AddRow(exchangeID, "fake", 300, true, true, "", "", "", "", "", 0.0, "", 0.0, nil, now, now))
	mock.ExpectExec(`UPDATE exchanges`).
		WithArgs(exchangeID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	exchangeRepo := &fakeExchangeRepo{exchange: &models.Exchange{ID: exchangeID, Name: "fake", Enabled: true, FiatMarkets: true}}
	statusRepo := &fakeStatusRepo{status: &models.ExchangeStatus{ExchangeID: exchangeID}}
	store := statusstore.New(exchangeRepo, statusRepo, fakeMarketRepo{}, fakeFiatPriceRepo{})

	snap := snapshot.New(db, repository.NewMarketRepository(db), repository.NewFiatPriceRepository(db), repository.NewExchangeRepository(db, nil), []string{"USD"})
	ts := timeseries.New(fakeTimeseriesBackend{}, 5, time.Second)
	q := queue.New(1)

	deps := Dependencies{
		Store:       store,
		Factory:     func(string) (upstream.Exchange, error) { return fakeUpstream{}, nil },
		FiatRate:    fiatrate.New(store, nil, []string{"USD"}),
		Snapshot:    snap,
		Timeseries:  ts,
		Queue:       q,
		FiatSymbols: []string{"USD"},
	}

	pool := NewPool(deps, 1)
	pool.process(context.Background(), queue.Job{ID: "run-1", ExchangeID: exchangeID, EnqueuedAt: time.Now()})

	if !statusRepo.released {
		t.Error("expected Release to be called on success")
	}
	if statusRepo.failed != "" {
		t.Errorf("expected no Fail call, got %q", statusRepo.failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPoolProcessRecordsFailureOnUnsupportedExchange(t *testing.T) {
	exchangeRepo := &fakeExchangeRepo{exchange: &models.Exchange{ID: 1, Name: "unknown", Enabled: true}}
	statusRepo := &fakeStatusRepo{status: &models.ExchangeStatus{ExchangeID: 1}}
	store := statusstore.New(exchangeRepo, statusRepo, fakeMarketRepo{}, fakeFiatPriceRepo{})

	deps := Dependencies{
		Store:       store,
		Factory:     func(string) (upstream.Exchange, error) { return nil, context.DeadlineExceeded },
		FiatRate:    fiatrate.New(store, nil, []string{"USD"}),
		Queue:       queue.New(1),
		FiatSymbols: []string{"USD"},
	}

	pool := NewPool(deps, 1)
	pool.process(context.Background(), queue.Job{ID: "run-2", ExchangeID: 1, EnqueuedAt: time.Now()})

	if statusRepo.failed == "" {
		t.Error("expected Fail to be called when the exchange adapter cannot be built")
	}
	if statusRepo.released {
		t.Error("did not expect Release to be called")
	}
}

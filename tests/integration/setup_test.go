// Package integration exercises MarketManager's HTTP API, admin RPC
// surface, and live-status WebSocket feed wired end to end: the real
// router (internal/api.SetupRoutes) serving real handlers over an
// in-memory statusstore.Store, a real queue.InProcess, and a real
// wsbroadcast.Hub, fronted by httptest.NewServer.
//
// The relational store itself is covered at the repository layer with
// go-sqlmock (internal/repository/*_test.go), and the timeseries client
// against httptest servers (internal/timeseries); these tests stand in a
// fake, in-memory Store so the same handler/router/hub
// wiring the daemon runs in production can be driven over real HTTP and
// real WebSocket connections without a live Postgres instance.
package integration

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"time"

	"marketmanager/internal/api"
	"marketmanager/internal/models"
	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/wsbroadcast"

	"github.com/gorilla/mux"
)

// fakeExchangeRepo is an in-memory stand-in for
// internal/repository.ExchangeRepository, sufficient for the read/admin
// API surface driven through this package.
type fakeExchangeRepo struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*models.Exchange
}

func newFakeExchangeRepo() *fakeExchangeRepo {
	return &fakeExchangeRepo{byID: make(map[int]*models.Exchange)}
}

func (r *fakeExchangeRepo) Create(e *models.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

func (r *fakeExchangeRepo) GetByID(id int) (*models.Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrExchangeNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeExchangeRepo) GetByName(name string) (*models.Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrExchangeNotFound
}

func (r *fakeExchangeRepo) GetAll() ([]*models.Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Exchange, 0, len(r.byID))
	for _, e := range r.byID {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeExchangeRepo) GetEnabled() ([]*models.Exchange, error) {
	all, _ := r.GetAll()
	out := all[:0]
	for _, e := range all {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeExchangeRepo) Update(e *models.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[e.ID]; !ok {
		return repository.ErrExchangeNotFound
	}
	e.UpdatedAt = time.Now()
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

func (r *fakeExchangeRepo) SetEnabled(id int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return repository.ErrExchangeNotFound
	}
	e.Enabled = enabled
	e.UpdatedAt = time.Now()
	return nil
}

func (r *fakeExchangeRepo) SetFiatMarkets(id int, fiatMarkets bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return repository.ErrExchangeNotFound
	}
	e.FiatMarkets = fiatMarkets
	return nil
}

// fakeStatusRepo is an in-memory stand-in for
// internal/repository.ExchangeStatusRepository.
type fakeStatusRepo struct {
	mu  sync.Mutex
	row map[int]*models.ExchangeStatus
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{row: make(map[int]*models.ExchangeStatus)}
}

func (r *fakeStatusRepo) EnsureExists(exchangeID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.row[exchangeID]; !ok {
		r.row[exchangeID] = &models.ExchangeStatus{ExchangeID: exchangeID}
	}
	return nil
}

func (r *fakeStatusRepo) GetByExchangeID(exchangeID int) (*models.ExchangeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.row[exchangeID]
	if !ok {
		return nil, repository.ErrExchangeStatusNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeStatusRepo) GetAllRunning() ([]*models.ExchangeStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ExchangeStatus
	for _, row := range r.row {
		if row.Running {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeStatusRepo) Claim(exchangeID int, runID string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.row[exchangeID]
	if !ok {
		return repository.ErrExchangeStatusNotFound
	}
	if row.Running {
		return repository.ErrAlreadyRunning
	}
	row.Running = true
	row.LastRunID = runID
	started := startedAt
	row.TimeStarted = &started
	return nil
}

func (r *fakeStatusRepo) Release(exchangeID int, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.row[exchangeID]
	if !ok {
		return repository.ErrExchangeStatusNotFound
	}
	row.Running = false
	row.TimeStarted = nil
	finished := finishedAt
	row.LastRun = &finished
	return nil
}

func (r *fakeStatusRepo) Fail(exchangeID int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.row[exchangeID]
	if !ok {
		return repository.ErrExchangeStatusNotFound
	}
	row.Running = false
	row.TimeStarted = nil
	row.LastRunStatus = status
	return nil
}

func (r *fakeStatusRepo) SetTimeout(exchangeID int, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.row[exchangeID]
	if !ok {
		return repository.ErrExchangeStatusNotFound
	}
	row.Timeout = seconds
	return nil
}

// fakeMarketRepo is an in-memory stand-in for
// internal/repository.MarketRepository.
type fakeMarketRepo struct {
	mu      sync.Mutex
	markets []*models.Market
}

func newFakeMarketRepo() *fakeMarketRepo { return &fakeMarketRepo{} }

func (r *fakeMarketRepo) GetByExchangeID(exchangeID int) ([]*models.Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Market
	for _, m := range r.markets {
		if m.ExchangeID == exchangeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMarketRepo) GetAll() ([]*models.Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Market, len(r.markets))
	copy(out, r.markets)
	return out, nil
}

func (r *fakeMarketRepo) DeleteStale(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.Market
	var removed int64
	for _, m := range r.markets {
		if m.Updated.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	r.markets = kept
	return removed, nil
}

// fakeFiatPriceRepo is an in-memory stand-in for
// internal/repository.FiatPriceRepository.
type fakeFiatPriceRepo struct {
	mu     sync.Mutex
	prices []*models.CurrencyFiatPrices
}

func newFakeFiatPriceRepo() *fakeFiatPriceRepo { return &fakeFiatPriceRepo{} }

func (r *fakeFiatPriceRepo) GetByCurrencyAndExchange(currency string, exchangeID int) (*models.CurrencyFiatPrices, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prices {
		if p.Currency == currency && p.ExchangeID == exchangeID {
			return p, nil
		}
	}
	return nil, errors.New("fiat price not found")
}

func (r *fakeFiatPriceRepo) GetByExchange(exchangeID int) ([]*models.CurrencyFiatPrices, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CurrencyFiatPrices
	for _, p := range r.prices {
		if p.ExchangeID == exchangeID {
			out = append(out, p)
		}
	}
	return out, nil
}

// stubHealthChecker satisfies handlers.HealthChecker with a fixed verdict,
// standing in for *scheduler.Scheduler / *poller.Poller's heartbeat.
type stubHealthChecker struct{ up bool }

func (s stubHealthChecker) Healthy(time.Duration) bool { return s.up }

// TestServer bundles the router, its backing fakes, and a live httptest
// server, mirroring the teacher's own SetupTestServer/TestServer shape.
type TestServer struct {
	Server    *httptest.Server
	Router    *mux.Router
	Hub       *wsbroadcast.Hub
	Queue     *queue.InProcess
	Exchanges *fakeExchangeRepo
	Statuses  *fakeStatusRepo
	Markets   *fakeMarketRepo
	FiatRates *fakeFiatPriceRepo
	hubCancel func()
}

// Cleanup tears down the httptest server and stops the Hub's goroutine.
func (ts *TestServer) Cleanup() {
	ts.Server.Close()
	ts.hubCancel()
}

type testServerOptions struct {
	healthy       bool
	pingRelErr    error
	pingTSErr     error
	withQueue     bool
	heartbeatSpan time.Duration
}

func defaultTestServerOptions() testServerOptions {
	return testServerOptions{healthy: true, withQueue: true, heartbeatSpan: time.Minute}
}

// SetupTestServer wires the full Dependencies struct used by
// internal/api.SetupRoutes and starts an httptest.Server over it.
func SetupTestServer(opts testServerOptions) *TestServer {
	exchanges := newFakeExchangeRepo()
	statuses := newFakeStatusRepo()
	markets := newFakeMarketRepo()
	fiatRates := newFakeFiatPriceRepo()
	store := statusstore.New(exchanges, statuses, markets, fiatRates)

	hub := wsbroadcast.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	var q *queue.InProcess
	var nextJobID func() string
	if opts.withQueue {
		q = queue.New(8)
		jobSeq := 0
		nextJobID = func() string {
			jobSeq++
			return "job-" + itoaForTests(jobSeq)
		}
	}

	deps := &api.Dependencies{
		Store:           store,
		Hub:             hub,
		NextJobID:       nextJobID,
		Scheduler:       stubHealthChecker{up: opts.healthy},
		Poller:          stubHealthChecker{up: opts.healthy},
		HeartbeatMaxAge: opts.heartbeatSpan,
		PingRelational:  func() error { return opts.pingRelErr },
		PingTimeseries:  func() error { return opts.pingTSErr },
	}
	if q != nil {
		// Assigned only when non-nil: a nil *queue.InProcess stored in the
		// Queue interface field would compare non-nil to SetupRoutes' own
		// `deps.Queue != nil` gate (a typed-nil interface), wiring admin
		// routes onto a queue that immediately panics on Enqueue.
		deps.Queue = q
	}

	router := api.SetupRoutes(deps)
	server := httptest.NewServer(router)

	return &TestServer{
		Server:    server,
		Router:    router,
		Hub:       hub,
		Queue:     q,
		Exchanges: exchanges,
		Statuses:  statuses,
		Markets:   markets,
		FiatRates: fiatRates,
		hubCancel: cancel,
	}
}

func itoaForTests(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	pos := len(b)
	for n > 0 {
		pos--
		b[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(b[pos:])
}

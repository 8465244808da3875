// Package worker implements the Fetch Worker (spec §4.5): the pool of
// job consumers that pull exchange ids from the queue and run the full
// fetch-parse-resolve-commit pipeline for one exchange.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketmanager/internal/fiatrate"
	"marketmanager/internal/metrics"
	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/snapshot"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/tickerparser"
	"marketmanager/internal/timeseries"
	"marketmanager/internal/upstream"
	"marketmanager/internal/wsbroadcast"
	"marketmanager/pkg/utils"
)

// Factory builds an upstream.Exchange adapter by name, satisfied by
// upstream.New.
type Factory func(name string) (upstream.Exchange, error)

// Broadcaster is the narrow live-status capability the Fetch Worker needs,
// satisfied by *wsbroadcast.Hub. A nil Broadcaster disables broadcasting.
type Broadcaster interface {
	Broadcast(message interface{})
}

// Dependencies wires everything one job run needs.
type Dependencies struct {
	Store       statusstore.Store
	Factory     Factory
	FiatRate    *fiatrate.Resolver
	Snapshot    *snapshot.Updater
	Timeseries  *timeseries.Writer
	Queue       queue.Queue
	Broadcaster Broadcaster
	FiatSymbols []string
}

// Pool runs a fixed number of goroutines consuming jobs from a queue
// (spec §5: "a pool of Fetch Worker tasks, configurable concurrency,
// default 4").
type Pool struct {
	deps        Dependencies
	concurrency int
}

// NewPool builds a Pool. concurrency is WORKER_CONCURRENCY.
func NewPool(deps Dependencies, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{deps: deps, concurrency: concurrency}
}

// Run consumes jobs until ctx is cancelled or the channel is closed. Each
// worker goroutine pulls independently, so jobs are processed in no
// particular cross-exchange order (spec §5: "no ordering guarantee across
// exchanges").
func (p *Pool) Run(ctx context.Context, jobs <-chan queue.Job) {
	done := make(chan struct{}, p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					p.process(ctx, job)
				}
			}
		}()
	}
	for i := 0; i < p.concurrency; i++ {
		<-done
	}
}

// process runs spec §4.5 steps 1-8 for one job, never letting a panic or
// error escape: the supervisor contract is that running is always
// restored (spec §5: "cancellation must always restore running = false").
func (p *Pool) process(ctx context.Context, job queue.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	p.deps.Queue.Register(job.ID, cancel)
	defer p.deps.Queue.Unregister(job.ID)
	defer cancel()

	log := utils.L().WithComponent("worker").With(utils.String("job_id", job.ID), utils.Int("exchange_id", job.ExchangeID))
	log.Info("job started")
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", utils.String("panic", fmt.Sprint(r)))
			if failErr := p.deps.Store.Statuses().Fail(job.ExchangeID, fmt.Sprintf("panic: %v", r)); failErr != nil {
				log.Error("failed to record job failure", utils.Err(failErr))
			}
		}
	}()

	start := time.Now()
	exchangeLabel := strconv.Itoa(job.ExchangeID)

	result, err := p.runJob(jobCtx, job.ID, job.ExchangeID, log)
	duration := time.Since(start)

	if err != nil {
		log.Warn("job failed", utils.Err(err))
		if failErr := p.deps.Store.Statuses().Fail(job.ExchangeID, err.Error()); failErr != nil {
			log.Error("failed to record job failure", utils.Err(failErr))
		}
		metrics.FetchDuration.WithLabelValues(exchangeLabel, "error").Observe(duration.Seconds())
		if p.deps.Broadcaster != nil {
			p.deps.Broadcaster.Broadcast(wsbroadcast.NewStatusTransitionMessage(job.ExchangeID, result.ExchangeName, wsbroadcast.StatusFailed, job.ID))
			p.deps.Broadcaster.Broadcast(wsbroadcast.NewFetchCompletedMessage(job.ExchangeID, result.ExchangeName, false, result.PairCount, result.Dropped, duration, err))
		}
		return
	}

	metrics.FetchDuration.WithLabelValues(exchangeLabel, "ok").Observe(duration.Seconds())
	log.Info("job succeeded")
	if p.deps.Broadcaster != nil {
		p.deps.Broadcaster.Broadcast(wsbroadcast.NewStatusTransitionMessage(job.ExchangeID, result.ExchangeName, wsbroadcast.StatusReleased, job.ID))
		p.deps.Broadcaster.Broadcast(wsbroadcast.NewFetchCompletedMessage(job.ExchangeID, result.ExchangeName, true, result.PairCount, result.Dropped, duration, nil))
	}
}

// runResult carries the fields process needs for metrics/broadcasting once
// they become known, even when runJob fails partway through.
type runResult struct {
	ExchangeName string
	PairCount    int
	Dropped      int
}

func (p *Pool) runJob(ctx context.Context, jobID string, exchangeID int, log *utils.Logger) (*runResult, error) {
	result := &runResult{}

	// Step 1: load the Exchange.
	exchange, err := p.deps.Store.Exchanges().GetByID(exchangeID)
	if err != nil {
		return result, fmt.Errorf("load exchange: %w", err)
	}
	result.ExchangeName = exchange.Name

	ex, err := p.deps.Factory(exchange.Name)
	if err != nil {
		return result, fmt.Errorf("unsupported exchange %q: %w", exchange.Name, err)
	}

	// Step 2: mark running, idempotently (the Scheduler may already have).
	status, err := p.deps.Store.Statuses().GetByExchangeID(exchangeID)
	if err != nil {
		return result, fmt.Errorf("load exchange status: %w", err)
	}
	if !status.Running {
		if err := p.deps.Store.Statuses().Claim(exchangeID, jobID, time.Now()); err != nil && err != repository.ErrAlreadyRunning {
			return result, fmt.Errorf("claim exchange status: %w", err)
		}
	}

	// Step 3: probe for fiat markets if not already sticky.
	if !exchange.FiatMarkets {
		if markets, err := ex.FetchMarkets(ctx); err == nil {
			for _, m := range markets {
				if isFiat(m.Quote, p.deps.FiatSymbols) {
					if err := p.deps.Store.Exchanges().SetFiatMarkets(exchangeID, true); err != nil {
						log.Warn("failed to persist fiat_markets flag", utils.Err(err))
					} else {
						exchange.FiatMarkets = true
					}
					break
				}
			}
		}
	}

	// Step 4: fetch tickers.
	raw, err := upstream.FetchAll(ctx, ex, exchange.FiatMarkets, p.deps.FiatSymbols)
	if err != nil {
		return result, fmt.Errorf("fetch tickers: %w", err)
	}

	// Step 5: parse.
	batch, dropped := tickerparser.Parse(raw, exchangeID)
	result.PairCount = len(batch)
	result.Dropped = dropped
	exchangeLabel := strconv.Itoa(exchangeID)
	metrics.FetchedPairsTotal.WithLabelValues(exchangeLabel).Add(float64(len(batch)))
	if dropped > 0 {
		metrics.DroppedPairsTotal.WithLabelValues(exchangeLabel).Add(float64(dropped))
		log.Debug("dropped malformed ticker entries", utils.Int("dropped", dropped))
	}

	// Step 6: resolve fiat rates.
	rate := p.deps.FiatRate.Resolve(ctx, batch, exchangeID)

	// Step 7: Timeseries Writer and Snapshot Updater run independently;
	// only the Snapshot Updater's result determines job success.
	tsDone := make(chan struct{})
	go func() {
		defer close(tsDone)
		p.deps.Timeseries.Write(ctx, exchangeID, batch, rate.FiatPairs)
	}()

	snapshotErr := p.deps.Snapshot.Apply(ctx, exchangeID, batch, snapshot.NewFiatRateResult(rate.Rate, rate.FiatPairs))
	<-tsDone

	if snapshotErr != nil {
		return result, fmt.Errorf("snapshot update: %w", snapshotErr)
	}

	// Step 8: success path.
	if err := p.deps.Store.Statuses().Release(exchangeID, time.Now()); err != nil {
		return result, fmt.Errorf("release exchange status: %w", err)
	}
	return result, nil
}

func isFiat(symbol string, fiatSymbols []string) bool {
	for _, f := range fiatSymbols {
		if f == symbol {
			return true
		}
	}
	return false
}

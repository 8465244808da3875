// Package scheduler implements the Scheduler (spec §4.6): a single
// cooperative loop that decides, once per tick, which enabled exchanges
// are due for a fetch and dispatches them onto the job queue.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"marketmanager/internal/metrics"
	"marketmanager/internal/models"
	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/wsbroadcast"
	"marketmanager/pkg/utils"
)

// Broadcaster is the narrow live-status capability the Scheduler needs,
// satisfied by *wsbroadcast.Hub. A nil Broadcaster disables broadcasting.
type Broadcaster interface {
	Broadcast(message interface{})
}

// Scheduler runs the tick loop described in spec §4.6, grounded on
// internal/bot/engine.go's periodicTasks ticker-select pattern.
type Scheduler struct {
	store           statusstore.Store
	queue           queue.Queue
	broadcaster     Broadcaster
	tickInterval    time.Duration
	enabledAtStart  []string
	defaultInterval int // seconds, EXCHANGE_DEFAULT_FETCH_INTERVAL
	nextJobID       func() string
	lastTick        atomic.Int64 // unix nanos, for Healthy (GET /daemon_status)
}

// New builds a Scheduler. enabledExchanges is ENABLED_EXCHANGES, ensured
// to exist at startup; nextJobID generates unique run handles (job ids).
// broadcaster may be nil to disable live-status broadcasting.
func New(store statusstore.Store, q queue.Queue, broadcaster Broadcaster, tickInterval time.Duration, defaultIntervalSeconds int, enabledExchanges []string, nextJobID func() string) *Scheduler {
	return &Scheduler{
		store:           store,
		queue:           q,
		broadcaster:     broadcaster,
		tickInterval:    tickInterval,
		enabledAtStart:  enabledExchanges,
		defaultInterval: defaultIntervalSeconds,
		nextJobID:       nextJobID,
	}
}

// Run ensures the configured exchanges exist, then ticks until ctx is
// cancelled. The Scheduler never blocks on fetches (spec §5): each tick's
// work is a handful of short storage calls plus a non-blocking enqueue.
func (s *Scheduler) Run(ctx context.Context) {
	s.ensureConfiguredExchanges()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.lastTick.Store(time.Now().UnixNano())
			s.tick()
		}
	}
}

// Healthy reports whether the dispatch loop has ticked within maxAge, used
// by GET /daemon_status to tell a genuinely wedged process apart from one
// that just started.
func (s *Scheduler) Healthy(maxAge time.Duration) bool {
	last := s.lastTick.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) <= maxAge
}

// ensureConfiguredExchanges is the Scheduler's startup pass (spec §4.6:
// "ensures that every exchange named in a configured list exists in the
// store, creating it with default interval if absent").
func (s *Scheduler) ensureConfiguredExchanges() {
	for _, name := range s.enabledAtStart {
		if _, err := s.store.Exchanges().GetByName(name); err == nil {
			continue
		} else if err != repository.ErrExchangeNotFound {
			utils.L().Warn("failed to look up configured exchange", utils.String("exchange", name), utils.Err(err))
			continue
		}

		exchange := &models.Exchange{Name: name, Interval: s.defaultInterval, Enabled: true}
		if err := s.store.Exchanges().Create(exchange); err != nil {
			utils.L().Error("failed to create configured exchange", utils.String("exchange", name), utils.Err(err))
		}
	}
}

// tick implements spec §4.6 steps 1-4 for every enabled exchange.
func (s *Scheduler) tick() {
	exchanges, err := s.store.Exchanges().GetEnabled()
	if err != nil {
		utils.L().Error("scheduler: failed to list enabled exchanges", utils.Err(err))
		return
	}

	now := time.Now()
	for _, exchange := range exchanges {
		if err := s.store.Statuses().EnsureExists(exchange.ID); err != nil {
			utils.L().Error("scheduler: failed to ensure status row", utils.Int("exchange_id", exchange.ID), utils.Err(err))
			continue
		}

		status, err := s.store.Statuses().GetByExchangeID(exchange.ID)
		if err != nil {
			utils.L().Error("scheduler: failed to load status", utils.Int("exchange_id", exchange.ID), utils.Err(err))
			continue
		}

		if status.Running || !exchange.DueForFetch(now) {
			continue
		}

		s.dispatch(exchange.ID, exchange.Name)
	}
}

// dispatch is the atomic claim-then-enqueue commitment (spec §4.6 step 4).
func (s *Scheduler) dispatch(exchangeID int, exchangeName string) {
	jobID := s.nextJobID()

	if err := s.store.Statuses().Claim(exchangeID, jobID, time.Now()); err != nil {
		if err != repository.ErrAlreadyRunning {
			utils.L().Error("scheduler: failed to claim exchange", utils.Int("exchange_id", exchangeID), utils.Err(err))
		}
		metrics.DispatchTotal.WithLabelValues(exchangeName, "already_running").Inc()
		return
	}

	job := queue.Job{ID: jobID, ExchangeID: exchangeID, EnqueuedAt: time.Now()}
	if err := s.queue.Enqueue(job); err != nil {
		// The claim already committed; a later Poller pass reaps the
		// orphaned running=true row via timeout (spec §4.6 step 4).
		utils.L().Error("scheduler: failed to enqueue job, orphaning claim for Poller to reap",
			utils.Int("exchange_id", exchangeID), utils.String("job_id", jobID), utils.Err(err))
		metrics.DispatchTotal.WithLabelValues(exchangeName, "enqueue_failed").Inc()
		return
	}

	metrics.DispatchTotal.WithLabelValues(exchangeName, "dispatched").Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	utils.L().Info("scheduler: dispatched job", utils.Int("exchange_id", exchangeID), utils.String("job_id", jobID))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(wsbroadcast.NewStatusTransitionMessage(exchangeID, exchangeName, wsbroadcast.StatusDispatched, jobID))
	}
}

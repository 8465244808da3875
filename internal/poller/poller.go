// Package poller implements the Poller (spec §4.7): an independent
// cooperative loop that reaps Fetch Worker jobs which have overrun their
// per-exchange timeout.
package poller

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"marketmanager/internal/metrics"
	"marketmanager/internal/models"
	"marketmanager/internal/queue"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/wsbroadcast"
	"marketmanager/pkg/utils"
)

// Canceller is the narrow queue capability the Poller needs: best-effort
// cancellation by job id.
type Canceller interface {
	Cancel(jobID string) bool
}

// Broadcaster is the narrow live-status capability the Poller needs,
// satisfied by *wsbroadcast.Hub. A nil Broadcaster disables broadcasting.
type Broadcaster interface {
	Broadcast(message interface{})
}

// Poller runs the reap loop, grounded on internal/bot/risk.go's
// RiskMonitor.Start ticker-select pattern.
type Poller struct {
	store          statusstore.Store
	canceller      Canceller
	broadcaster    Broadcaster
	tickInterval   time.Duration
	defaultTimeout time.Duration
	lastTick       atomic.Int64 // unix nanos, for Healthy (GET /daemon_status)
}

// New builds a Poller. tickInterval and defaultTimeout are
// SCHEDULER_TICK_INTERVAL and EXCHANGE_TIMEOUT respectively. broadcaster
// may be nil to disable live-status broadcasting.
func New(store statusstore.Store, canceller Canceller, broadcaster Broadcaster, tickInterval, defaultTimeout time.Duration) *Poller {
	return &Poller{store: store, canceller: canceller, broadcaster: broadcaster, tickInterval: tickInterval, defaultTimeout: defaultTimeout}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.lastTick.Store(time.Now().UnixNano())
			p.tick()
		}
	}
}

// Healthy reports whether the reap loop has ticked within maxAge, used by
// GET /daemon_status to tell a genuinely wedged process apart from one
// that just started.
func (p *Poller) Healthy(maxAge time.Duration) bool {
	last := p.lastTick.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) <= maxAge
}

// tick implements spec §4.7 steps 1-2 against every currently-running
// ExchangeStatus.
func (p *Poller) tick() {
	running, err := p.store.Statuses().GetAllRunning()
	if err != nil {
		utils.L().Error("poller: failed to list running exchange statuses", utils.Err(err))
		return
	}

	now := time.Now()
	for _, status := range running {
		if status.LastRunID == "" {
			continue
		}

		if status.TimeStarted == nil {
			// Defensive: a running row with no start time cannot ever
			// time out by comparison; clear it rather than leave it stuck.
			if err := p.store.Statuses().Fail(status.ExchangeID, "missing time_started"); err != nil {
				utils.L().Error("poller: failed to clear orphaned status", utils.Int("exchange_id", status.ExchangeID), utils.Err(err))
			}
			continue
		}

		if !status.TimedOut(now, p.defaultTimeout) {
			continue
		}

		p.reap(status)
	}
}

// reap cancels the job and marks the exchange idle again, leaving
// last_run untouched (spec §4.7 step 2, state machine's "poller-timeout"
// transition).
func (p *Poller) reap(status *models.ExchangeStatus) {
	cancelled := p.canceller.Cancel(status.LastRunID)
	utils.L().Warn("poller: reaping timed-out job",
		utils.Int("exchange_id", status.ExchangeID), utils.String("job_id", status.LastRunID), utils.Bool("cancelled", cancelled))

	metrics.PollTimeoutsTotal.WithLabelValues(strconv.Itoa(status.ExchangeID)).Inc()
	if err := p.store.Statuses().Fail(status.ExchangeID, models.LastRunStatusTimeout); err != nil {
		utils.L().Error("poller: failed to release timed-out status", utils.Int("exchange_id", status.ExchangeID), utils.Err(err))
	}

	if p.broadcaster != nil {
		p.broadcaster.Broadcast(wsbroadcast.NewStatusTransitionMessage(status.ExchangeID, "", wsbroadcast.StatusTimedOut, status.LastRunID))
	}
}

var _ Canceller = (*queue.InProcess)(nil)

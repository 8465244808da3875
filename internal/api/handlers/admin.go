package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"marketmanager/internal/queue"
	"marketmanager/internal/repository"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/wsbroadcast"
)

// Broadcaster is the narrow live-status capability this handler needs,
// satisfied by *wsbroadcast.Hub. A nil Broadcaster disables broadcasting.
type Broadcaster interface {
	Broadcast(message interface{})
}

// HealthChecker reports whether a background loop has ticked recently,
// satisfied by *scheduler.Scheduler and *poller.Poller.
type HealthChecker interface {
	Healthy(maxAge time.Duration) bool
}

// PingFunc reports whether a dependency is currently reachable.
type PingFunc func() error

var errPingNotConfigured = errors.New("not configured")

// AdminHandler serves the daemon's read-write admin/health RPC surface:
// POST /run_exchange, GET /daemon_status, GET /healthz (spec §6).
type AdminHandler struct {
	store           statusstore.Store
	queue           queue.Queue
	nextJobID       func() string
	broadcaster     Broadcaster
	scheduler       HealthChecker
	poller          HealthChecker
	heartbeatMaxAge time.Duration
	pingRelational  PingFunc
	pingTimeseries  PingFunc
}

// NewAdminHandler builds an AdminHandler. heartbeatMaxAge bounds how stale
// a scheduler/poller tick may be before /daemon_status calls it wedged
// (a sane default is a few times SCHEDULER_TICK_INTERVAL). broadcaster may
// be nil to disable live-status broadcasting on POST /run_exchange.
func NewAdminHandler(
	store statusstore.Store,
	q queue.Queue,
	nextJobID func() string,
	broadcaster Broadcaster,
	scheduler, poller HealthChecker,
	heartbeatMaxAge time.Duration,
	pingRelational, pingTimeseries PingFunc,
) *AdminHandler {
	return &AdminHandler{
		store:           store,
		queue:           q,
		nextJobID:       nextJobID,
		broadcaster:     broadcaster,
		scheduler:       scheduler,
		poller:          poller,
		heartbeatMaxAge: heartbeatMaxAge,
		pingRelational:  pingRelational,
		pingTimeseries:  pingTimeseries,
	}
}

type runExchangeRequest struct {
	ExchangeID int `json:"exchange_id"`
}

type runExchangeResponse struct {
	JobID      string `json:"job_id"`
	ExchangeID int    `json:"exchange_id"`
}

// RunExchange handles POST /run_exchange. It mirrors the Scheduler's own
// claim-then-enqueue commitment (internal/scheduler.Scheduler.dispatch) so
// an operator-triggered fetch is indistinguishable, to the rest of the
// system, from one the tick loop dispatched itself.
func (h *AdminHandler) RunExchange(w http.ResponseWriter, r *http.Request) {
	var req runExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExchangeID == 0 {
		respondWithError(w, http.StatusBadRequest, "exchange_id is required", "")
		return
	}

	exchange, err := h.store.Exchanges().GetByID(req.ExchangeID)
	if err != nil {
		if errors.Is(err, repository.ErrExchangeNotFound) {
			respondWithError(w, http.StatusBadRequest, "exchange not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load exchange", err.Error())
		return
	}

	if err := h.store.Statuses().EnsureExists(exchange.ID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to ensure status row", err.Error())
		return
	}

	jobID := h.nextJobID()
	if err := h.store.Statuses().Claim(exchange.ID, jobID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrAlreadyRunning) {
			respondWithError(w, http.StatusConflict, "exchange already has a run in flight", "")
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "failed to claim exchange", err.Error())
		return
	}

	job := queue.Job{ID: jobID, ExchangeID: exchange.ID, EnqueuedAt: time.Now()}
	if err := h.queue.Enqueue(job); err != nil {
		// The claim already committed; leave it for the Poller to reap via
		// timeout, same as the Scheduler's own orphan path.
		respondWithError(w, http.StatusServiceUnavailable, "failed to enqueue job", err.Error())
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.Broadcast(wsbroadcast.NewStatusTransitionMessage(exchange.ID, exchange.Name, wsbroadcast.StatusDispatched, jobID))
	}

	respondWithJSON(w, http.StatusOK, runExchangeResponse{JobID: jobID, ExchangeID: exchange.ID})
}

// DaemonStatus handles GET /daemon_status: 200 when both the Scheduler and
// Poller loops have ticked within heartbeatMaxAge, 503 otherwise.
func (h *AdminHandler) DaemonStatus(w http.ResponseWriter, r *http.Request) {
	schedulerUp := h.scheduler != nil && h.scheduler.Healthy(h.heartbeatMaxAge)
	pollerUp := h.poller != nil && h.poller.Healthy(h.heartbeatMaxAge)

	if !schedulerUp || !pollerUp {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]bool{
			"scheduler_running": schedulerUp,
			"poller_running":    pollerUp,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{
		"scheduler_running": schedulerUp,
		"poller_running":    pollerUp,
	})
}

// Healthz handles GET /healthz: 200 iff the relational store and the
// timeseries store both respond.
func (h *AdminHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	relErr, tsErr := errPingNotConfigured, errPingNotConfigured
	if h.pingRelational != nil {
		relErr = h.pingRelational()
	}
	if h.pingTimeseries != nil {
		tsErr = h.pingTimeseries()
	}

	if relErr != nil || tsErr != nil {
		body := map[string]string{}
		if relErr != nil {
			body["relational"] = relErr.Error()
		}
		if tsErr != nil {
			body["timeseries"] = tsErr.Error()
		}
		respondWithJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package handlers

import (
	"net/http"
	"sort"

	"marketmanager/internal/models"
	"marketmanager/internal/statusstore"
)

// StatusesHandler serves GET /exchange_statuses (spec §6): the in-flight
// and most-recent fetch state for every exchange.
type StatusesHandler struct {
	store statusstore.Store
}

// NewStatusesHandler builds a StatusesHandler over store.
func NewStatusesHandler(store statusstore.Store) *StatusesHandler {
	return &StatusesHandler{store: store}
}

// List handles GET /exchange_statuses.
//
// Filters (all optional, combined with AND): exchange (exchange_id,
// exact), running (bool), last_run_gte/last_run_lte,
// time_started_gte/time_started_lte (RFC3339). Paginated with
// limit/offset, ordered by exchange_id.
func (h *StatusesHandler) List(w http.ResponseWriter, r *http.Request) {
	exchanges, err := h.store.Exchanges().GetAll()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list exchanges", err.Error())
		return
	}

	statuses := make([]*models.ExchangeStatus, 0, len(exchanges))
	for _, e := range exchanges {
		if err := h.store.Statuses().EnsureExists(e.ID); err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to ensure status row", err.Error())
			return
		}
		status, err := h.store.Statuses().GetByExchangeID(e.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to load status", err.Error())
			return
		}
		statuses = append(statuses, status)
	}

	filtered := filterStatuses(statuses, r)
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].ExchangeID < filtered[j].ExchangeID })

	limit, offset := pagination(r)
	start, end := clampRange(len(filtered), limit, offset)
	page := filtered[start:end]

	respondWithJSON(w, http.StatusOK, ListResponse{Count: len(filtered), Results: page})
}

func filterStatuses(statuses []*models.ExchangeStatus, r *http.Request) []*models.ExchangeStatus {
	exchangeID, hasExchangeID := intParam(r, "exchange")
	running, hasRunning := boolParam(r, "running")
	lastRunGTE, hasLastRunGTE := timeParam(r, "last_run_gte")
	lastRunLTE, hasLastRunLTE := timeParam(r, "last_run_lte")
	startedGTE, hasStartedGTE := timeParam(r, "time_started_gte")
	startedLTE, hasStartedLTE := timeParam(r, "time_started_lte")

	out := make([]*models.ExchangeStatus, 0, len(statuses))
	for _, s := range statuses {
		if hasExchangeID && s.ExchangeID != exchangeID {
			continue
		}
		if hasRunning && s.Running != running {
			continue
		}
		if hasLastRunGTE && (s.LastRun == nil || s.LastRun.Before(lastRunGTE)) {
			continue
		}
		if hasLastRunLTE && (s.LastRun == nil || s.LastRun.After(lastRunLTE)) {
			continue
		}
		if hasStartedGTE && (s.TimeStarted == nil || s.TimeStarted.Before(startedGTE)) {
			continue
		}
		if hasStartedLTE && (s.TimeStarted == nil || s.TimeStarted.After(startedLTE)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

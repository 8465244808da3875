package handlers

import (
	"net/http"
	"time"

	"marketmanager/internal/timeseries"
)

// HistoricalHandler serves GET /historical/markets and GET
// /historical/fiat (spec §6): reads of the Timeseries Writer's pairs and
// fiat measurements respectively.
type HistoricalHandler struct {
	querier timeseries.Querier
}

// NewHistoricalHandler builds a HistoricalHandler over querier. A nil
// querier means both endpoints answer 503 (no timeseries backend
// configured).
func NewHistoricalHandler(querier timeseries.Querier) *HistoricalHandler {
	return &HistoricalHandler{querier: querier}
}

// Markets handles GET /historical/markets?base=&quote=&time_start=[&time_end][&exchange_id].
// base and quote are required; time_start is required (RFC3339); time_end
// defaults to now.
func (h *HistoricalHandler) Markets(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		respondWithError(w, http.StatusServiceUnavailable, "historical query backend not configured", "")
		return
	}

	q := r.URL.Query()
	base, quote := q.Get("base"), q.Get("quote")
	if base == "" || quote == "" {
		respondWithError(w, http.StatusBadRequest, "base and quote are required", "")
		return
	}

	start, end, err := parseTimeRange(q)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	tags := map[string]string{"base": base, "quote": quote}
	if exchangeID := q.Get("exchange_id"); exchangeID != "" {
		tags["exchange_id"] = exchangeID
	}

	points, err := h.querier.Query(r.Context(), "pairs", tags, start, end)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "historical query failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Count: len(points), Results: points})
}

// Fiat handles GET /historical/fiat?currency=&time_start=[&time_end].
// currency and time_start are required.
func (h *HistoricalHandler) Fiat(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		respondWithError(w, http.StatusServiceUnavailable, "historical query backend not configured", "")
		return
	}

	q := r.URL.Query()
	currency := q.Get("currency")
	if currency == "" {
		respondWithError(w, http.StatusBadRequest, "currency is required", "")
		return
	}

	start, end, err := parseTimeRange(q)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	points, err := h.querier.Query(r.Context(), "fiat", map[string]string{"currency": currency}, start, end)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "historical query failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, ListResponse{Count: len(points), Results: points})
}

func parseTimeRange(q map[string][]string) (start, end time.Time, err error) {
	startStr := first(q, "time_start")
	if startStr == "" {
		return time.Time{}, time.Time{}, errRequiredTimeStart
	}
	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if endStr := first(q, "time_end"); endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}
	return start, end, nil
}

func first(q map[string][]string, key string) string {
	if v, ok := q[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

var errRequiredTimeStart = &timeRangeError{"time_start is required"}

type timeRangeError struct{ msg string }

func (e *timeRangeError) Error() string { return e.msg }

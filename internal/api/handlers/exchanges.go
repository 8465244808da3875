package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"marketmanager/internal/models"
	"marketmanager/internal/statusstore"
)

// ExchangesHandler serves GET /exchanges (spec §6): the full exchange
// list, filterable and orderable, read straight off statusstore.Store.
type ExchangesHandler struct {
	store statusstore.Store
}

// NewExchangesHandler builds an ExchangesHandler over store.
func NewExchangesHandler(store statusstore.Store) *ExchangesHandler {
	return &ExchangesHandler{store: store}
}

// List handles GET /exchanges.
//
// Filters (all optional, combined with AND): name (substring, case
// insensitive), enabled (bool), interval (exact, seconds),
// last_updated_gte/last_updated_lte (RFC3339, against last_data_fetch),
// created_gte/created_lte (RFC3339). Ordered by order_by=name|volume|
// top_pair|top_pair_volume (default name), reversed with desc=true.
// Paginated with limit/offset.
func (h *ExchangesHandler) List(w http.ResponseWriter, r *http.Request) {
	exchanges, err := h.store.Exchanges().GetAll()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list exchanges", err.Error())
		return
	}

	filtered := filterExchanges(exchanges, r)
	sortExchanges(filtered, r)

	limit, offset := pagination(r)
	start, end := clampRange(len(filtered), limit, offset)
	page := filtered[start:end]

	respondWithJSON(w, http.StatusOK, ListResponse{Count: len(filtered), Results: page})
}

func filterExchanges(exchanges []*models.Exchange, r *http.Request) []*models.Exchange {
	q := r.URL.Query()
	name := strings.ToLower(strings.TrimSpace(q.Get("name")))
	enabled, hasEnabled := boolParam(r, "enabled")
	interval, hasInterval := intParam(r, "interval")
	volumeGTE, hasVolumeGTE := floatParam(r, "volume_gte")
	volumeLTE, hasVolumeLTE := floatParam(r, "volume_lte")
	lastUpdatedGTE, hasLastUpdatedGTE := timeParam(r, "last_updated_gte")
	lastUpdatedLTE, hasLastUpdatedLTE := timeParam(r, "last_updated_lte")
	createdGTE, hasCreatedGTE := timeParam(r, "created_gte")
	createdLTE, hasCreatedLTE := timeParam(r, "created_lte")

	out := make([]*models.Exchange, 0, len(exchanges))
	for _, e := range exchanges {
		if name != "" && !strings.Contains(strings.ToLower(e.Name), name) {
			continue
		}
		if hasEnabled && e.Enabled != enabled {
			continue
		}
		if hasInterval && e.Interval != interval {
			continue
		}
		if hasVolumeGTE && e.Volume < volumeGTE {
			continue
		}
		if hasVolumeLTE && e.Volume > volumeLTE {
			continue
		}
		if hasLastUpdatedGTE && (e.LastDataFetch == nil || e.LastDataFetch.Before(lastUpdatedGTE)) {
			continue
		}
		if hasLastUpdatedLTE && (e.LastDataFetch == nil || e.LastDataFetch.After(lastUpdatedLTE)) {
			continue
		}
		if hasCreatedGTE && e.CreatedAt.Before(createdGTE) {
			continue
		}
		if hasCreatedLTE && e.CreatedAt.After(createdLTE) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortExchanges(exchanges []*models.Exchange, r *http.Request) {
	orderBy := r.URL.Query().Get("order_by")
	desc, _ := boolParam(r, "desc")

	less := func(i, j int) bool {
		a, b := exchanges[i], exchanges[j]
		switch orderBy {
		case "volume":
			return a.Volume < b.Volume
		case "top_pair":
			return a.TopPair < b.TopPair
		case "top_pair_volume":
			return a.TopPairVolume < b.TopPairVolume
		default:
			return a.Name < b.Name
		}
	}
	sort.SliceStable(exchanges, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

func timeParam(r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, err == nil
}

package handlers

import (
	"net/http"
	"sort"
	"strings"

	"marketmanager/internal/models"
	"marketmanager/internal/statusstore"
)

// MarketsHandler serves GET /markets (spec §6): the full market snapshot
// across all exchanges, filterable and searchable.
type MarketsHandler struct {
	store statusstore.Store
}

// NewMarketsHandler builds a MarketsHandler over store.
func NewMarketsHandler(store statusstore.Store) *MarketsHandler {
	return &MarketsHandler{store: store}
}

// List handles GET /markets.
//
// Filters (all optional, combined with AND): id, exchange (exchange_id,
// exact), name (exact canonical "BASE-QUOTE"), base, quote (exact,
// uppercased), volume/last/bid/ask (exact match). search=TEXT matches
// base OR quote as a case-insensitive substring, for the common
// "find me markets trading XRP" lookup the exact filters don't cover.
// Paginated with limit/offset, ordered by name.
func (h *MarketsHandler) List(w http.ResponseWriter, r *http.Request) {
	markets, err := h.store.Markets().GetAll()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list markets", err.Error())
		return
	}

	filtered := filterMarkets(markets, r)
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	limit, offset := pagination(r)
	start, end := clampRange(len(filtered), limit, offset)
	page := filtered[start:end]

	respondWithJSON(w, http.StatusOK, ListResponse{Count: len(filtered), Results: page})
}

func filterMarkets(markets []*models.Market, r *http.Request) []*models.Market {
	q := r.URL.Query()
	id, hasID := intParam(r, "id")
	exchangeID, hasExchangeID := intParam(r, "exchange")
	name := strings.TrimSpace(q.Get("name"))
	base := strings.ToUpper(strings.TrimSpace(q.Get("base")))
	quote := strings.ToUpper(strings.TrimSpace(q.Get("quote")))
	volume, hasVolume := floatParam(r, "volume")
	last, hasLast := floatParam(r, "last")
	bid, hasBid := floatParam(r, "bid")
	ask, hasAsk := floatParam(r, "ask")
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	out := make([]*models.Market, 0, len(markets))
	for _, m := range markets {
		if hasID && m.ID != id {
			continue
		}
		if hasExchangeID && m.ExchangeID != exchangeID {
			continue
		}
		if name != "" && m.Name != name {
			continue
		}
		if base != "" && m.Base != base {
			continue
		}
		if quote != "" && m.Quote != quote {
			continue
		}
		if hasVolume && m.Volume != volume {
			continue
		}
		if hasLast && m.Last != last {
			continue
		}
		if hasBid && m.Bid != bid {
			continue
		}
		if hasAsk && m.Ask != ask {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Base), search) && !strings.Contains(strings.ToLower(m.Quote), search) {
			continue
		}
		out = append(out, m)
	}
	return out
}

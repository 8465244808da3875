// Package handlers implements the read-only HTTP API over the snapshot
// store (spec §6): list/filter endpoints for exchanges, markets, and
// exchange statuses, historical-query endpoints over the timeseries
// store, and the small admin/health RPC surface.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the standard error body for every endpoint in this
// package.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse is the standard non-list success body.
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps a filtered/paginated collection with the count a
// client needs to page through it.
type ListResponse struct {
	Count   int         `json:"count"`
	Results interface{} `json:"results"`
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// respondWithJSON writes payload as the JSON response body with the given
// status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError writes an ErrorResponse body with the given status code.
func respondWithError(w http.ResponseWriter, code int, message, details string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Details: details})
}

// pagination reads limit/offset query params, clamping limit to
// [1, maxLimit] and defaulting to defaultLimit.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// clampRange slices a page out of an already-filtered/sorted result set.
// The repository layer returns whole collections (spec §4.9's capability
// interfaces have no native LIMIT/OFFSET on filtered queries), so paging
// happens here in memory, over the already-small filtered result.
func clampRange(total, limit, offset int) (start, end int) {
	if offset > total {
		offset = total
	}
	end = offset + limit
	if end > total {
		end = total
	}
	return offset, end
}

// floatParam parses a float query parameter, returning ok=false if absent
// or malformed.
func floatParam(r *http.Request, name string) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

// intParam parses an int query parameter, returning ok=false if absent or
// malformed.
func intParam(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// boolParam parses a bool query parameter, returning ok=false if absent or
// malformed.
func boolParam(r *http.Request, name string) (bool, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

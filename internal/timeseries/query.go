package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Point is one decoded row from a historical query: a timestamp plus the
// measurement's field values, keyed by column name.
type Point struct {
	Time   time.Time
	Fields map[string]float64
}

// Querier is the narrow capability the historical-query handlers need
// from a timeseries backend: answer "give me measurement rows for these
// tags in this time range". Implemented by HTTPQuerier; a nil Querier
// means /historical/* is unavailable and the API returns 503.
type Querier interface {
	Query(ctx context.Context, measurement string, tags map[string]string, start, end time.Time) ([]Point, error)
}

// HTTPQuerier reads back the line-protocol points HTTPBackend wrote, via
// the same store's query endpoint (the read half of the write-API
// timeseries database HTTPBackend targets). No timeseries client library
// is present in the corpus (DESIGN.md), so this speaks the query-API's
// wire format directly with net/http, mirroring HTTPBackend's own choice.
type HTTPQuerier struct {
	queryURL string
	client   *http.Client
}

// NewHTTPQuerier builds a querier against baseURL's query endpoint for
// database name db, reusing HTTPBackend's connection pool shape.
func NewHTTPQuerier(baseURL, db string) *HTTPQuerier {
	return &HTTPQuerier{
		queryURL: strings.TrimRight(baseURL, "/") + "/query?db=" + db,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Query runs a SELECT * FROM <measurement> WHERE <tags AND time range>,
// ordered by time, and decodes the standard {results:[{series:[...]}]}
// response shape into Points.
func (q *HTTPQuerier) Query(ctx context.Context, measurement string, tags map[string]string, start, end time.Time) ([]Point, error) {
	stmt := buildSelect(measurement, tags, start, end)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.queryURL+"&q="+urlEncode(stmt), nil)
	if err != nil {
		return nil, err
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("timeseries query returned %d", resp.StatusCode)
	}

	var payload queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode timeseries query response: %w", err)
	}
	return payload.points(), nil
}

func buildSelect(measurement string, tags map[string]string, start, end time.Time) string {
	var where []string
	for k, v := range tags {
		if v == "" {
			continue
		}
		where = append(where, fmt.Sprintf("%s='%s'", k, escapeTag(v)))
	}
	where = append(where, fmt.Sprintf("time >= %d", start.UnixNano()))
	if !end.IsZero() {
		where = append(where, fmt.Sprintf("time <= %d", end.UnixNano()))
	}
	return fmt.Sprintf("SELECT * FROM %q WHERE %s ORDER BY time ASC", measurement, strings.Join(where, " AND "))
}

func urlEncode(s string) string {
	return strings.NewReplacer(" ", "%20", "\"", "%22", "'", "%27").Replace(s)
}

type queryResponse struct {
	Results []struct {
		Series []struct {
			Columns []string        `json:"columns"`
			Values  [][]interface{} `json:"values"`
		} `json:"series"`
	} `json:"results"`
}

func (r *queryResponse) points() []Point {
	var points []Point
	for _, result := range r.Results {
		for _, series := range result.Series {
			for _, row := range series.Values {
				p := Point{Fields: make(map[string]float64, len(series.Columns))}
				for i, col := range series.Columns {
					if i >= len(row) || row[i] == nil {
						continue
					}
					if col == "time" {
						p.Time = parseTimestamp(row[i])
						continue
					}
					if f, ok := toFloat(row[i]); ok {
						p.Fields[col] = f
					}
				}
				points = append(points, p)
			}
		}
	}
	return points
}

func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case float64:
		return time.Unix(0, int64(t))
	case string:
		if ns, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Unix(0, ns)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var _ Querier = (*HTTPQuerier)(nil)

package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"marketmanager/internal/api/handlers"
	"marketmanager/internal/api/middleware"
	"marketmanager/internal/queue"
	"marketmanager/internal/statusstore"
	"marketmanager/internal/timeseries"
	"marketmanager/internal/wsbroadcast"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies wires the HTTP API to the rest of the daemon. Every field
// is optional: a nil Store, Querier, Hub, or Queue/NextJobID pair leaves
// the routes it backs unregistered (the teacher's own routes.go follows the
// same nil-service-means-no-routes convention); a nil Scheduler or Poller
// makes /daemon_status report that loop as not running, and a nil ping
// func makes /healthz report that store as not configured.
type Dependencies struct {
	Store           statusstore.Store
	Queue           queue.Queue
	Querier         timeseries.Querier
	Hub             *wsbroadcast.Hub
	NextJobID       func() string
	Scheduler       handlers.HealthChecker
	Poller          handlers.HealthChecker
	HeartbeatMaxAge time.Duration
	PingRelational  handlers.PingFunc
	PingTimeseries  handlers.PingFunc
}

// SetupRoutes builds the application's router: the read API
// (spec §6.1), the admin RPC surface, the live-status WebSocket feed, and
// the ambient operability endpoints (/metrics, /debug/pprof,
// /debug/runtime) carried forward from the teacher regardless of the
// deep-dive API work being otherwise out of scope.
//
// Routes:
//
//	GET  /exchanges              - list/filter exchanges
//	GET  /markets                - list/filter/search markets
//	GET  /exchange_statuses      - list/filter exchange statuses
//	GET  /historical/markets     - timeseries pairs measurement
//	GET  /historical/fiat        - timeseries fiat measurement
//	POST /run_exchange           - enqueue an immediate fetch
//	GET  /daemon_status          - scheduler/poller liveness
//	GET  /healthz                - relational + timeseries store health
//	GET  /ws/stream              - live status broadcast (WebSocket)
//	GET  /metrics                - Prometheus exposition
//	GET  /debug/pprof/*          - profiling (Basic Auth gated)
//	GET  /debug/runtime          - lightweight runtime stats (Basic Auth gated)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	if deps != nil && deps.Store != nil {
		exchanges := handlers.NewExchangesHandler(deps.Store)
		router.HandleFunc("/exchanges", exchanges.List).Methods(http.MethodGet)

		markets := handlers.NewMarketsHandler(deps.Store)
		router.HandleFunc("/markets", markets.List).Methods(http.MethodGet)

		statuses := handlers.NewStatusesHandler(deps.Store)
		router.HandleFunc("/exchange_statuses", statuses.List).Methods(http.MethodGet)
	}

	if deps != nil && deps.Querier != nil {
		historical := handlers.NewHistoricalHandler(deps.Querier)
		router.HandleFunc("/historical/markets", historical.Markets).Methods(http.MethodGet)
		router.HandleFunc("/historical/fiat", historical.Fiat).Methods(http.MethodGet)
	}

	if deps != nil && deps.Store != nil && deps.Queue != nil && deps.NextJobID != nil {
		var broadcaster handlers.Broadcaster
		if deps.Hub != nil {
			broadcaster = deps.Hub
		}
		admin := handlers.NewAdminHandler(
			deps.Store, deps.Queue, deps.NextJobID, broadcaster,
			deps.Scheduler, deps.Poller, deps.HeartbeatMaxAge,
			deps.PingRelational, deps.PingTimeseries,
		)
		router.HandleFunc("/run_exchange", admin.RunExchange).Methods(http.MethodPost)
		router.HandleFunc("/daemon_status", admin.DaemonStatus).Methods(http.MethodGet)
		router.HandleFunc("/healthz", admin.Healthz).Methods(http.MethodGet)
	}

	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			wsbroadcast.ServeWS(deps.Hub, w, r)
		}).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.HandleFunc("/heap", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("heap").ServeHTTP(w, r) })
	debug.HandleFunc("/goroutine", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("goroutine").ServeHTTP(w, r) })
	debug.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("block").ServeHTTP(w, r) })
	debug.HandleFunc("/threadcreate", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("threadcreate").ServeHTTP(w, r) })
	debug.HandleFunc("/mutex", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("mutex").ServeHTTP(w, r) })
	debug.HandleFunc("/allocs", func(w http.ResponseWriter, r *http.Request) { pprof.Handler("allocs").ServeHTTP(w, r) })

	router.Handle("/debug/runtime", middleware.DebugAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{`))
		w.Write([]byte(`"goroutines":` + itoa(runtime.NumGoroutine()) + `,`))
		w.Write([]byte(`"heap_alloc_mb":` + ftoa(float64(m.HeapAlloc)/1024/1024) + `,`))
		w.Write([]byte(`"heap_sys_mb":` + ftoa(float64(m.HeapSys)/1024/1024) + `,`))
		w.Write([]byte(`"num_gc":` + itoa(int(m.NumGC)) + `,`))
		w.Write([]byte(`"gc_pause_total_ms":` + ftoa(float64(m.PauseTotalNs)/1e6)))
		w.Write([]byte(`}`))
	}))).Methods(http.MethodGet)

	return router
}

// itoa and ftoa format the /debug/runtime numbers without pulling in fmt
// for a handful of integers and one float, matching the teacher's choice
// to keep this endpoint dependency-free.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	pos := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		b[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		b[pos] = '-'
	}
	return string(b[pos:])
}

func ftoa(f float64) string {
	i := int(f * 100)
	whole := i / 100
	frac := i % 100
	if frac < 0 {
		frac = -frac
	}
	fracStr := itoa(frac)
	if len(fracStr) == 1 {
		fracStr = "0" + fracStr
	}
	return itoa(whole) + "." + fracStr
}

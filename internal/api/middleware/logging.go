package middleware

import (
	"net/http"
	"time"

	"marketmanager/pkg/utils"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// response size for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging logs every request's method, path, status, latency, and size.
func Logging(next http.Handler) http.Handler {
	log := utils.L().WithComponent("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info("request handled",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.String("duration", time.Since(start).String()),
			utils.String("remote_addr", r.RemoteAddr),
			utils.Int("bytes", int(wrapped.written)),
		)
	})
}

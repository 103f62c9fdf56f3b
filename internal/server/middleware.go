package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pfrederiksen/course-scraper/internal/logger"
)

// statusWriter captures status code and bytes written
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// requestLog writes one line per request and times it
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		logger.RecordTiming("http.request", elapsed)
		logger.Info("http_request", logger.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"bytes":       ww.bytes,
			"duration_ms": elapsed.Milliseconds(),
			"remote_ip":   r.RemoteAddr,
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

package server

import (
	"net/http"
	"time"

	"github.com/zeusync/envsim/internal/core/observability/log"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every handled request at debug level and failures at warn.
func logRequests(logger log.Log, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		fields := []log.Field{
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.String("remote_addr", r.RemoteAddr),
			log.Int("status", rec.status),
			log.Duration("duration", time.Since(started)),
		}
		if rec.status >= http.StatusBadRequest {
			logger.Warn("Request failed", fields...)
			return
		}
		logger.Debug("Request handled", fields...)
	}
}

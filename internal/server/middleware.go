package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// serverHeader stamps every response with the Server header.
func serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", ServerName)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request. Bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.Logger.Info("http_request",
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr)
		}()

		next.ServeHTTP(ww, r)
	})
}

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger attaches a request scoped logger to the context and logs one line
// per completed request. It must run after chi's RequestID middleware.
func Logger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reqLogger := logger.With().
				Str("request_id", middleware.GetReqID(req.Context())).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", req.RemoteAddr).
				Logger()

			ctx := reqLogger.WithContext(req.Context())
			req = req.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			defer func() {
				event := reqLogger.Debug()
				if ww.Status() >= http.StatusInternalServerError {
					event = reqLogger.Warn()
				}
				event.
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", time.Since(start)).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, req)
		})
	}
}

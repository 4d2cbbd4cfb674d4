package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Logger returns a middleware that logs completed HTTP requests through
// the global zap logger, leveled by response status.
func Logger(name string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			path := r.URL.Path
			query := r.URL.RawQuery

			defer func() {
				logger := zap.S().Named(name).Desugar()
				fields := []zap.Field{
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("query", query),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Int("response_bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
				}

				msg := "request completed"
				switch {
				case ww.Status() >= 500:
					logger.Error(msg, fields...)
				case ww.Status() >= 400:
					logger.Warn(msg, fields...)
				default:
					if path == "/health" || path == "/metrics" {
						logger.Debug(msg, fields...)
					} else {
						logger.Info(msg, fields...)
					}
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

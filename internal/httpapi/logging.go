package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// probePaths are logged at debug level only.
var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// requestLogger logs one line per request with status, size and duration.
// The X-Log-Level header raises or lowers the level of a single request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			lvl := zerolog.InfoLevel
			if probePaths[r.URL.Path] {
				lvl = zerolog.DebugLevel
			}
			if ww.Status() >= http.StatusInternalServerError {
				lvl = zerolog.ErrorLevel
			}
			if v := r.Header.Get("X-Log-Level"); v != "" {
				if l, err := zerolog.ParseLevel(v); err == nil {
					lvl = l
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.WithLevel(lvl).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Msg("http request")
		})
	}
}

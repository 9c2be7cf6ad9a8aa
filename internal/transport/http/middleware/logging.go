package httpmw

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/akkhan00/m5Chat/pkg/logger"
)

// Logging records method, path, status, size, duration and X-Request-ID for
// every request, plus trace ids when a span is active.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &logResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)
		reqID, _ := FromContext(r.Context())

		attrs := []slog.Attr{
			slog.String("req_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", lrw.status),
			slog.Int("bytes", lrw.bytes),
			slog.String("duration", dur.String()),
		}
		attrs = append(attrs, logger.AttrsFromCtx(r.Context())...)

		slog.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
	})
}

type logResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *logResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *logResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n

	return n, err
}

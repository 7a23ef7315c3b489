package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyTraceID
)

const (
	headerRequestID = "X-Request-ID"
	headerTraceID   = "X-Trace-ID"
)

// newID returns 16 hex chars of entropy. The timestamp fallback keeps ids
// non-empty even when the entropy source errors.
func newID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf[:])
}

// WithRequestAndTrace tags every request with a request id and a trace id,
// honoring whatever an upstream proxy already assigned, and logs one line on
// entry and one on completion. Both ids ride the context so service-layer
// log lines can correlate with the transport's. The response echoes them
// back for client-side correlation.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := headerOrNew(r, headerRequestID)
		traceID := headerOrNew(r, headerTraceID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		ctx = context.WithValue(ctx, ctxKeyTraceID, traceID)

		w.Header().Set(headerRequestID, reqID)
		w.Header().Set(headerTraceID, traceID)

		log := slog.With("request_id", reqID, "trace_id", traceID, "method", r.Method, "path", r.URL.Path)
		log.Info("incoming request")
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Info("finished request")
	})
}

func headerOrNew(r *http.Request, header string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return newID()
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTraceID).(string)
	return v
}

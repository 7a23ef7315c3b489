package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestAndTraceGeneratesIDs(t *testing.T) {
	var gotReq, gotTrace string
	h := WithRequestAndTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = RequestIDFromContext(r.Context())
		gotTrace = TraceIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	if gotReq == "" || gotTrace == "" {
		t.Fatalf("expected generated ids, got %q / %q", gotReq, gotTrace)
	}
	if rec.Header().Get("X-Request-ID") != gotReq || rec.Header().Get("X-Trace-ID") != gotTrace {
		t.Fatalf("response headers must echo the request and trace ids")
	}
}

func TestWithRequestAndTraceHonorsInboundHeaders(t *testing.T) {
	var gotReq, gotTrace string
	h := WithRequestAndTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = RequestIDFromContext(r.Context())
		gotTrace = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-from-proxy")
	req.Header.Set("X-Trace-ID", "trace-from-proxy")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotReq != "req-from-proxy" || gotTrace != "trace-from-proxy" {
		t.Fatalf("inbound ids not honored: %q / %q", gotReq, gotTrace)
	}
}

func TestIDsAbsentFromBareContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerRecordsStatusAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/payout-runs", nil)
	r.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()

	Logger(zap.New(core))(next).ServeHTTP(w, r)

	if seenID != "req-1" {
		t.Fatalf("request id in context = %q, want req-1", seenID)
	}
	if got := w.Header().Get("X-Request-Id"); got != "req-1" {
		t.Fatalf("X-Request-Id = %q, want req-1", got)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["path"] != "/api/payout-runs" {
		t.Fatalf("path field = %v", fields["path"])
	}
}

func TestLoggerGeneratesRequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	w := httptest.NewRecorder()

	Logger(nil)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("X-Request-Id must be generated")
	}
}

func TestRecovererReturns500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	w := httptest.NewRecorder()

	Recoverer(zap.NewNop())(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

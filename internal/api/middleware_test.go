package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/archonhq/archon/internal/log"
)

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(log.NewNop())(panicky)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error code = %q, want INTERNAL_ERROR", body.Error.Code)
	}
}

func TestRecoveryMiddlewareAfterHeadersSent(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic("late panic")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Headers were already sent; the middleware must not try to rewrite them
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want the already-sent 200", rec.Code)
	}
}

func TestLoggingWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	lw.WriteHeader(http.StatusTeapot)
	if _, err := lw.Write([]byte("short and stout")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if lw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want 418", lw.statusCode)
	}
	if lw.bytesWritten != int64(len("short and stout")) {
		t.Errorf("bytesWritten = %d", lw.bytesWritten)
	}
}

func TestLoggingWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	_, _ = lw.Write([]byte("implicit ok"))
	if lw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", lw.statusCode)
	}
}

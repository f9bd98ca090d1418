package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func logRequest(t *testing.T, req *http.Request, h http.Handler) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := httptest.NewRecorder()
	RequestLogger(logger)(h).ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry, rec
}

func TestRequestLoggerRecordsCaller(t *testing.T) {
	var seenID string
	h := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/api/events/7/register", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	entry, rec := logRequest(t, req, h)

	if entry["status"] != float64(http.StatusNoContent) {
		t.Errorf("status = %v, want 204", entry["status"])
	}
	if entry["user_id"] != float64(2) {
		t.Errorf("user_id = %v, want 2", entry["user_id"])
	}
	if entry["role"] != "staff" {
		t.Errorf("role = %v, want staff", entry["role"])
	}
	id := rec.Header().Get("X-Request-ID")
	if id == "" || entry["request_id"] != id || seenID != id {
		t.Errorf("request id header=%q log=%v handler=%q, want one id", id, entry["request_id"], seenID)
	}
}

func TestRequestLoggerAnonymous(t *testing.T) {
	h := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("X-Request-ID", "req-42")
	entry, rec := logRequest(t, req, h)

	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("expected no user_id for rejected request")
	}
	if entry["request_id"] != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request id = %v, want incoming req-42", entry["request_id"])
	}
}

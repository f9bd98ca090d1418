package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGatewaySendToDevices(t *testing.T) {
	var got gatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q, want %q", auth, "Bearer secret")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success_count": 1,
			"failure_count": 2,
			"results": []map[string]string{
				{"token": "ios-1"},
				{"token": "ios-2", "error": "unregistered"},
				{"token": "android-1", "error": "rate limited"},
			},
		})
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "secret", WithHTTPClient(srv.Client()))
	r, err := g.SendToDevices(context.Background(),
		[]string{"ios-1", "ios-2", "android-1"},
		Message{Title: "Reminder", Body: "Starts soon"},
		map[string]string{"event_id": "7"},
	)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(got.Tokens) != 3 {
		t.Errorf("tokens sent = %d, want 3", len(got.Tokens))
	}
	if got.Notification.Title != "Reminder" {
		t.Errorf("title = %q, want %q", got.Notification.Title, "Reminder")
	}
	if got.Data["event_id"] != "7" {
		t.Errorf("data = %v", got.Data)
	}
	if r.SuccessCount != 1 || r.FailureCount != 2 {
		t.Errorf("result = %+v, want 1 success 2 failures", r)
	}
	if !errors.Is(r.TokenErrors["ios-2"], ErrExpired) {
		t.Errorf("ios-2 error = %v, want ErrExpired", r.TokenErrors["ios-2"])
	}
	if errors.Is(r.TokenErrors["android-1"], ErrExpired) {
		t.Error("expected android-1 not expired")
	}
}

func TestGatewayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "", WithHTTPClient(srv.Client()))
	if _, err := g.SendToDevices(context.Background(), []string{"t"}, Message{}, nil); err == nil {
		t.Error("expected error for 502")
	}
}

func TestGatewayNotConfigured(t *testing.T) {
	g := NewGateway("", "")
	if g.Configured() {
		t.Error("expected not configured")
	}
	if _, err := g.SendToDevices(context.Background(), []string{"t"}, Message{}, nil); err == nil {
		t.Error("expected error when not configured")
	}
}

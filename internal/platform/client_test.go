package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerAndDefaults(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:        server.URL + "/",
		DefaultHeaders: map[string]string{"Accept": "application/json"},
	})
	client.SetAuthToken("tok-123")

	raw, err := client.Do(context.Background(), http.MethodPost, "/api/things", map[string]any{"name": "x"}, RequestOptions{})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if raw.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", raw.StatusCode)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Fatalf("default header not applied, got %q", gotAccept)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", gotContentType)
	}
}

func TestClientOmitAuth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	client.SetAuthToken("tok-123")
	if _, err := client.Do(context.Background(), http.MethodGet, "/open", nil, RequestOptions{OmitAuth: true}); err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no authorization header, got %q", gotAuth)
	}
}

func TestClientNon2xxReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "stake must be positive"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	raw, err := client.Do(context.Background(), http.MethodPost, "/api/predictions", map[string]any{"stake_points": -10}, RequestOptions{})
	if err == nil {
		t.Fatalf("expected error for 422")
	}
	apiErr, ok := IsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", apiErr.StatusCode)
	}
	if apiErr.Error() != "stake must be positive" {
		t.Fatalf("expected envelope message, got %q", apiErr.Error())
	}
	// the raw response is still usable for classification
	if raw == nil || raw.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected raw response alongside the error")
	}
}

func TestClientTransportErrorHasNoAPIError(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Do(context.Background(), http.MethodGet, "/anything", nil, RequestOptions{})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if _, ok := IsAPIError(err); ok {
		t.Fatalf("transport failure must not classify as APIError")
	}
}

func TestEnvelopeTextPreference(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"hello","error":"boom"}`, "hello"},
		{`{"error":"boom","detail":"ctx"}`, "boom"},
		{`{"detail":"ctx"}`, "ctx"},
		{`{}`, ""},
		{`not json`, ""},
	}
	for _, tc := range cases {
		if got := ParseEnvelope([]byte(tc.body)).Text(); got != tc.want {
			t.Errorf("body %q: expected %q, got %q", tc.body, tc.want, got)
		}
	}
}

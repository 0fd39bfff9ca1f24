package harness

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"arena-verify/internal/platform"
)

func newAuthBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body.Username == "admin" && body.Password == "letmein" {
			json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "admin-token-1"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid credentials"})
	})
	mux.HandleFunc("POST /api/auth/request-otp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "otp sent"})
	})
	mux.HandleFunc("POST /api/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OTP string `json:"otp"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body.OTP != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "bad otp"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"access_token": "user-token-1"}})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAuthenticateVariantsFallsThrough(t *testing.T) {
	server := newAuthBackend(t)
	client := platform.NewClient(platform.Config{BaseURL: server.URL})
	manager := NewSessionManager(client)

	session, err := manager.Authenticate(context.Background(), RoleConfig{
		Name:      RoleAdmin,
		LoginPath: "/api/admin/login",
		Credentials: []Credential{
			{Identifier: "admin", Secret: "wrong"},
			{Identifier: "root", Secret: "wrong"},
			{Identifier: "admin", Secret: "letmein"},
		},
	})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if session.Token != "admin-token-1" {
		t.Fatalf("expected admin token, got %q", session.Token)
	}
	if !manager.HasRole(RoleAdmin) {
		t.Fatalf("expected admin session to be held")
	}
}

func TestAuthenticateVariantsExhausted(t *testing.T) {
	server := newAuthBackend(t)
	client := platform.NewClient(platform.Config{BaseURL: server.URL})
	manager := NewSessionManager(client)

	_, err := manager.Authenticate(context.Background(), RoleConfig{
		Name:      RoleAdmin,
		LoginPath: "/api/admin/login",
		Credentials: []Credential{
			{Identifier: "admin", Secret: "nope"},
			{Identifier: "admin", Secret: "still-nope"},
		},
	})
	var exhausted *AuthExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AuthExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", exhausted.Attempts)
	}
}

func TestAuthenticateChallengeFlow(t *testing.T) {
	server := newAuthBackend(t)
	client := platform.NewClient(platform.Config{BaseURL: server.URL})
	manager := NewSessionManager(client)

	session, err := manager.Authenticate(context.Background(), RoleConfig{
		Name: RoleUser,
		Challenge: &ChallengeConfig{
			ClaimPath:   "/api/auth/request-otp",
			RespondPath: "/api/auth/verify-otp",
			Claim:       map[string]any{"phone": "+15550100001"},
			Response:    map[string]any{"phone": "+15550100001", "otp": "123456"},
		},
	})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if session.Token != "user-token-1" {
		t.Fatalf("expected user token, got %q", session.Token)
	}
}

func TestAuthenticateChallengeRejected(t *testing.T) {
	server := newAuthBackend(t)
	client := platform.NewClient(platform.Config{BaseURL: server.URL})
	manager := NewSessionManager(client)

	_, err := manager.Authenticate(context.Background(), RoleConfig{
		Name: RoleUser,
		Challenge: &ChallengeConfig{
			ClaimPath:   "/api/auth/request-otp",
			RespondPath: "/api/auth/verify-otp",
			Claim:       map[string]any{"phone": "+15550100001"},
			Response:    map[string]any{"phone": "+15550100001", "otp": "000000"},
		},
	})
	var rejected *ChallengeRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ChallengeRejectedError, got %v", err)
	}
}

func TestWithRoleRestoresPreviousToken(t *testing.T) {
	client := platform.NewClient(platform.Config{BaseURL: "http://unused.local"})
	client.SetAuthToken("outer-token")
	manager := NewSessionManager(client)
	manager.install(RoleUser, "inner-token")

	err := manager.WithRole(RoleUser, func() error {
		if client.AuthToken() != "inner-token" {
			t.Fatalf("expected inner token active, got %q", client.AuthToken())
		}
		return errors.New("probe failed")
	})
	if err == nil {
		t.Fatalf("expected fn error to propagate")
	}
	if client.AuthToken() != "outer-token" {
		t.Fatalf("expected outer token restored, got %q", client.AuthToken())
	}
}

func TestWithRoleRestoresOnPanic(t *testing.T) {
	client := platform.NewClient(platform.Config{BaseURL: "http://unused.local"})
	client.SetAuthToken("outer-token")
	manager := NewSessionManager(client)
	manager.install(RoleUser, "inner-token")

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = manager.WithRole(RoleUser, func() error {
			panic("boom")
		})
	}()
	if client.AuthToken() != "outer-token" {
		t.Fatalf("expected outer token restored after panic, got %q", client.AuthToken())
	}
}

func TestWithRoleMissingSession(t *testing.T) {
	client := platform.NewClient(platform.Config{BaseURL: "http://unused.local"})
	manager := NewSessionManager(client)
	err := manager.WithRole(RoleAdmin, func() error { return nil })
	var missing *NoSessionError
	if !errors.As(err, &missing) {
		t.Fatalf("expected NoSessionError, got %v", err)
	}
}

func TestWithoutRoleStripsToken(t *testing.T) {
	client := platform.NewClient(platform.Config{BaseURL: "http://unused.local"})
	client.SetAuthToken("some-token")
	manager := NewSessionManager(client)

	_ = manager.WithoutRole(func() error {
		if client.AuthToken() != "" {
			t.Fatalf("expected no token during WithoutRole, got %q", client.AuthToken())
		}
		return nil
	})
	if client.AuthToken() != "some-token" {
		t.Fatalf("expected token restored, got %q", client.AuthToken())
	}
}

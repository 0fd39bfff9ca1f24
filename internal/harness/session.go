package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"arena-verify/internal/platform"
)

// Credential is one identifier/secret pair tried during single-step login.
type Credential struct {
	Identifier string
	Secret     string
}

// ChallengeConfig describes the two-step login shape: an identity claim
// followed by a challenge response on a second endpoint.
type ChallengeConfig struct {
	ClaimPath   string
	RespondPath string
	Claim       map[string]any
	Response    map[string]any
}

type RoleConfig struct {
	Name        string
	LoginPath   string
	Credentials []Credential
	Challenge   *ChallengeConfig
}

type Session struct {
	Role     string
	Token    string
	IssuedAt time.Time
}

type AuthExhaustedError struct {
	Role     string
	Attempts int
}

func (e *AuthExhaustedError) Error() string {
	return fmt.Sprintf("auth exhausted for role %q after %d credential variants", e.Role, e.Attempts)
}

type ChallengeError struct {
	Role   string
	Status int
	Detail string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge claim failed for role %q (status %d): %s", e.Role, e.Status, e.Detail)
}

type ChallengeRejectedError struct {
	Role   string
	Status int
	Detail string
}

func (e *ChallengeRejectedError) Error() string {
	return fmt.Sprintf("challenge response rejected for role %q (status %d): %s", e.Role, e.Status, e.Detail)
}

type NoSessionError struct {
	Role string
}

func (e *NoSessionError) Error() string {
	return fmt.Sprintf("no active session for role %q", e.Role)
}

// SessionManager owns one session per named role and installs a role's
// bearer token on the shared client for the duration of a single probe.
// The mutex serializes scoped activations so a concurrent probe can never
// observe another role's credential mid-call.
type SessionManager struct {
	mu       sync.Mutex
	client   *platform.Client
	sessions map[string]*Session
}

func NewSessionManager(client *platform.Client) *SessionManager {
	return &SessionManager{
		client:   client,
		sessions: map[string]*Session{},
	}
}

// Authenticate obtains a bearer token for the role, either by trying the
// ordered credential variants or by running the two-step challenge flow.
func (m *SessionManager) Authenticate(ctx context.Context, cfg RoleConfig) (*Session, error) {
	if cfg.Challenge != nil {
		return m.authenticateChallenge(ctx, cfg)
	}
	return m.authenticateVariants(ctx, cfg)
}

func (m *SessionManager) authenticateVariants(ctx context.Context, cfg RoleConfig) (*Session, error) {
	for _, cred := range cfg.Credentials {
		body := map[string]any{
			"username": cred.Identifier,
			"password": cred.Secret,
		}
		raw, err := m.client.Do(ctx, http.MethodPost, cfg.LoginPath, body, platform.RequestOptions{OmitAuth: true})
		if err != nil {
			if _, ok := platform.IsAPIError(err); ok {
				continue
			}
			return nil, fmt.Errorf("authenticate role %q: %w", cfg.Name, err)
		}
		token, ok := extractToken(raw.Body)
		if !ok {
			continue
		}
		return m.install(cfg.Name, token), nil
	}
	return nil, &AuthExhaustedError{Role: cfg.Name, Attempts: len(cfg.Credentials)}
}

func (m *SessionManager) authenticateChallenge(ctx context.Context, cfg RoleConfig) (*Session, error) {
	ch := cfg.Challenge
	raw, err := m.client.Do(ctx, http.MethodPost, ch.ClaimPath, ch.Claim, platform.RequestOptions{OmitAuth: true})
	if err != nil {
		if apiErr, ok := platform.IsAPIError(err); ok {
			return nil, &ChallengeError{Role: cfg.Name, Status: apiErr.StatusCode, Detail: apiErr.Error()}
		}
		return nil, &ChallengeError{Role: cfg.Name, Detail: err.Error()}
	}
	envelope := platform.ParseEnvelope(raw.Body)
	if envelope.Success != nil && !*envelope.Success {
		return nil, &ChallengeError{Role: cfg.Name, Status: raw.StatusCode, Detail: envelope.Text()}
	}

	raw, err = m.client.Do(ctx, http.MethodPost, ch.RespondPath, ch.Response, platform.RequestOptions{OmitAuth: true})
	if err != nil {
		if apiErr, ok := platform.IsAPIError(err); ok {
			return nil, &ChallengeRejectedError{Role: cfg.Name, Status: apiErr.StatusCode, Detail: apiErr.Error()}
		}
		return nil, &ChallengeRejectedError{Role: cfg.Name, Detail: err.Error()}
	}
	token, ok := extractToken(raw.Body)
	if !ok {
		return nil, &ChallengeRejectedError{Role: cfg.Name, Status: raw.StatusCode, Detail: "no token in challenge response"}
	}
	return m.install(cfg.Name, token), nil
}

func (m *SessionManager) install(role, token string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := &Session{
		Role:     role,
		Token:    token,
		IssuedAt: time.Now(),
	}
	if _, exists := m.sessions[role]; exists {
		slog.Info("re-issuing credential for role", "role", role)
	}
	m.sessions[role] = session
	return session
}

// HasRole reports whether a credential is held for the role.
func (m *SessionManager) HasRole(role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[role]
	return ok && session.Token != ""
}

// WithRole installs the role's bearer token on the client, runs fn, and
// restores whatever token was active beforehand on every exit path,
// including panic.
func (m *SessionManager) WithRole(role string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[role]
	if !ok || session.Token == "" {
		return &NoSessionError{Role: role}
	}
	prev := m.client.AuthToken()
	m.client.SetAuthToken(session.Token)
	defer m.client.SetAuthToken(prev)
	return fn()
}

// WithoutRole runs fn with the authorization header stripped, restoring
// the prior token afterwards. Used to simulate unauthenticated calls.
func (m *SessionManager) WithoutRole(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.client.AuthToken()
	m.client.SetAuthToken("")
	defer m.client.SetAuthToken(prev)
	return fn()
}

// ClearRole removes any active authorization token entirely.
func (m *SessionManager) ClearRole() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client.SetAuthToken("")
}

func extractToken(body []byte) (string, bool) {
	var direct struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Data        struct {
			Token       string `json:"token"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &direct); err != nil {
		return "", false
	}
	for _, candidate := range []string{direct.Token, direct.AccessToken, direct.Data.Token, direct.Data.AccessToken} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate), true
		}
	}
	return "", false
}

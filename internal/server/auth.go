package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const roleAdmin = "admin"

var errNoSession = errors.New("no valid session")

// Auth owns browser sessions for operators and the static admin token
// used by automation. Session tokens are stored hashed; the raw token
// only ever lives in the cookie.
type Auth struct {
	pool       *pgxpool.Pool
	adminToken string
	cookieName string
	sessionTTL time.Duration
}

func NewAuth(pool *pgxpool.Pool, cfg ServerConfig) *Auth {
	ttl := 8 * time.Hour
	if parsed, err := time.ParseDuration(strings.TrimSpace(cfg.Auth.SessionTTL)); err == nil && parsed > 0 {
		ttl = parsed
	}
	name := strings.TrimSpace(cfg.Auth.CookieName)
	if name == "" {
		name = "verify_session"
	}
	return &Auth{
		pool:       pool,
		adminToken: strings.TrimSpace(cfg.Security.AdminToken),
		cookieName: name,
		sessionTTL: ttl,
	}
}

func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if a.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "user login requires a database")
		return
	}

	userID, role, err := a.verifyCredentials(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := a.issueSession(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.sessionTTL.Seconds()),
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "role": role})
}

func (a *Auth) verifyCredentials(ctx context.Context, username, password string) (userID, role string, err error) {
	var hash string
	err = a.pool.QueryRow(ctx,
		`SELECT id, password_hash, role FROM users WHERE username=$1`, username).Scan(&userID, &hash, &role)
	if err != nil {
		return "", "", errNoSession
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", "", errNoSession
	}
	return userID, role, nil
}

// issueSession stores only the hash of the new token and sweeps expired
// rows while it is here, so the sessions table cannot grow unbounded.
func (a *Auth) issueSession(ctx context.Context, userID string) (string, error) {
	token, err := randomBase64(32)
	if err != nil {
		return "", err
	}
	_, _ = a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	_, err = a.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		sha256Hex(token), userID, time.Now().Add(a.sessionTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(a.cookieName); err == nil && cookie != nil && a.pool != nil {
		_, _ = a.pool.Exec(r.Context(), `DELETE FROM sessions WHERE token_hash=$1`, sha256Hex(cookie.Value))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *Auth) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := a.AuthenticateRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     principal,
	})
}

func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if p.Role != roleAdmin {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// AuthenticateRequest resolves a principal from, in order: the session
// cookie, the X-Admin-Token header, and a bearer token carrying the
// admin token. The header paths exist for CI callers without a cookie
// jar.
func (a *Auth) AuthenticateRequest(r *http.Request) (Principal, error) {
	if p, ok := a.sessionPrincipal(r); ok {
		return p, nil
	}
	if p, ok := a.adminTokenPrincipal(r); ok {
		return p, nil
	}
	return Principal{}, errNoSession
}

func (a *Auth) sessionPrincipal(r *http.Request) (Principal, bool) {
	if a.pool == nil {
		return Principal{}, false
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Principal{}, false
	}
	var sub, username, role string
	err = a.pool.QueryRow(r.Context(),
		`SELECT u.id, u.username, u.role FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash=$1 AND s.expires_at > now()`, sha256Hex(cookie.Value)).Scan(&sub, &username, &role)
	if err != nil {
		return Principal{}, false
	}
	return Principal{Subject: sub, Username: username, Role: role}, true
}

func (a *Auth) adminTokenPrincipal(r *http.Request) (Principal, bool) {
	if a.adminToken == "" {
		return Principal{}, false
	}
	candidate := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	if candidate == "" {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			candidate = strings.TrimSpace(authHeader[7:])
		}
	}
	if candidate == "" || !constantTimeEqual(candidate, a.adminToken) {
		return Principal{}, false
	}
	return Principal{Subject: "admin-token", Username: "admin-token", Role: roleAdmin}, true
}

func SeedUser(ctx context.Context, pool *pgxpool.Pool, username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO UPDATE SET password_hash=$2, role=$3, updated_at=now()`,
		username, string(hash), role)
	return err
}

type principalContextKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	value := ctx.Value(principalContextKey{})
	principal, ok := value.(Principal)
	return principal, ok
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func randomBase64(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

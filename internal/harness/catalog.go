package harness

import (
	"net/http"
	"strings"
)

// CaptureSpec tells the orchestrator where a creation probe's new
// identifier lives in the response and under which resource type to track
// it.
type CaptureSpec struct {
	Type  string
	Field string
}

// CatalogProbe is one declarative probe: endpoint, payload, role, category
// tag, expected-verdict hint, and optional resource capture. Path
// templates may contain {type} placeholders resolved from the registry.
type CatalogProbe struct {
	Name    string
	Method  string
	Path    string
	Payload map[string]any
	Role    string
	Expect  Verdict
	Capture *CaptureSpec
}

type FeatureGroup struct {
	Name   string
	Probes []CatalogProbe
}

// CleanupSpec maps a resource type to the delete endpoint used by the
// cleanup pass, and the role allowed to call it.
type CleanupSpec struct {
	Type string
	Path string
	Role string
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultRoles returns the fixed test-fixture credentials. The admin role
// authenticates with a single-step exchange over ordered variants; the
// user role runs the two-step challenge flow.
func DefaultRoles() []RoleConfig {
	return []RoleConfig{
		{
			Name:      RoleAdmin,
			LoginPath: "/api/admin/login",
			Credentials: []Credential{
				{Identifier: "admin", Secret: "admin123"},
				{Identifier: "admin@arena.test", Secret: "admin123"},
				{Identifier: "superadmin", Secret: "changeme"},
			},
		},
		{
			Name: RoleUser,
			Challenge: &ChallengeConfig{
				ClaimPath:   "/api/auth/request-otp",
				RespondPath: "/api/auth/verify-otp",
				Claim:       map[string]any{"phone": "+15550100001"},
				Response:    map[string]any{"phone": "+15550100001", "otp": "123456"},
			},
		},
	}
}

// Catalogue is the full probe surface, one group per platform feature.
// Probes within a group run in declaration order because later probes may
// consume identifiers created by earlier ones.
func Catalogue() []FeatureGroup {
	return []FeatureGroup{
		{
			Name: "achievements",
			Probes: []CatalogProbe{
				{Name: "achievements.list", Method: http.MethodGet, Path: "/api/achievements", Role: RoleUser},
				{Name: "achievements.create", Method: http.MethodPost, Path: "/api/admin/achievements", Role: RoleAdmin,
					Payload: map[string]any{"name": "First Blood", "description": "Win your first match", "points": 50, "icon": "trophy"},
					Capture: &CaptureSpec{Type: "achievement", Field: "id"}},
				{Name: "achievements.get", Method: http.MethodGet, Path: "/api/achievements/{achievement}", Role: RoleUser},
				{Name: "achievements.claim", Method: http.MethodPost, Path: "/api/achievements/{achievement}/claim", Role: RoleUser},
				{Name: "achievements.progress", Method: http.MethodGet, Path: "/api/users/me/achievements", Role: RoleUser},
			},
		},
		{
			Name: "fraud-detection",
			Probes: []CatalogProbe{
				{Name: "fraud.alerts.unauthenticated", Method: http.MethodGet, Path: "/api/admin/fraud/alerts", Expect: VerdictAuthRequired},
				{Name: "fraud.alerts.list", Method: http.MethodGet, Path: "/api/admin/fraud/alerts", Role: RoleAdmin},
				{Name: "fraud.report", Method: http.MethodPost, Path: "/api/fraud/reports", Role: RoleUser,
					Payload: map[string]any{"reported_user": "suspicious_player_42", "reason": "impossible reaction times", "match_id": 1001},
					Capture: &CaptureSpec{Type: "fraud_report", Field: "id"}},
				{Name: "fraud.report.status", Method: http.MethodGet, Path: "/api/fraud/reports/{fraud_report}", Role: RoleUser},
				{Name: "fraud.rules", Method: http.MethodGet, Path: "/api/admin/fraud/rules", Role: RoleAdmin},
			},
		},
		{
			Name: "brackets",
			Probes: []CatalogProbe{
				{Name: "brackets.list", Method: http.MethodGet, Path: "/api/tournaments/brackets", Role: RoleUser},
				{Name: "brackets.create", Method: http.MethodPost, Path: "/api/admin/tournaments/brackets", Role: RoleAdmin,
					Payload: map[string]any{"name": "Summer Cup Qualifier", "size": 16, "game": "arena-blitz", "seeding": "elo"},
					Capture: &CaptureSpec{Type: "bracket", Field: "id"}},
				{Name: "brackets.get", Method: http.MethodGet, Path: "/api/tournaments/brackets/{bracket}", Role: RoleUser},
				{Name: "brackets.join", Method: http.MethodPost, Path: "/api/tournaments/brackets/{bracket}/join", Role: RoleUser},
				{Name: "brackets.standings", Method: http.MethodGet, Path: "/api/tournaments/brackets/{bracket}/standings", Role: RoleUser},
			},
		},
		{
			Name: "predictions",
			Probes: []CatalogProbe{
				{Name: "predictions.open", Method: http.MethodGet, Path: "/api/predictions/open", Role: RoleUser},
				{Name: "predictions.place", Method: http.MethodPost, Path: "/api/predictions", Role: RoleUser,
					Payload: map[string]any{"match_id": 1001, "predicted_winner": "team_red", "stake_points": 25},
					Capture: &CaptureSpec{Type: "prediction", Field: "id"}},
				{Name: "predictions.get", Method: http.MethodGet, Path: "/api/predictions/{prediction}", Role: RoleUser},
				{Name: "predictions.invalid-stake", Method: http.MethodPost, Path: "/api/predictions", Role: RoleUser,
					Payload: map[string]any{"match_id": 1001, "predicted_winner": "team_red", "stake_points": -10},
					Expect:  VerdictValidationRejected},
				{Name: "predictions.history", Method: http.MethodGet, Path: "/api/users/me/predictions", Role: RoleUser},
			},
		},
		{
			Name: "social",
			Probes: []CatalogProbe{
				{Name: "social.friends.list", Method: http.MethodGet, Path: "/api/friends", Role: RoleUser},
				{Name: "social.friends.request-ghost", Method: http.MethodPost, Path: "/api/friends/requests", Role: RoleUser,
					Payload: map[string]any{"username": "ghost_user_does_not_exist"},
					Expect:  VerdictValidationRejected},
				{Name: "social.share", Method: http.MethodPost, Path: "/api/social/shares", Role: RoleUser,
					Payload: map[string]any{"content_id": 789, "platform": "feed", "caption": "clutch round", "visibility": "public"},
					Capture: &CaptureSpec{Type: "share", Field: "id"}},
				{Name: "social.share.get", Method: http.MethodGet, Path: "/api/social/shares/{share}", Role: RoleUser},
			},
		},
		{
			Name: "leaderboards",
			Probes: []CatalogProbe{
				{Name: "leaderboards.global", Method: http.MethodGet, Path: "/api/leaderboards/global", Role: RoleUser},
				{Name: "leaderboards.weekly", Method: http.MethodGet, Path: "/api/leaderboards/weekly", Role: RoleUser},
				{Name: "leaderboards.around-me", Method: http.MethodGet, Path: "/api/leaderboards/global/me", Role: RoleUser},
			},
		},
	}
}

// CleanupSpecs covers every resource type a catalogue probe can create.
func CleanupSpecs() []CleanupSpec {
	return []CleanupSpec{
		{Type: "share", Path: "/api/social/shares/{id}", Role: RoleUser},
		{Type: "prediction", Path: "/api/predictions/{id}", Role: RoleUser},
		{Type: "fraud_report", Path: "/api/fraud/reports/{id}", Role: RoleAdmin},
		{Type: "bracket", Path: "/api/admin/tournaments/brackets/{id}", Role: RoleAdmin},
		{Type: "achievement", Path: "/api/admin/achievements/{id}", Role: RoleAdmin},
	}
}

func DefaultFeatureOrder() []string {
	groups := Catalogue()
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.Name)
	}
	return names
}

func ResolveFeatureSelection(selection string) []string {
	value := strings.TrimSpace(strings.ToLower(selection))
	if value == "" || value == "all" {
		return DefaultFeatureOrder()
	}
	items := strings.Split(value, ",")
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(strings.ToLower(item))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

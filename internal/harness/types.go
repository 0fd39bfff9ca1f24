package harness

import "encoding/json"

// Verdict is the semantic classification of one probe outcome.
type Verdict string

const (
	VerdictSuccess            Verdict = "success"
	VerdictAuthRequired       Verdict = "auth_required"
	VerdictForbidden          Verdict = "forbidden"
	VerdictValidationRejected Verdict = "validation_rejected"
	VerdictNotImplemented     Verdict = "not_implemented"
	VerdictNotFound           Verdict = "not_found"
	VerdictServerFault        Verdict = "server_fault"
	VerdictUnreachable        Verdict = "unreachable"
	VerdictMalformed          Verdict = "malformed"
	VerdictUnexpected         Verdict = "unexpected"
	VerdictSkipped            Verdict = "skipped"
)

// RouteExists reports whether the verdict implies the endpoint is wired up
// on the platform, regardless of whether the call itself succeeded. A 401
// counts: the route exists and demands credentials. A routing 404 does not.
func (v Verdict) RouteExists() bool {
	switch v {
	case VerdictSuccess, VerdictAuthRequired, VerdictForbidden, VerdictValidationRejected, VerdictNotFound:
		return true
	default:
		return false
	}
}

type ProbeResult struct {
	Test       string          `json:"test"`
	Category   string          `json:"category"`
	Role       string          `json:"role,omitempty"`
	Verdict    Verdict         `json:"verdict"`
	Expected   Verdict         `json:"expected,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Details    string          `json:"details"`
	RawBody    json.RawMessage `json:"raw_body,omitempty"`
	Timestamp  string          `json:"timestamp"`
	DurationMS int64           `json:"duration_ms"`
}

// Passed applies the accessibility convention: with an expected-verdict
// hint the classification must match it; without one, any verdict that
// proves the route exists counts.
func (r ProbeResult) Passed() bool {
	if r.Verdict == VerdictSkipped {
		return false
	}
	if r.Expected != "" {
		return r.Verdict == r.Expected
	}
	return r.Verdict.RouteExists()
}

type RunConfig struct {
	BaseURL      string
	Features     []string
	Roles        []RoleConfig
	SkipCleanup  bool
	ProbeTimeout int
}

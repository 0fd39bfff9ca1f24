package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"arena-verify/internal/platform"
)

// ProbeRequest is one outbound call with its expectation. Immutable once
// issued.
type ProbeRequest struct {
	Name     string
	Category string
	Method   string
	Path     string
	Payload  any
	Role     string
	Expect   Verdict
}

// Prober issues a single probe and classifies the raw outcome. It is the
// only place that encodes the accessibility convention: 401 proves the
// route exists (a pass), a routing 404 proves it is missing (a failure).
type Prober struct {
	client *platform.Client
}

func NewProber(client *platform.Client) *Prober {
	return &Prober{client: client}
}

// Probe never returns an error: every failure mode, transport included,
// is folded into the result's verdict and detail. The response body is
// returned alongside so the orchestrator can harvest created identifiers.
func (p *Prober) Probe(ctx context.Context, req ProbeRequest) (ProbeResult, []byte) {
	result := ProbeResult{
		Test:      req.Name,
		Category:  req.Category,
		Role:      req.Role,
		Expected:  req.Expect,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	start := time.Now()
	raw, err := p.client.Do(ctx, req.Method, req.Path, req.Payload, platform.RequestOptions{})
	result.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		if _, ok := platform.IsAPIError(err); !ok {
			result.Verdict = VerdictUnreachable
			result.Details = err.Error()
			return result, nil
		}
	}

	result.StatusCode = raw.StatusCode
	result.Verdict, result.Details = ClassifyResponse(raw.StatusCode, raw.Body)
	if result.Verdict != VerdictSuccess {
		result.RawBody = rawBody(raw.Body)
	}
	if req.Expect != "" && result.Verdict != req.Expect {
		result.Details = fmt.Sprintf("expected %s, classified %s: %s", req.Expect, result.Verdict, result.Details)
	}
	return result, raw.Body
}

// ClassifyResponse maps a status code and body into a verdict. Status code
// dominates body content except for the 404 heuristic and the 2xx
// well-formedness check.
func ClassifyResponse(status int, body []byte) (Verdict, string) {
	switch {
	case status == 404:
		if routingNotFound(body) {
			return VerdictNotImplemented, "route missing: " + snippet(body)
		}
		return VerdictNotFound, "entity not found: " + snippet(body)
	case status == 401:
		return VerdictAuthRequired, "route exists, credentials required"
	case status == 403:
		return VerdictForbidden, "route exists, caller not permitted"
	case status == 400 || status == 422:
		return VerdictValidationRejected, "validation rejected: " + snippet(body)
	case status >= 500:
		return VerdictServerFault, fmt.Sprintf("backend error %d: %s", status, snippet(body))
	case status == 200 || status == 201 || status == 202:
		if detail, ok := successWellFormed(body); !ok {
			return VerdictMalformed, detail
		}
		return VerdictSuccess, fmt.Sprintf("ok (%d)", status)
	default:
		return VerdictUnexpected, fmt.Sprintf("unexpected status %d: %s", status, snippet(body))
	}
}

// routingNotFound distinguishes a generic router 404 from a semantic
// "entity not found" by body shape: no JSON body, or one of the stock
// framework phrases, means the route itself is absent. A JSON body that
// names what was missing means the route exists.
func routingNotFound(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range []string{"404 page not found", "cannot get", "cannot post", "cannot put", "cannot delete", "no route", "route not found", "not found\n"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if !json.Valid(body) {
		return true
	}
	envelope := platform.ParseEnvelope(body)
	text := strings.ToLower(envelope.Text())
	if text == "" {
		// JSON but saying nothing useful; treat as the router's 404.
		return true
	}
	// A worded message ("user not found", "achievement does not exist")
	// is a handler speaking, so the route is wired up.
	return text == "not found"
}

func successWellFormed(body []byte) (string, bool) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "2xx with empty body", false
	}
	if !json.Valid(body) {
		return "2xx with unparseable body: " + snippet(body), false
	}
	envelope := platform.ParseEnvelope(body)
	if envelope.Success != nil && !*envelope.Success {
		return "2xx with success=false: " + envelope.Text(), false
	}
	return "", true
}

const maxSnippet = 200

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet]) + "..."
}

func rawBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}

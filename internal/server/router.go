package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"arena-verify/internal/harness"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type API struct {
	auth   *Auth
	store  Store
	runner RunnerService
	obs    *Observability
}

func NewAPI(auth *Auth, store Store, runner RunnerService, obs *Observability) *API {
	return &API{
		auth:   auth,
		store:  store,
		runner: runner,
		obs:    obs,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.auth.HandleMe)

	mux.Handle("POST /api/v1/admin/runs", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminCreateRun)))
	mux.Handle("GET /api/v1/admin/runs/{id}", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetRun)))
	mux.Handle("GET /api/v1/admin/runs/{id}/events", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetRunEventsSSE)))
	mux.Handle("GET /api/v1/admin/metrics/overview", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminOverview)))
	mux.Handle("GET /api/v1/admin/audit", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminAudit)))
	mux.Handle("GET /api/v1/admin/runs", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminListRuns)))

	mux.HandleFunc("POST /api/v1/user/quick-check", a.handleUserQuickCheck)
	mux.HandleFunc("GET /api/v1/user/quick-check/{id}", a.handleUserGetQuickCheck)
	mux.Handle("GET /api/v1/user/my-runs", a.auth.Require(http.HandlerFunc(a.handleUserMyRuns)))

	wrapped := otelhttp.NewHandler(mux, "verify-api-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleAdminCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("verify-api").Start(r.Context(), "admin.create_run")
	defer span.End()
	principal, _ := PrincipalFromContext(ctx)
	var req RunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	meta, err := a.runner.CreateAdminRun(req, principal, "admin.manual")
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": meta.RunID,
		"status": meta.Status,
	})
}

func (a *API) handleAdminGetRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	meta, ok := a.store.GetRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleAdminListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": a.store.ListRuns(100),
	})
}

func (a *API) handleAdminGetRunEventsSSE(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	if _, ok := a.store.GetRun(id); !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	cursor := parseCursor(r)
	send := func(events []RunEvent) {
		for _, event := range events {
			payload, marshalErr := json.Marshal(event)
			if marshalErr != nil {
				continue
			}
			fmt.Fprintf(w, "event: run_event\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			cursor = event.Seq
		}
		flusher.Flush()
	}
	send(a.store.ListRunEvents(id, cursor))

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			events := a.store.ListRunEvents(id, cursor)
			if len(events) > 0 {
				send(events)
			} else {
				_, _ = fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetMetricsOverview())
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(200),
	})
}

func (a *API) handleUserQuickCheck(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("verify-api").Start(r.Context(), "user.quick_check")
	defer span.End()
	var req QuickCheckRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ipHash, uaHash := actorHashes(r)
	// optional: attach user identity if logged in
	principal, _ := a.auth.AuthenticateRequest(r)
	span.SetAttributes(
		attribute.String("actor.type", "user"),
		attribute.String("scenario.id", req.ScenarioID),
	)
	meta, err := a.runner.CreateQuickCheck(req, ipHash, uaHash)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	// link run to logged-in user
	if principal.Subject != "" {
		_, _ = a.store.UpdateRun(meta.RunID, func(m *RunMeta) {
			m.CreatorSub = principal.Subject
		})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": meta.RunID,
		"status": meta.Status,
	})
}

func (a *API) handleUserMyRuns(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	runs := a.store.ListRunsByCreator(principal.Subject, 50)
	// return trimmed view
	out := make([]map[string]any, 0, len(runs))
	for _, m := range runs {
		entry := map[string]any{
			"run_id":     m.RunID,
			"status":     m.Status,
			"target":     m.Request.Target,
			"created_at": m.CreatedAt,
			"outcome": map[string]any{
				"pass_rate":      m.Outcome.PassRate,
				"missing_routes": m.Outcome.MissingRoutes,
			},
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (a *API) handleUserGetQuickCheck(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	meta, ok := a.store.GetRun(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	view := map[string]any{
		"run_id":      meta.RunID,
		"status":      meta.Status,
		"created_at":  meta.CreatedAt,
		"started_at":  meta.StartedAt,
		"finished_at": meta.FinishedAt,
		"outcome": map[string]any{
			"pass_rate":          meta.Outcome.PassRate,
			"missing_routes":     meta.Outcome.MissingRoutes,
			"server_faults":      meta.Outcome.ServerFaults,
			"skipped_probes":     meta.Outcome.SkippedProbes,
			"orphaned_resources": meta.Outcome.OrphanedResources,
		},
	}
	if meta.Report != nil {
		view["summary"] = summarizeReportForUser(*meta.Report)
	}
	writeJSON(w, http.StatusOK, view)
}

func summarizeReportForUser(artifact harness.Artifact) map[string]any {
	data := map[string]any{
		"total":  artifact.Summary.Total,
		"passed": artifact.Summary.Passed,
		"failed": artifact.Summary.Failed,
		"rate":   artifact.Summary.Rate,
	}
	highlights := make([]map[string]any, 0, len(artifact.Categories))
	for _, category := range artifact.Categories {
		if category.Passed < category.Total {
			highlights = append(highlights, map[string]any{
				"category": category.Name,
				"passed":   category.Passed,
				"total":    category.Total,
			})
		}
	}
	data["highlights"] = highlights
	return data
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorHashes(r *http.Request) (string, string) {
	ip, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
	}
	return hashString(ip), hashString(r.UserAgent())
}

package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

const (
	defaultTaxpayerPageSize = 50
	maxTaxpayerPageSize     = 1000
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"error": err.Error()}
	if code := types.ErrorCodeOf(err); code != "" {
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}

// httpStatusFor maps service errors to HTTP codes. Unknown identifiers
// are 404: the risk id is part of the resource path, so an id outside the
// catalogue names a resource that does not exist, not a bad request.
func httpStatusFor(err error) int {
	switch types.ErrorCodeOf(err) {
	case types.RISK_UNKNOWN, types.GRAPH_NODE_NOT_FOUND:
		return http.StatusNotFound
	}
	if types.IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := httpStatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err)
}

func filtersFromQuery(r *http.Request) risk.Filters {
	q := r.URL.Query()
	f := risk.Filters{
		StartDate: firstQueryValue(q, "startDate", "start_date"),
		EndDate:   firstQueryValue(q, "endDate", "end_date"),
		Region:    q.Get("region"),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Limit = n
		} else {
			f.Limit = -1 // rejected by Filters.Validate
		}
	}
	return f
}

// firstQueryValue returns the first non-empty value among the given
// parameter names. The documented names are camelCase; the snake_case
// forms are kept as aliases.
func firstQueryValue(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// GET /api/risks
func (s *Server) handleListRisks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"risks": risk.All()})
}

// GET /api/risks/{id}
//
// The full dashboard envelope for one rule: the relational evaluation
// (summary + raw rows) plus the current graph relationships for the rule.
func (s *Server) handleEvaluateRisk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filters := filtersFromQuery(r)

	result, err := s.evaluator.Evaluate(r.Context(), id, filters)
	s.metrics.observeEvaluation(id, err)
	if err != nil {
		s.fail(w, err)
		return
	}

	population, err := s.db.CountRegisteredTaxpayers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	relLimit := filters.Limit
	if relLimit <= 0 {
		relLimit = defaultTaxpayerPageSize
	}
	relationships, err := s.store.RiskRelationships(r.Context(), id, relLimit)
	if err != nil {
		s.fail(w, err)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	if relationships == nil {
		relationships = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"riskId": id,
		"summary": map[string]any{
			"totalTaxpayers": population,
			"flaggedCount":   result.FlaggedCount,
			"totalExposure":  result.TotalExposure,
		},
		"data":          rows,
		"relationships": relationships,
	})
}

// GET /api/risks/{id}/summary
func (s *Server) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.evaluator.Evaluate(r.Context(), id, filtersFromQuery(r))
	s.metrics.observeEvaluation(id, err)
	if err != nil {
		s.fail(w, err)
		return
	}

	population, err := s.db.CountRegisteredTaxpayers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Summarize(population))
}

// GET /api/risks/{id}/taxpayers
func (s *Server) handleRiskTaxpayers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := risk.Lookup(id); err != nil {
		s.fail(w, err)
		return
	}

	q := r.URL.Query()
	limit := intQuery(q.Get("limit"), defaultTaxpayerPageSize)
	offset := intQuery(q.Get("offset"), 0)
	if limit < 1 || limit > maxTaxpayerPageSize || offset < 0 {
		s.fail(w, types.NewError(types.FILTER_INVALID, "limit or offset out of range"))
		return
	}

	links, total, err := s.store.TaxpayersForRisk(r.Context(), id, limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"riskId":    id,
		"taxpayers": links,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// POST /api/risks/{id}/sync
func (s *Server) handleSyncRisk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stats, err := s.syncer.SyncRule(r.Context(), id, filtersFromQuery(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.mirroredTotal.Add(float64(stats.Mirrored))
	writeJSON(w, http.StatusOK, stats)
}

// POST /api/sync
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	if err := filters.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	stats, err := s.syncer.SyncAll(r.Context(), filters, s.sync.Parallelism)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.mirroredTotal.Add(float64(stats.Mirrored))
	s.metrics.syncFailures.Add(float64(stats.Failed))
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/taxpayers/{tin}
//
// Registration comes from the relational replica, risk flags from the
// graph mirror. A registered taxpayer that was never flagged still
// resolves, with an empty risk list.
func (s *Server) handleTaxpayer(w http.ResponseWriter, r *http.Request) {
	tin := r.PathValue("tin")

	registration, err := s.db.TaxpayerByTIN(r.Context(), tin)
	if err != nil {
		s.fail(w, err)
		return
	}

	profile, err := s.store.TaxpayerProfile(r.Context(), tin)
	if err != nil {
		s.fail(w, err)
		return
	}

	if registration == nil && profile == nil {
		writeError(w, http.StatusNotFound,
			types.NewError(types.GRAPH_NODE_NOT_FOUND, "taxpayer "+tin+" not found"))
		return
	}

	body := map[string]any{"tin": tin}
	if registration != nil {
		body["registration"] = registration
	}
	if profile != nil {
		body["risks"] = profile.Risks
		body["mirror_status"] = profile.Status
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /api/dashboard/kpis
func (s *Server) handleDashboardKPIs(w http.ResponseWriter, r *http.Request) {
	summary, err := s.aggregate.DashboardSummary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /api/dashboard/regional
//
// A bare array: clients iterate it directly.
func (s *Server) handleDashboardRegional(w http.ResponseWriter, r *http.Request) {
	rows, err := s.aggregate.RegionalSummary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GET /health
//
// Both backends are checked and reported as flat connected/disconnected
// values. Either backend down means the service is unhealthy, with 500.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	oracle := s.db.Health(r.Context())
	neo4j := s.store.Health(r.Context())

	body := map[string]any{
		"status": types.HealthStateHealthy,
		"oracle": connectionWord(oracle),
		"neo4j":  connectionWord(neo4j),
	}
	status := http.StatusOK
	if !oracle.IsHealthy() || !neo4j.IsHealthy() {
		status = http.StatusInternalServerError
		body["status"] = types.HealthStateUnhealthy
		body["error"] = healthFailureMessage(oracle, neo4j)
	}

	writeJSON(w, status, body)
}

func healthFailureMessage(oracle, neo4j types.HealthStatus) string {
	switch {
	case !oracle.IsHealthy() && !neo4j.IsHealthy():
		return "oracle: " + oracle.Message + "; neo4j: " + neo4j.Message
	case !oracle.IsHealthy():
		return "oracle: " + oracle.Message
	default:
		return "neo4j: " + neo4j.Message
	}
}

func connectionWord(h types.HealthStatus) string {
	if h.IsHealthy() {
		return "connected"
	}
	return "disconnected"
}

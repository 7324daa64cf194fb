package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amasuba/uraics-revenue-assurance/internal/aggregate"
	"github.com/amasuba/uraics-revenue-assurance/internal/config"
	"github.com/amasuba/uraics-revenue-assurance/internal/database"
	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
	"github.com/amasuba/uraics-revenue-assurance/internal/mirror"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
)

type testHarness struct {
	server *Server
	mock   sqlmock.Sqlmock
	store  *graph.MemStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := database.New(sqlx.NewDb(mockDB, "sqlmock"), 5*time.Second)
	store := graph.NewMemStore()
	evaluator := risk.NewEvaluator(db)

	srv := New(Options{
		Config:    *config.DefaultConfig(),
		DB:        db,
		Store:     store,
		Evaluator: evaluator,
		Aggregate: aggregate.New(db, store),
		Syncer:    mirror.NewSyncer(evaluator, store),
	})
	return &testHarness{server: srv, mock: mock, store: store}
}

func (h *testHarness) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListRisks(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/risks")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	risks, ok := body["risks"].([]any)
	require.True(t, ok)
	assert.Len(t, risks, 19)

	first, ok := risks[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", first["id"])
	// The SQL template is internal and never serialized.
	assert.NotContains(t, first, "Query")
}

func TestEvaluateRisk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, h.store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))

	rows := sqlmock.NewRows([]string{"tin_no", "tax_payer_name", "region_name", "flagged", "exposure"}).
		AddRow("1000000001", "Nakasero Wholesale", "Central", int64(1), int64(200000000)).
		AddRow("1000000002", "Gulu Agro Supplies", "Northern", int64(1), int64(350000000))
	h.mock.ExpectQuery("rtn_prsmptv_bsns_dtl").WillReturnRows(rows)
	h.mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(100)))

	rec := h.do(t, http.MethodGet, "/api/risks/a?startDate=01/07/2023&endDate=31/01/2024")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "a", body["riskId"])

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(100), summary["totalTaxpayers"])
	assert.Equal(t, float64(2), summary["flaggedCount"])
	assert.Equal(t, float64(550000000), summary["totalExposure"])

	data, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)

	relationships, ok := body["relationships"].([]any)
	require.True(t, ok)
	require.Len(t, relationships, 1)
	edge := relationships[0].(map[string]any)
	assert.Equal(t, "1000000001", edge["tin"])
}

func TestFiltersFromQueryNaming(t *testing.T) {
	// Documented camelCase names.
	req := httptest.NewRequest(http.MethodGet,
		"/api/risks/a?startDate=01/01/2024&endDate=31/03/2024&region=Central&limit=25", nil)
	f := filtersFromQuery(req)
	assert.Equal(t, "01/01/2024", f.StartDate)
	assert.Equal(t, "31/03/2024", f.EndDate)
	assert.Equal(t, "Central", f.Region)
	assert.Equal(t, 25, f.Limit)

	// snake_case aliases still accepted.
	req = httptest.NewRequest(http.MethodGet,
		"/api/risks/a?start_date=01/01/2024&end_date=31/03/2024", nil)
	f = filtersFromQuery(req)
	assert.Equal(t, "01/01/2024", f.StartDate)
	assert.Equal(t, "31/03/2024", f.EndDate)

	// The documented name wins when both forms are present.
	req = httptest.NewRequest(http.MethodGet,
		"/api/risks/a?startDate=01/01/2024&start_date=05/05/2025", nil)
	f = filtersFromQuery(req)
	assert.Equal(t, "01/01/2024", f.StartDate)
}

func TestEvaluateRiskUnknownIs404(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/risks/zz")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "RISK_UNKNOWN", body["code"])
	assert.Contains(t, body["error"], "zz")
}

func TestEvaluateRiskBadDateIs400(t *testing.T) {
	h := newHarness(t)

	// A malformed date must be rejected, not silently replaced by the
	// default window — under both parameter spellings.
	for _, target := range []string{
		"/api/risks/a?startDate=2023-07-01",
		"/api/risks/a?start_date=2023-07-01",
	} {
		rec := h.do(t, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)

		body := decodeBody(t, rec)
		assert.Equal(t, "FILTER_INVALID_DATE", body["code"])
	}
}

func TestEvaluateRiskBackendFailureIs500(t *testing.T) {
	h := newHarness(t)

	h.mock.ExpectQuery("rtn_prsmptv_bsns_dtl").WillReturnError(assert.AnError)

	rec := h.do(t, http.MethodGet, "/api/risks/a")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "DB_QUERY_FAILED", body["code"])
	// The failing rule is named in the error body.
	assert.Contains(t, body["error"], "rule a")
}

func TestRiskSummaryEndpoint(t *testing.T) {
	h := newHarness(t)

	rows := sqlmock.NewRows([]string{"tin_no", "tax_payer_name", "region_name", "flagged", "exposure"}).
		AddRow("1000000001", "Nakasero Wholesale", "Central", int64(1), int64(200000000)).
		AddRow("1000000002", "Gulu Agro Supplies", "Northern", int64(1), int64(200000000))
	h.mock.ExpectQuery("rtn_prsmptv_bsns_dtl").WillReturnRows(rows)
	h.mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(100)))

	rec := h.do(t, http.MethodGet, "/api/risks/a/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(100), body["totalTaxpayers"])
	assert.Equal(t, float64(2), body["flaggedCount"])
	assert.Equal(t, float64(400000000), body["totalExposure"])
	assert.Equal(t, float64(200000000), body["avgExposure"])
	assert.InDelta(t, 0.98, body["complianceRate"].(float64), 1e-9)
}

func TestRiskTaxpayers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, h.store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))

	rec := h.do(t, http.MethodGet, "/api/risks/a/taxpayers?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "a", body["riskId"])
	assert.Equal(t, float64(1), body["total"])
	taxpayers, ok := body["taxpayers"].([]any)
	require.True(t, ok)
	require.Len(t, taxpayers, 1)
	first := taxpayers[0].(map[string]any)
	assert.Equal(t, "1000000001", first["tin"])
	assert.Equal(t, float64(200000000), first["exposure"])
}

func TestRiskTaxpayersUnknownRisk(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/risks/zz/taxpayers")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskTaxpayersBadPaging(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/risks/a/taxpayers?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/risks/a/taxpayers?offset=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardKPIs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(100)))

	require.NoError(t, h.store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, h.store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))

	rec := h.do(t, http.MethodGet, "/api/dashboard/kpis")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(100), body["totalTaxpayers"])
	assert.Equal(t, float64(1), body["flaggedTaxpayers"])
	assert.Equal(t, float64(200000000), body["totalExposure"])
	assert.Equal(t, float64(1), body["risksActive"])
	assert.InDelta(t, 0.99, body["complianceRate"].(float64), 1e-9)
	assert.Contains(t, body, "pendingAudits")
	assert.Contains(t, body, "completedAudits")
	assert.Contains(t, body, "auditRecovery")
}

func TestDashboardRegional(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"region", "total"}).
		AddRow("Central", int64(520000)).
		AddRow("Eastern", int64(180000))
	h.mock.ExpectQuery("GROUP BY ST2.region_name").WillReturnRows(rows)

	require.NoError(t, h.store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, h.store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))

	rec := h.do(t, http.MethodGet, "/api/dashboard/regional")
	require.Equal(t, http.StatusOK, rec.Code)

	// The breakdown is a bare array.
	var regions []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regions))
	require.Len(t, regions, 2)
	assert.Equal(t, "Central", regions[0]["region"])
	assert.Equal(t, float64(520000), regions[0]["totalTaxpayers"])
	assert.Equal(t, float64(1), regions[0]["flaggedTaxpayers"])
	assert.Equal(t, float64(200000000), regions[0]["exposure"])
}

func TestTaxpayerLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	regRows := sqlmock.NewRows([]string{"tin_no", "tax_payer_name", "reg_status", "region_name"}).
		AddRow("1000000001", "Nakasero Wholesale", "REGD", "Central")
	h.mock.ExpectQuery("WHERE ST.tin_no").WithArgs("1000000001").WillReturnRows(regRows)

	require.NoError(t, h.store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, h.store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))

	rec := h.do(t, http.MethodGet, "/api/taxpayers/1000000001")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "1000000001", body["tin"])
	assert.Contains(t, body, "registration")
	risks, ok := body["risks"].([]any)
	require.True(t, ok)
	assert.Len(t, risks, 1)
}

func TestTaxpayerLookupNotFound(t *testing.T) {
	h := newHarness(t)

	h.mock.ExpectQuery("WHERE ST.tin_no").WithArgs("9999999999").
		WillReturnRows(sqlmock.NewRows([]string{"tin_no"}))

	rec := h.do(t, http.MethodGet, "/api/taxpayers/9999999999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncRiskEndpoint(t *testing.T) {
	h := newHarness(t)

	rows := sqlmock.NewRows([]string{"tin_no", "tax_payer_name", "region_name", "flagged", "exposure"}).
		AddRow("1000000001", "Nakasero Wholesale", "Central", int64(1), int64(200000000))
	h.mock.ExpectQuery("rtn_prsmptv_bsns_dtl").WillReturnRows(rows)

	rec := h.do(t, http.MethodPost, "/api/risks/a/sync")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["mirrored"])
	assert.Equal(t, 1, h.store.EdgeCount())
}

func TestHealthAllBackendsUp(t *testing.T) {
	h := newHarness(t)

	h.mock.ExpectPing()

	rec := h.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["oracle"])
	assert.Equal(t, "connected", body["neo4j"])
}

func TestHealthUnhealthyWhenGraphDown(t *testing.T) {
	h := newHarness(t)

	h.mock.ExpectPing()
	h.store.SetHealthy(false)

	rec := h.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "connected", body["oracle"])
	assert.Equal(t, "disconnected", body["neo4j"])
	assert.Contains(t, body["error"], "neo4j")
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/risks")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/risks", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec = httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	assert.Equal(t, "client-supplied", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflightAndMetrics(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/risks", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))

	// A completed request populates the counter before the scrape.
	h.do(t, http.MethodGet, "/api/risks")

	metrics := h.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "uraics_http_requests_total")
}

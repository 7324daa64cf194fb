package mirror

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// stubEvaluator serves canned results per risk id.
type stubEvaluator struct {
	mu      sync.Mutex
	results map[string]*risk.Result
	errs    map[string]error
	calls   []string
}

func (s *stubEvaluator) Evaluate(ctx context.Context, riskID string, filters risk.Filters) (*risk.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, riskID)
	s.mu.Unlock()

	if err, ok := s.errs[riskID]; ok {
		return nil, err
	}
	if result, ok := s.results[riskID]; ok {
		return result, nil
	}
	return &risk.Result{RiskID: riskID}, nil
}

func flaggedRow(tin, name, region string, exposure int64) map[string]any {
	return map[string]any{
		"tin_no":         tin,
		"tax_payer_name": name,
		"region_name":    region,
		"flagged":        int64(1),
		"exposure":       exposure,
	}
}

func TestSyncRuleMirrorsFlaggedRowsOnly(t *testing.T) {
	rows := []map[string]any{
		flaggedRow("1000000001", "Nakasero Wholesale", "Central", 200_000_000),
		flaggedRow("1000000002", "Gulu Agro Supplies", "Northern", 350_000_000),
		{"tin_no": "1000000003", "tax_payer_name": "Mbale Retail", "region_name": "Eastern",
			"flagged": int64(0), "exposure": int64(100_000_000)},
	}
	evaluator := &stubEvaluator{results: map[string]*risk.Result{
		"a": {RiskID: "a", Rows: rows, FlaggedCount: 2},
	}}
	store := graph.NewMemStore()

	stats, err := NewSyncer(evaluator, store).SyncRule(context.Background(), "a", risk.Filters{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Flagged)
	assert.Equal(t, int64(2), stats.Mirrored)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, types.Money(550_000_000), stats.Exposure)

	// Only the flagged taxpayers reach the mirror.
	assert.Equal(t, 2, store.TaxpayerCount())
	exposure, status, ok := store.Edge("1000000002", "a")
	require.True(t, ok)
	assert.Equal(t, types.Money(350_000_000), exposure)
	assert.Equal(t, "flagged", status)

	_, _, ok = store.Edge("1000000003", "a")
	assert.False(t, ok)
}

func TestSyncRuleIsIdempotent(t *testing.T) {
	evaluator := &stubEvaluator{results: map[string]*risk.Result{
		"a": {RiskID: "a", FlaggedCount: 1, Rows: []map[string]any{
			flaggedRow("1000000001", "Nakasero Wholesale", "Central", 200_000_000),
		}},
	}}
	store := graph.NewMemStore()
	syncer := NewSyncer(evaluator, store)

	for i := 0; i < 3; i++ {
		_, err := syncer.SyncRule(context.Background(), "a", risk.Filters{})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, store.TaxpayerCount())
	assert.Equal(t, 1, store.EdgeCount())
}

func TestSyncRuleSkipsBadRows(t *testing.T) {
	evaluator := &stubEvaluator{results: map[string]*risk.Result{
		"a": {RiskID: "a", FlaggedCount: 2, Rows: []map[string]any{
			{"tax_payer_name": "No TIN Ltd", "flagged": int64(1), "exposure": int64(5)},
			flaggedRow("1000000001", "Nakasero Wholesale", "Central", 200_000_000),
		}},
	}}
	store := graph.NewMemStore()

	stats, err := NewSyncer(evaluator, store).SyncRule(context.Background(), "a", risk.Filters{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Mirrored)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.NotEmpty(t, stats.LastError)
	assert.Equal(t, 1, store.TaxpayerCount())
}

func TestSyncRuleUnknownRisk(t *testing.T) {
	store := graph.NewMemStore()
	syncer := NewSyncer(risk.NewEvaluator(nil), store)

	_, err := syncer.SyncRule(context.Background(), "zz", risk.Filters{})
	require.Error(t, err)
	assert.Equal(t, types.RISK_UNKNOWN, types.ErrorCodeOf(err))
}

func TestSyncAllCoversCatalogue(t *testing.T) {
	evaluator := &stubEvaluator{results: map[string]*risk.Result{
		"a": {RiskID: "a", FlaggedCount: 1, Rows: []map[string]any{
			flaggedRow("1000000001", "Nakasero Wholesale", "Central", 200_000_000),
		}},
		"c": {RiskID: "c", FlaggedCount: 1, Rows: []map[string]any{
			flaggedRow("1000000002", "Gulu Agro Supplies", "Northern", 40_000_000),
		}},
	}}
	store := graph.NewMemStore()

	stats, err := NewSyncer(evaluator, store).SyncAll(context.Background(), risk.Filters{}, 4)
	require.NoError(t, err)

	require.Len(t, stats.Rules, 19)
	assert.Len(t, evaluator.calls, 19)
	assert.Equal(t, int64(2), stats.Mirrored)
	assert.Zero(t, stats.Failed)

	// Stable report order regardless of scheduling.
	assert.Equal(t, "a", stats.Rules[0].RiskID)
	assert.Equal(t, "s", stats.Rules[18].RiskID)
}

func TestSyncAllIsolatesRuleFailures(t *testing.T) {
	evaluator := &stubEvaluator{
		results: map[string]*risk.Result{
			"a": {RiskID: "a", FlaggedCount: 1, Rows: []map[string]any{
				flaggedRow("1000000001", "Nakasero Wholesale", "Central", 200_000_000),
			}},
		},
		errs: map[string]error{
			"d": types.NewError(types.DB_QUERY_FAILED, "boom"),
		},
	}
	store := graph.NewMemStore()

	stats, err := NewSyncer(evaluator, store).SyncAll(context.Background(), risk.Filters{}, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int64(1), stats.Mirrored)

	var failed RuleStats
	for _, rs := range stats.Rules {
		if rs.RiskID == "d" {
			failed = rs
		}
	}
	assert.Contains(t, failed.LastError, "boom")
}

func TestSyncAllSerialFallback(t *testing.T) {
	evaluator := &stubEvaluator{}
	stats, err := NewSyncer(evaluator, graph.NewMemStore()).SyncAll(context.Background(), risk.Filters{}, 0)
	require.NoError(t, err)
	assert.Len(t, stats.Rules, 19)
}

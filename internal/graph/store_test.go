package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

func seedStore(t *testing.T) *MemStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.UpsertTaxpayer(ctx, "1000000001", "Nakasero Wholesale", "Central", "active"))
	require.NoError(t, store.UpsertTaxpayer(ctx, "1000000002", "Gulu Agro Supplies", "Northern", "active"))
	require.NoError(t, store.UpsertTaxpayer(ctx, "1000000003", "Mbale Retail", "Eastern", "active"))

	require.NoError(t, store.LinkRisk(ctx, "1000000001", "a", 200_000_000, "flagged"))
	require.NoError(t, store.LinkRisk(ctx, "1000000002", "a", 350_000_000, "flagged"))
	require.NoError(t, store.LinkRisk(ctx, "1000000001", "c", 40_000_000, "flagged"))
	return store
}

func TestUpsertTaxpayerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.UpsertTaxpayer(ctx, "1000000001", "Old Name", "Central", "active"))
	require.NoError(t, store.UpsertTaxpayer(ctx, "1000000001", "New Name", "Central", "dormant"))

	assert.Equal(t, 1, store.TaxpayerCount())
	profile, err := store.TaxpayerProfile(ctx, "1000000001")
	require.NoError(t, err)
	assert.Equal(t, "New Name", profile.Name)
	assert.Equal(t, "dormant", profile.Status)
}

func TestLinkRiskMergesSingleEdge(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)

	// Re-linking the same pair overwrites, never duplicates.
	require.NoError(t, store.LinkRisk(ctx, "1000000001", "a", 250_000_000, "flagged"))
	assert.Equal(t, 3, store.EdgeCount())

	exposure, status, ok := store.Edge("1000000001", "a")
	require.True(t, ok)
	assert.Equal(t, types.Money(250_000_000), exposure)
	assert.Equal(t, "flagged", status)
}

func TestLinkRiskRequiresTaxpayerNode(t *testing.T) {
	store := NewMemStore()

	err := store.LinkRisk(context.Background(), "9999999999", "a", 1, "flagged")
	require.Error(t, err)
	assert.Equal(t, types.GRAPH_NODE_NOT_FOUND, types.ErrorCodeOf(err))
}

func TestTaxpayersForRiskOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)

	links, total, err := store.TaxpayersForRisk(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, links, 2)
	// Descending exposure.
	assert.Equal(t, "1000000002", links[0].TIN)
	assert.Equal(t, "1000000001", links[1].TIN)

	links, total, err = store.TaxpayersForRisk(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, links, 1)
	assert.Equal(t, "1000000001", links[0].TIN)

	links, total, err = store.TaxpayersForRisk(ctx, "a", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Empty(t, links)
}

func TestDashboardKPIs(t *testing.T) {
	store := seedStore(t)

	kpis, err := store.DashboardKPIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), kpis.FlaggedTaxpayers)
	assert.Equal(t, types.Money(590_000_000), kpis.TotalExposure)
	assert.Equal(t, int64(2), kpis.RisksActive)
}

func TestRegionalExposure(t *testing.T) {
	store := seedStore(t)

	regions, err := store.RegionalExposure(context.Background())
	require.NoError(t, err)
	require.Len(t, regions, 2)
	// Descending exposure: Northern 350M, Central 240M. Eastern has no
	// flags and does not appear on the graph side.
	assert.Equal(t, "Northern", regions[0].Region)
	assert.Equal(t, types.Money(350_000_000), regions[0].Exposure)
	assert.Equal(t, "Central", regions[1].Region)
	assert.Equal(t, types.Money(240_000_000), regions[1].Exposure)
}

func TestTaxpayerProfile(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)

	profile, err := store.TaxpayerProfile(ctx, "1000000001")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Len(t, profile.Risks, 2)
	assert.Equal(t, "a", profile.Risks[0].RiskID)

	profile, err = store.TaxpayerProfile(ctx, "9999999999")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

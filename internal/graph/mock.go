package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// Call records one method invocation on the in-memory store.
type Call struct {
	Method    string
	Args      []any
	Timestamp time.Time
}

// MemStore is an in-memory Store for tests. It honors the same MERGE
// semantics as the Neo4j implementation (at most one node per TIN, at most
// one HAS_RISK edge per taxpayer/risk pair) and tracks calls for
// verification.
type MemStore struct {
	mu sync.RWMutex

	taxpayers map[string]memTaxpayer
	edges     map[string]map[string]memEdge // tin → riskID → edge
	audit     AuditStats
	calls     []Call

	// Configurable failures
	UpsertErr error
	LinkErr   error
	QueryErr  error
	healthy   bool
}

type memTaxpayer struct {
	Name        string
	Region      string
	Status      string
	LastUpdated time.Time
	CreatedAt   time.Time
}

type memEdge struct {
	Exposure  types.Money
	Status    string
	FlaggedAt time.Time
}

// NewMemStore creates an empty in-memory store reporting healthy.
func NewMemStore() *MemStore {
	return &MemStore{
		taxpayers: make(map[string]memTaxpayer),
		edges:     make(map[string]map[string]memEdge),
		healthy:   true,
	}
}

// SetHealthy toggles the health check result.
func (m *MemStore) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// SetAuditStats configures the audit task aggregates.
func (m *MemStore) SetAuditStats(stats AuditStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = stats
}

// Calls returns the recorded method invocations.
func (m *MemStore) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// TaxpayerCount returns the number of distinct mirrored taxpayer nodes.
func (m *MemStore) TaxpayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.taxpayers)
}

// EdgeCount returns the number of HAS_RISK edges.
func (m *MemStore) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, risks := range m.edges {
		n += len(risks)
	}
	return n
}

// Edge returns the stored edge for (tin, riskID) and whether it exists.
func (m *MemStore) Edge(tin, riskID string) (types.Money, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edge, ok := m.edges[tin][riskID]
	return edge.Exposure, edge.Status, ok
}

func (m *MemStore) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args, Timestamp: time.Now()})
}

func (m *MemStore) UpsertTaxpayer(ctx context.Context, tin, name, region, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpsertTaxpayer", tin, name, region, status)

	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	existing, ok := m.taxpayers[tin]
	created := existing.CreatedAt
	if !ok {
		created = time.Now()
	}
	m.taxpayers[tin] = memTaxpayer{
		Name:        name,
		Region:      region,
		Status:      status,
		LastUpdated: time.Now(),
		CreatedAt:   created,
	}
	return nil
}

func (m *MemStore) LinkRisk(ctx context.Context, tin, riskID string, exposure types.Money, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LinkRisk", tin, riskID, exposure, status)

	if m.LinkErr != nil {
		return m.LinkErr
	}

	if _, ok := m.taxpayers[tin]; !ok {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, "taxpayer "+tin+" not mirrored")
	}

	if m.edges[tin] == nil {
		m.edges[tin] = make(map[string]memEdge)
	}
	m.edges[tin][riskID] = memEdge{
		Exposure:  exposure,
		Status:    status,
		FlaggedAt: time.Now(),
	}
	return nil
}

func (m *MemStore) TaxpayersForRisk(ctx context.Context, riskID string, limit, offset int) ([]TaxpayerLink, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("TaxpayersForRisk", riskID, limit, offset)

	if m.QueryErr != nil {
		return nil, 0, m.QueryErr
	}

	links := m.linksForRisk(riskID)
	total := int64(len(links))

	if offset >= len(links) {
		return []TaxpayerLink{}, total, nil
	}
	links = links[offset:]
	if limit > 0 && limit < len(links) {
		links = links[:limit]
	}
	return links, total, nil
}

func (m *MemStore) RiskRelationships(ctx context.Context, riskID string, limit int) ([]map[string]any, error) {
	links, _, err := m.TaxpayersForRisk(ctx, riskID, limit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{
			"tin":      l.TIN,
			"name":     l.Name,
			"region":   l.Region,
			"exposure": l.Exposure.Int64(),
			"status":   l.Status,
		})
	}
	return out, nil
}

func (m *MemStore) DashboardKPIs(ctx context.Context) (KPIs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("DashboardKPIs")

	if m.QueryErr != nil {
		return KPIs{}, m.QueryErr
	}

	var kpis KPIs
	risks := map[string]struct{}{}
	for _, edges := range m.edges {
		if len(edges) == 0 {
			continue
		}
		kpis.FlaggedTaxpayers++
		for riskID, edge := range edges {
			kpis.TotalExposure = kpis.TotalExposure.Add(edge.Exposure)
			risks[riskID] = struct{}{}
		}
	}
	kpis.RisksActive = int64(len(risks))
	return kpis, nil
}

func (m *MemStore) RegionalExposure(ctx context.Context) ([]RegionExposure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("RegionalExposure")

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	byRegion := map[string]*RegionExposure{}
	for tin, edges := range m.edges {
		if len(edges) == 0 {
			continue
		}
		region := m.taxpayers[tin].Region
		agg, ok := byRegion[region]
		if !ok {
			agg = &RegionExposure{Region: region}
			byRegion[region] = agg
		}
		agg.Flagged++
		for _, edge := range edges {
			agg.Exposure = agg.Exposure.Add(edge.Exposure)
		}
	}

	out := make([]RegionExposure, 0, len(byRegion))
	for _, agg := range byRegion {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Exposure > out[j].Exposure
	})
	return out, nil
}

func (m *MemStore) TaxpayerProfile(ctx context.Context, tin string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("TaxpayerProfile", tin)

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	tp, ok := m.taxpayers[tin]
	if !ok {
		return nil, nil
	}

	profile := &Profile{
		TIN:    tin,
		Name:   tp.Name,
		Region: tp.Region,
		Status: tp.Status,
	}
	for riskID, edge := range m.edges[tin] {
		profile.Risks = append(profile.Risks, RiskFlag{
			RiskID:   riskID,
			Exposure: edge.Exposure,
			Status:   edge.Status,
		})
	}
	sort.Slice(profile.Risks, func(i, j int) bool {
		return profile.Risks[i].Exposure > profile.Risks[j].Exposure
	})
	return profile, nil
}

func (m *MemStore) AuditTaskStats(ctx context.Context) (AuditStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("AuditTaskStats")

	if m.QueryErr != nil {
		return AuditStats{}, m.QueryErr
	}
	return m.audit, nil
}

func (m *MemStore) Health(ctx context.Context) types.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("Health")

	if !m.healthy {
		return types.Unhealthy("mem store marked unhealthy")
	}
	return types.Healthy("in-memory store")
}

func (m *MemStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Close")
	return nil
}

func (m *MemStore) linksForRisk(riskID string) []TaxpayerLink {
	var links []TaxpayerLink
	for tin, edges := range m.edges {
		edge, ok := edges[riskID]
		if !ok {
			continue
		}
		tp := m.taxpayers[tin]
		links = append(links, TaxpayerLink{
			TIN:      tin,
			Name:     tp.Name,
			Region:   tp.Region,
			Exposure: edge.Exposure,
			Status:   edge.Status,
		})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Exposure != links[j].Exposure {
			return links[i].Exposure > links[j].Exposure
		}
		return links[i].TIN < links[j].TIN
	})
	return links
}

package graph

import (
	"context"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// Store is the domain-facing gateway to the relationship mirror. The mirror
// is a derived cache of taxpayer↔risk facts, always rebuildable from the
// relational source; it exists so dashboard aggregates traverse precomputed
// edges instead of re-running the rule catalogue on every load.
type Store interface {
	// UpsertTaxpayer creates the taxpayer node if absent, otherwise
	// overwrites the mutable fields and the last-updated timestamp.
	// Idempotent: repeated identical calls converge to one node state.
	UpsertTaxpayer(ctx context.Context, tin, name, region, status string) error

	// LinkRisk merges the single HAS_RISK edge for (tin, riskID),
	// overwriting exposure, status and the flagged timestamp on repeat
	// calls. The taxpayer node must already exist; the risk node is
	// created on demand.
	LinkRisk(ctx context.Context, tin, riskID string, exposure types.Money, status string) error

	// TaxpayersForRisk returns taxpayers linked to a risk ordered by
	// descending exposure, plus the total linked count for pagination.
	TaxpayersForRisk(ctx context.Context, riskID string, limit, offset int) ([]TaxpayerLink, int64, error)

	// RiskRelationships returns raw edge projections for a risk page.
	RiskRelationships(ctx context.Context, riskID string, limit int) ([]map[string]any, error)

	// DashboardKPIs aggregates the current HAS_RISK edges.
	DashboardKPIs(ctx context.Context) (KPIs, error)

	// RegionalExposure returns flagged counts and exposure sums grouped
	// by taxpayer region, ordered by descending exposure.
	RegionalExposure(ctx context.Context) ([]RegionExposure, error)

	// TaxpayerProfile returns the mirrored profile and risk flags for a
	// TIN, or nil when the TIN is not mirrored.
	TaxpayerProfile(ctx context.Context, tin string) (*Profile, error)

	// AuditTaskStats aggregates audit task nodes for the KPI strip.
	AuditTaskStats(ctx context.Context) (AuditStats, error)

	Health(ctx context.Context) types.HealthStatus
	Close(ctx context.Context) error
}

// TaxpayerLink is a taxpayer projected through one HAS_RISK edge.
type TaxpayerLink struct {
	TIN      string      `json:"tin"`
	Name     string      `json:"name"`
	Region   string      `json:"region"`
	Exposure types.Money `json:"exposure"`
	Status   string      `json:"status"`
}

// KPIs holds graph-side dashboard aggregates.
type KPIs struct {
	FlaggedTaxpayers int64
	TotalExposure    types.Money
	RisksActive      int64
}

// RegionExposure is one region's slice of the mirror.
type RegionExposure struct {
	Region   string
	Flagged  int64
	Exposure types.Money
}

// RiskFlag is one HAS_RISK edge seen from the taxpayer side.
type RiskFlag struct {
	RiskID    string      `json:"riskId"`
	Exposure  types.Money `json:"exposure"`
	Status    string      `json:"status"`
	FlaggedAt string      `json:"flaggedAt,omitempty"`
}

// Profile is a mirrored taxpayer with its current risk flags.
type Profile struct {
	TIN    string     `json:"tin"`
	Name   string     `json:"name"`
	Region string     `json:"region"`
	Status string     `json:"status"`
	Risks  []RiskFlag `json:"risks"`
}

// AuditStats aggregates audit task nodes maintained by the case-management
// workflow.
type AuditStats struct {
	Pending   int64
	Completed int64
	Recovery  types.Money
}

const (
	cypherUpsertTaxpayer = `
MERGE (t:Taxpayer {tin: $tin})
ON CREATE SET t.createdAt = datetime()
SET t.name = $name, t.region = $region, t.status = $status,
    t.lastUpdated = datetime()
RETURN t.tin AS tin`

	cypherLinkRisk = `
MATCH (t:Taxpayer {tin: $tin})
MERGE (r:Risk {riskId: $riskId})
MERGE (t)-[h:HAS_RISK]->(r)
SET h.exposure = $exposure, h.status = $status, h.flaggedAt = datetime()
RETURN t.tin AS tin`

	cypherTaxpayersForRisk = `
MATCH (t:Taxpayer)-[h:HAS_RISK]->(:Risk {riskId: $riskId})
RETURN t.tin AS tin, t.name AS name, t.region AS region,
       h.exposure AS exposure, h.status AS status
ORDER BY h.exposure DESC
SKIP $offset LIMIT $limit`

	cypherRiskLinkCount = `
MATCH (t:Taxpayer)-[:HAS_RISK]->(:Risk {riskId: $riskId})
RETURN count(t) AS total`

	cypherDashboardKPIs = `
MATCH (t:Taxpayer)-[h:HAS_RISK]->(r:Risk)
RETURN count(DISTINCT t) AS flagged,
       coalesce(sum(h.exposure), 0) AS exposure,
       count(DISTINCT r.riskId) AS risks`

	cypherRegionalExposure = `
MATCH (t:Taxpayer)-[h:HAS_RISK]->(:Risk)
RETURN t.region AS region, count(DISTINCT t) AS flagged,
       coalesce(sum(h.exposure), 0) AS exposure
ORDER BY exposure DESC`

	cypherTaxpayerNode = `
MATCH (t:Taxpayer {tin: $tin})
RETURN t.tin AS tin, t.name AS name, t.region AS region, t.status AS status`

	cypherTaxpayerRisks = `
MATCH (:Taxpayer {tin: $tin})-[h:HAS_RISK]->(r:Risk)
RETURN r.riskId AS riskId, h.exposure AS exposure, h.status AS status,
       toString(h.flaggedAt) AS flaggedAt
ORDER BY h.exposure DESC`

	cypherAuditStats = `
MATCH (a:AuditTask)
RETURN sum(CASE WHEN a.status IN ['Pending', 'In Progress'] THEN 1 ELSE 0 END) AS pending,
       sum(CASE WHEN a.status = 'Completed' THEN 1 ELSE 0 END) AS completed,
       coalesce(sum(CASE WHEN a.status = 'Completed' THEN coalesce(a.recoveredAmount, 0) ELSE 0 END), 0) AS recovery`
)

// Neo4jStore implements Store over a connected Client.
type Neo4jStore struct {
	client *Client
}

// NewNeo4jStore wraps a connected client.
func NewNeo4jStore(client *Client) *Neo4jStore {
	return &Neo4jStore{client: client}
}

func (s *Neo4jStore) UpsertTaxpayer(ctx context.Context, tin, name, region, status string) error {
	_, err := s.client.Write(ctx, cypherUpsertTaxpayer, map[string]any{
		"tin":    tin,
		"name":   name,
		"region": region,
		"status": status,
	})
	return err
}

func (s *Neo4jStore) LinkRisk(ctx context.Context, tin, riskID string, exposure types.Money, status string) error {
	rows, err := s.client.Write(ctx, cypherLinkRisk, map[string]any{
		"tin":      tin,
		"riskId":   riskID,
		"exposure": exposure.Int64(),
		"status":   status,
	})
	if err != nil {
		return err
	}
	// MATCH on the taxpayer side means a missing node produces no rows
	// rather than creating a dangling edge.
	if len(rows) == 0 {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, "taxpayer "+tin+" not mirrored")
	}
	return nil
}

func (s *Neo4jStore) TaxpayersForRisk(ctx context.Context, riskID string, limit, offset int) ([]TaxpayerLink, int64, error) {
	rows, err := s.client.Read(ctx, cypherTaxpayersForRisk, map[string]any{
		"riskId": riskID,
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, 0, err
	}

	links := make([]TaxpayerLink, 0, len(rows))
	for _, row := range rows {
		link, err := taxpayerLinkFromRow(row)
		if err != nil {
			return nil, 0, err
		}
		links = append(links, link)
	}

	countRows, err := s.client.Read(ctx, cypherRiskLinkCount, map[string]any{"riskId": riskID})
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if len(countRows) > 0 {
		t, err := types.MoneyFromAny(countRows[0]["total"])
		if err != nil {
			return nil, 0, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable link count", err)
		}
		total = t.Int64()
	}

	return links, total, nil
}

func (s *Neo4jStore) RiskRelationships(ctx context.Context, riskID string, limit int) ([]map[string]any, error) {
	return s.client.Read(ctx, cypherTaxpayersForRisk, map[string]any{
		"riskId": riskID,
		"limit":  limit,
		"offset": 0,
	})
}

func (s *Neo4jStore) DashboardKPIs(ctx context.Context) (KPIs, error) {
	rows, err := s.client.Read(ctx, cypherDashboardKPIs, map[string]any{})
	if err != nil {
		return KPIs{}, err
	}
	if len(rows) == 0 {
		return KPIs{}, nil
	}

	row := rows[0]
	flagged, err := types.MoneyFromAny(row["flagged"])
	if err != nil {
		return KPIs{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable flagged count", err)
	}
	exposure, err := types.MoneyFromAny(row["exposure"])
	if err != nil {
		return KPIs{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable exposure sum", err)
	}
	risks, err := types.MoneyFromAny(row["risks"])
	if err != nil {
		return KPIs{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable risk count", err)
	}

	return KPIs{
		FlaggedTaxpayers: flagged.Int64(),
		TotalExposure:    exposure,
		RisksActive:      risks.Int64(),
	}, nil
}

func (s *Neo4jStore) RegionalExposure(ctx context.Context) ([]RegionExposure, error) {
	rows, err := s.client.Read(ctx, cypherRegionalExposure, map[string]any{})
	if err != nil {
		return nil, err
	}

	out := make([]RegionExposure, 0, len(rows))
	for _, row := range rows {
		region, _ := row["region"].(string)
		flagged, err := types.MoneyFromAny(row["flagged"])
		if err != nil {
			return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable flagged count", err)
		}
		exposure, err := types.MoneyFromAny(row["exposure"])
		if err != nil {
			return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable exposure sum", err)
		}
		out = append(out, RegionExposure{
			Region:   region,
			Flagged:  flagged.Int64(),
			Exposure: exposure,
		})
	}
	return out, nil
}

func (s *Neo4jStore) TaxpayerProfile(ctx context.Context, tin string) (*Profile, error) {
	rows, err := s.client.Read(ctx, cypherTaxpayerNode, map[string]any{"tin": tin})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	profile := &Profile{
		TIN:    stringOr(row["tin"]),
		Name:   stringOr(row["name"]),
		Region: stringOr(row["region"]),
		Status: stringOr(row["status"]),
	}

	riskRows, err := s.client.Read(ctx, cypherTaxpayerRisks, map[string]any{"tin": tin})
	if err != nil {
		return nil, err
	}
	for _, rr := range riskRows {
		exposure, err := types.MoneyFromAny(rr["exposure"])
		if err != nil {
			return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable exposure", err)
		}
		profile.Risks = append(profile.Risks, RiskFlag{
			RiskID:    stringOr(rr["riskId"]),
			Exposure:  exposure,
			Status:    stringOr(rr["status"]),
			FlaggedAt: stringOr(rr["flaggedAt"]),
		})
	}

	return profile, nil
}

func (s *Neo4jStore) AuditTaskStats(ctx context.Context) (AuditStats, error) {
	rows, err := s.client.Read(ctx, cypherAuditStats, map[string]any{})
	if err != nil {
		return AuditStats{}, err
	}
	if len(rows) == 0 {
		return AuditStats{}, nil
	}

	row := rows[0]
	pending, err := types.MoneyFromAny(row["pending"])
	if err != nil {
		return AuditStats{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable pending count", err)
	}
	completed, err := types.MoneyFromAny(row["completed"])
	if err != nil {
		return AuditStats{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable completed count", err)
	}
	recovery, err := types.MoneyFromAny(row["recovery"])
	if err != nil {
		return AuditStats{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable recovery sum", err)
	}

	return AuditStats{
		Pending:   pending.Int64(),
		Completed: completed.Int64(),
		Recovery:  recovery,
	}, nil
}

func (s *Neo4jStore) Health(ctx context.Context) types.HealthStatus {
	return s.client.Health(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func taxpayerLinkFromRow(row map[string]any) (TaxpayerLink, error) {
	exposure, err := types.MoneyFromAny(row["exposure"])
	if err != nil {
		return TaxpayerLink{}, types.WrapError(types.GRAPH_QUERY_FAILED, "unreadable exposure", err)
	}
	return TaxpayerLink{
		TIN:      stringOr(row["tin"]),
		Name:     stringOr(row["name"]),
		Region:   stringOr(row["region"]),
		Exposure: exposure,
		Status:   stringOr(row["status"]),
	}, nil
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

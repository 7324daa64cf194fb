// Package aggregate merges relational census figures with graph-side risk
// aggregates into the composites the dashboard renders.
package aggregate

import (
	"context"
	"log/slog"
	"sort"

	"github.com/amasuba/uraics-revenue-assurance/internal/database"
	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// Census provides population figures from the relational replica.
// *database.DB satisfies it.
type Census interface {
	CountRegisteredTaxpayers(ctx context.Context) (int64, error)
	RegionalTaxpayerCounts(ctx context.Context) ([]database.RegionCount, error)
}

// DashboardSummary is the headline card set.
type DashboardSummary struct {
	TotalTaxpayers   int64       `json:"totalTaxpayers"`
	FlaggedTaxpayers int64       `json:"flaggedTaxpayers"`
	ComplianceRate   float64     `json:"complianceRate"`
	TotalExposure    types.Money `json:"totalExposure"`
	RisksActive      int64       `json:"risksActive"`
	PendingAudits    int64       `json:"pendingAudits"`
	CompletedAudits  int64       `json:"completedAudits"`
	AuditRecovery    types.Money `json:"auditRecovery"`
}

// RegionalRow is one region of the regional breakdown. Every registered
// region appears even with zero flags; exposure figures come from the
// graph mirror.
type RegionalRow struct {
	Region           string      `json:"region"`
	TotalTaxpayers   int64       `json:"totalTaxpayers"`
	FlaggedTaxpayers int64       `json:"flaggedTaxpayers"`
	Exposure         types.Money `json:"exposure"`
}

// Service joins the two backends. It holds no state of its own.
type Service struct {
	census Census
	store  graph.Store
	logger *slog.Logger
}

// New creates an aggregation service over the given backends.
func New(census Census, store graph.Store) *Service {
	return &Service{
		census: census,
		store:  store,
		logger: slog.Default().With("component", "aggregate"),
	}
}

// DashboardSummary composes the headline figures. The relational census is
// the denominator for the compliance rate; the graph mirror supplies the
// numerators.
func (s *Service) DashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	registered, err := s.census.CountRegisteredTaxpayers(ctx)
	if err != nil {
		return nil, err
	}

	kpis, err := s.store.DashboardKPIs(ctx)
	if err != nil {
		return nil, err
	}

	audits, err := s.store.AuditTaskStats(ctx)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		TotalTaxpayers:   registered,
		FlaggedTaxpayers: kpis.FlaggedTaxpayers,
		TotalExposure:    kpis.TotalExposure,
		RisksActive:      kpis.RisksActive,
		PendingAudits:    audits.Pending,
		CompletedAudits:  audits.Completed,
		AuditRecovery:    audits.Recovery,
	}
	if registered > 0 {
		summary.ComplianceRate = 1 - float64(kpis.FlaggedTaxpayers)/float64(registered)
	}
	return summary, nil
}

// RegionalSummary merges the regional census with graph exposure. The
// census drives the row set: a region with registrations but no flags
// still appears, with zero flagged and zero exposure. Graph regions
// missing from the census are appended so mirrored data is never silently
// dropped. Ordered by descending exposure, then region name.
func (s *Service) RegionalSummary(ctx context.Context) ([]RegionalRow, error) {
	counts, err := s.census.RegionalTaxpayerCounts(ctx)
	if err != nil {
		return nil, err
	}

	exposures, err := s.store.RegionalExposure(ctx)
	if err != nil {
		return nil, err
	}

	byRegion := make(map[string]*RegionalRow, len(counts))
	rows := make([]*RegionalRow, 0, len(counts))
	for _, c := range counts {
		row := &RegionalRow{Region: c.Region, TotalTaxpayers: c.Total}
		byRegion[c.Region] = row
		rows = append(rows, row)
	}
	for _, e := range exposures {
		row, ok := byRegion[e.Region]
		if !ok {
			s.logger.Warn("graph region absent from census", "region", e.Region)
			row = &RegionalRow{Region: e.Region}
			byRegion[e.Region] = row
			rows = append(rows, row)
		}
		row.FlaggedTaxpayers = e.Flagged
		row.Exposure = e.Exposure
	}

	out := make([]RegionalRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exposure != out[j].Exposure {
			return out[i].Exposure > out[j].Exposure
		}
		return out[i].Region < out[j].Region
	})
	return out, nil
}

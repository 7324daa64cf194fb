// Package mirror projects relational rule evaluations into the graph
// relationship store, keeping taxpayer nodes and HAS_RISK edges current.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

const flaggedStatus = "flagged"

// Evaluator runs one catalogue rule. *risk.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, riskID string, filters risk.Filters) (*risk.Result, error)
}

// RuleStats reports what one rule sync did.
type RuleStats struct {
	RiskID    string        `json:"risk_id"`
	Flagged   int64         `json:"flagged"`
	Mirrored  int64         `json:"mirrored"`
	Skipped   int64         `json:"skipped"`
	Exposure  types.Money   `json:"exposure"`
	Duration  time.Duration `json:"duration"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats reports a full catalogue sync.
type Stats struct {
	Rules    []RuleStats   `json:"rules"`
	Mirrored int64         `json:"mirrored"`
	Skipped  int64         `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Syncer evaluates catalogue rules and writes the flagged taxpayers into
// the graph mirror.
type Syncer struct {
	evaluator Evaluator
	store     graph.Store
	logger    *slog.Logger
}

// NewSyncer creates a syncer over the given evaluator and store.
func NewSyncer(evaluator Evaluator, store graph.Store) *Syncer {
	return &Syncer{
		evaluator: evaluator,
		store:     store,
		logger:    slog.Default().With("component", "mirror"),
	}
}

// SyncRule evaluates one rule and mirrors every flagged row: the taxpayer
// node is upserted, then the HAS_RISK edge merged with the row's exposure.
// Row failures are counted and reported, not retried; the next scheduled
// sync converges them.
func (s *Syncer) SyncRule(ctx context.Context, riskID string, filters risk.Filters) (*RuleStats, error) {
	start := time.Now()

	result, err := s.evaluator.Evaluate(ctx, riskID, filters)
	if err != nil {
		return nil, err
	}

	stats := &RuleStats{RiskID: riskID, Flagged: result.FlaggedCount}
	for _, row := range result.Rows {
		if !types.Truthy(row["flagged"]) {
			continue
		}
		if err := s.mirrorRow(ctx, riskID, row); err != nil {
			stats.Skipped++
			stats.LastError = err.Error()
			s.logger.Warn("row mirror failed",
				"risk_id", riskID,
				"tin", row["tin_no"],
				"error", err)
			continue
		}
		exposure, _ := types.MoneyFromAny(row["exposure"])
		stats.Mirrored++
		stats.Exposure = stats.Exposure.Add(exposure)
	}
	stats.Duration = time.Since(start)

	s.logger.Info("rule synced",
		"risk_id", riskID,
		"mirrored", stats.Mirrored,
		"skipped", stats.Skipped,
		"duration", stats.Duration)

	return stats, nil
}

func (s *Syncer) mirrorRow(ctx context.Context, riskID string, row map[string]any) error {
	tin, _ := row["tin_no"].(string)
	if tin == "" {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, "flagged row has no TIN")
	}
	name, _ := row["tax_payer_name"].(string)
	region, _ := row["region_name"].(string)

	exposure, err := types.MoneyFromAny(row["exposure"])
	if err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("unreadable exposure for %s", tin), err)
	}

	if err := s.store.UpsertTaxpayer(ctx, tin, name, region, "active"); err != nil {
		return err
	}
	return s.store.LinkRisk(ctx, tin, riskID, exposure, flaggedStatus)
}

// SyncAll mirrors the whole catalogue, running up to parallelism rules at
// once. Rules fail independently: one failed rule is recorded in Stats and
// the rest still sync. The returned error is non-nil only when the context
// is cancelled.
func (s *Syncer) SyncAll(ctx context.Context, filters risk.Filters, parallelism int) (*Stats, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	start := time.Now()

	var mu sync.Mutex
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, id := range risk.IDs() {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ruleStats, err := s.SyncRule(gctx, id, filters)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				stats.Rules = append(stats.Rules, RuleStats{
					RiskID:    id,
					LastError: err.Error(),
				})
				s.logger.Error("rule sync failed", "risk_id", id, "error", err)
				return nil
			}
			stats.Rules = append(stats.Rules, *ruleStats)
			stats.Mirrored += ruleStats.Mirrored
			stats.Skipped += ruleStats.Skipped
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "catalogue sync cancelled", err)
	}
	sort.Slice(stats.Rules, func(i, j int) bool {
		return stats.Rules[i].RiskID < stats.Rules[j].RiskID
	})
	stats.Duration = time.Since(start)

	s.logger.Info("catalogue synced",
		"rules", len(stats.Rules),
		"mirrored", stats.Mirrored,
		"failed", stats.Failed,
		"duration", stats.Duration)

	return stats, nil
}

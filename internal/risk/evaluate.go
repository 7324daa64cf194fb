package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// dateLayout is the bound-parameter date format. It matches the TO_DATE
// masks inside the catalogue templates, so a value that parses here is
// guaranteed to parse in the engine.
const dateLayout = "02/01/2006"

// Default reporting window: the 2023/24 first half plus January.
const (
	defaultStartDate = "01/07/2023"
	defaultEndDate   = "31/01/2024"
	defaultRowLimit  = 500
)

// Executor runs one parameterized query template. *database.DB satisfies
// it; tests substitute a stub.
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Filters narrows a rule evaluation. Zero values mean "use the default
// window, all regions, default row cap".
type Filters struct {
	// StartDate and EndDate bound the reporting window, DD/MM/YYYY.
	StartDate string
	EndDate   string

	// Region restricts results to one regional office. Empty matches all.
	Region string

	// Limit caps the number of returned rows. Zero applies the default.
	Limit int
}

// Validate checks the window dates and ordering. Filters must be rejected
// here, before any SQL runs, so a bad date surfaces as a client error and
// never as an engine parse failure.
func (f Filters) Validate() error {
	start, err := parseWindowDate("start_date", f.startOrDefault())
	if err != nil {
		return err
	}
	end, err := parseWindowDate("end_date", f.endOrDefault())
	if err != nil {
		return err
	}
	if end.Before(start) {
		return types.NewError(types.FILTER_INVALID,
			fmt.Sprintf("end_date %s precedes start_date %s", f.endOrDefault(), f.startOrDefault()))
	}
	if f.Limit < 0 {
		return types.NewError(types.FILTER_INVALID, "limit must not be negative")
	}
	return nil
}

func (f Filters) startOrDefault() string {
	if f.StartDate == "" {
		return defaultStartDate
	}
	return f.StartDate
}

func (f Filters) endOrDefault() string {
	if f.EndDate == "" {
		return defaultEndDate
	}
	return f.EndDate
}

func (f Filters) limitOrDefault() int {
	if f.Limit <= 0 {
		return defaultRowLimit
	}
	return f.Limit
}

func parseWindowDate(name, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, types.NewError(types.FILTER_INVALID_DATE,
			fmt.Sprintf("%s %q is not a valid DD/MM/YYYY date", name, value))
	}
	return t, nil
}

// bindParams maps the filters onto the bind parameters a rule declares.
func (f Filters) bindParams(rule Rule) map[string]any {
	params := map[string]any{}
	if rule.bindsParam(ParamStartDate) {
		params[ParamStartDate] = f.startOrDefault()
	}
	if rule.bindsParam(ParamEndDate) {
		params[ParamEndDate] = f.endOrDefault()
	}
	if rule.bindsParam(ParamRegion) {
		params[ParamRegion] = f.Region
	}
	if rule.bindsParam(ParamRowLimit) {
		params[ParamRowLimit] = f.limitOrDefault()
	}
	return params
}

// Result is one rule evaluation: the raw rows plus the aggregates the
// dashboard cards are built from.
type Result struct {
	RiskID        string           `json:"riskId"`
	Rows          []map[string]any `json:"rows"`
	FlaggedCount  int64            `json:"flaggedCount"`
	TotalExposure types.Money      `json:"totalExposure"`
}

// Summary holds derived statistics for one evaluation against a known
// taxpayer population.
type Summary struct {
	TotalTaxpayers int64       `json:"totalTaxpayers"`
	FlaggedCount   int64       `json:"flaggedCount"`
	TotalExposure  types.Money `json:"totalExposure"`
	AvgExposure    types.Money `json:"avgExposure"`
	ComplianceRate float64     `json:"complianceRate"`
}

// Summarize derives per-evaluation statistics. population is the
// registered-taxpayer count; zero yields a compliance rate of zero rather
// than a division failure.
func (r Result) Summarize(population int64) Summary {
	s := Summary{
		TotalTaxpayers: population,
		FlaggedCount:   r.FlaggedCount,
		TotalExposure:  r.TotalExposure,
	}
	if r.FlaggedCount > 0 {
		s.AvgExposure = types.Money(r.TotalExposure.Int64() / r.FlaggedCount)
	}
	if population > 0 {
		s.ComplianceRate = 1 - float64(r.FlaggedCount)/float64(population)
	}
	return s
}

// Evaluator runs catalogue rules against the relational gateway.
type Evaluator struct {
	db     Executor
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over the given gateway.
func NewEvaluator(db Executor) *Evaluator {
	return &Evaluator{
		db:     db,
		logger: slog.Default().With("component", "risk"),
	}
}

// Evaluate runs one rule with the given filters. The rule identifier is
// resolved and the filters validated before the gateway is touched, so an
// unknown rule or malformed date never reaches the engine.
func (e *Evaluator) Evaluate(ctx context.Context, riskID string, filters Filters) (*Result, error) {
	rule, err := Lookup(riskID)
	if err != nil {
		return nil, err
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.db.Execute(ctx, rule.Query, filters.bindParams(rule))
	if err != nil {
		// The gateway has no idea which rule it was running; callers
		// and 500 bodies need the identifier.
		return nil, fmt.Errorf("evaluating rule %s: %w", rule.ID, err)
	}

	result := &Result{RiskID: rule.ID, Rows: rows}
	for _, row := range rows {
		if types.Truthy(row["flagged"]) {
			result.FlaggedCount++
		}
		// NULL exposure counts as zero; a missing amount is not a
		// reason to drop a flagged taxpayer.
		exposure, err := types.MoneyFromAny(row["exposure"])
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("rule %s returned an unreadable exposure", rule.ID), err)
		}
		result.TotalExposure = result.TotalExposure.Add(exposure)
	}

	e.logger.Debug("rule evaluated",
		"risk_id", rule.ID,
		"rows", len(rows),
		"flagged", result.FlaggedCount,
		"duration", time.Since(start))

	return result, nil
}

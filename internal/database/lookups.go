package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// New wraps an existing sqlx handle. Used by tests that inject a mocked
// driver; production callers go through Open.
func New(conn *sqlx.DB, acquireTimeout time.Duration) *DB {
	db := &DB{
		conn:           conn,
		acquireTimeout: acquireTimeout,
	}
	db.logger = defaultLogger()
	return db
}

// Fixed lookup queries. Together with the risk catalogue these are the only
// statements the gateway will run.
const (
	queryTaxpayerCount = `
SELECT COUNT(*) AS total
FROM reg_tax_payer_mst
WHERE reg_status = 'REGD'`

	queryRegionalCounts = `
SELECT ST2.region_name AS region, COUNT(DISTINCT ST.tax_payer_id) AS total
FROM reg_tax_payer_mst ST
JOIN gen_location_mst_rsb ST2 ON ST.jurisdiction_location_id = ST2.location_id
WHERE ST.reg_status = 'REGD'
GROUP BY ST2.region_name`

	queryTaxpayerByTIN = `
SELECT ST.tin_no, ST.tax_payer_name, ST.reg_status,
       ST1.location_name AS reg_station, ST2.region_name AS region_name
FROM reg_tax_payer_mst ST
JOIN gen_location_mst ST1 ON ST.jurisdiction_location_id = ST1.location_id
JOIN gen_location_mst_rsb ST2 ON ST.jurisdiction_location_id = ST2.location_id
WHERE ST.tin_no = :tin`
)

// RegionCount is one row of the registered-taxpayer census per region.
type RegionCount struct {
	Region string
	Total  int64
}

// CountRegisteredTaxpayers returns the registered-taxpayer population size.
func (db *DB) CountRegisteredTaxpayers(ctx context.Context) (int64, error) {
	rows, err := db.Execute(ctx, queryTaxpayerCount, map[string]any{})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, types.NewError(types.DB_QUERY_FAILED, "taxpayer count returned no rows")
	}
	total, err := types.MoneyFromAny(rows[0]["total"])
	if err != nil {
		return 0, types.WrapError(types.DB_QUERY_FAILED, "unreadable taxpayer count", err)
	}
	return total.Int64(), nil
}

// RegionalTaxpayerCounts returns registered-taxpayer totals grouped by
// region. Regions with no flagged taxpayers still appear here; the
// aggregation layer relies on that for left-outer regional summaries.
func (db *DB) RegionalTaxpayerCounts(ctx context.Context) ([]RegionCount, error) {
	rows, err := db.Execute(ctx, queryRegionalCounts, map[string]any{})
	if err != nil {
		return nil, err
	}

	counts := make([]RegionCount, 0, len(rows))
	for _, row := range rows {
		region, _ := row["region"].(string)
		total, err := types.MoneyFromAny(row["total"])
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "unreadable regional count", err)
		}
		counts = append(counts, RegionCount{Region: region, Total: total.Int64()})
	}
	return counts, nil
}

// TaxpayerByTIN returns the registration profile row for one TIN, or nil
// when the TIN is not registered.
func (db *DB) TaxpayerByTIN(ctx context.Context, tin string) (map[string]any, error) {
	rows, err := db.Execute(ctx, queryTaxpayerByTIN, map[string]any{"tin": tin})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

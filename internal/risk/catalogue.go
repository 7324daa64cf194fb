package risk

import (
	"sort"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

// presumptiveTurnoverCeiling is the statutory small-business threshold in
// whole shillings. Presumptive filers declaring above it belong on the
// standard income tax regime.
const presumptiveTurnoverCeiling = 150_000_000

// Shared SQL fragments. Every turnover-based template starts from the
// latest approved return per taxpayer inside the reporting window, then
// joins the registration and regional masters.
const (
	latestReturns = `
WITH latest_returns AS (
    SELECT RR.*,
           ROW_NUMBER() OVER (
               PARTITION BY RR.tax_payer_id, RR.form_id
               ORDER BY RR.rtn_dt DESC, RR.rtn_version DESC
           ) AS rn
    FROM rtn_returns_register RR
    WHERE RR.rtn_status IN ('APRV', 'BRNAPRV', 'ASMT')
      AND RR.rtn_period_from >= TO_DATE(:start_date, 'DD/MM/YYYY')
      AND RR.rtn_period_to   <= TO_DATE(:end_date, 'DD/MM/YYYY')
)`

	taxpayerJoins = `
JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = LR.tax_payer_id
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id`

	commonFilters = `
  AND TP.reg_status = 'REGD'
  AND (:region = '' OR RG.region_name = :region)`

	rowCap = `
ORDER BY exposure DESC
FETCH FIRST :row_limit ROWS ONLY`
)

// Form identifiers (gen_form_mst): 210 VAT, 220 PAYE, 230 income tax,
// 231 presumptive, 240 withholding, 250 rental.

var windowParams = []string{ParamStartDate, ParamEndDate, ParamRegion, ParamRowLimit}

// catalogue holds every detection scenario the service evaluates. The
// single-letter identifiers are stable: they appear in API paths, graph
// edges and audit tasks, so they must never be reused for a different
// scenario.
var catalogue = []Rule{
	{
		ID:          "a",
		Title:       "Presumptive turnover above threshold",
		Description: "Presumptive filers declaring gross turnover above the statutory small-business ceiling of 150,000,000 shillings. They should be on the standard income tax regime.",
		Category:    "income",
		Severity:    SeverityCritical,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       CASE WHEN PB.gross_turnover > 150000000 THEN 1 ELSE 0 END AS flagged,
       COALESCE(PB.gross_turnover, 0) AS exposure
FROM latest_returns LR
JOIN rtn_prsmptv_bsns_dtl PB ON PB.rtn_no = LR.rtn_no` + taxpayerJoins + `
WHERE LR.rn = 1
  AND LR.form_id = 231
  AND PB.gross_turnover > 150000000` + commonFilters + rowCap,
	},
	{
		ID:          "b",
		Title:       "Nil VAT returns with recorded imports",
		Description: "VAT-registered traders filing nil returns in periods where customs records show imports cleared under their TIN.",
		Category:    "vat",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(IM.total_cif, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT tax_payer_id, SUM(cif_value) AS total_cif
    FROM cus_import_register
    WHERE import_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                        AND TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY tax_payer_id
) IM ON IM.tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND LR.form_id = 210
  AND COALESCE(LR.tot_sales_amt, 0) = 0
  AND IM.total_cif > 0` + commonFilters + rowCap,
	},
	{
		ID:          "c",
		Title:       "Excess VAT input credit",
		Description: "Input tax claims persistently exceeding output tax, producing a structural credit position inconsistent with the declared scale of trading.",
		Category:    "vat",
		Severity:    SeverityCritical,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       CASE WHEN LR.tot_input_tax > LR.tot_output_tax * 1.5 THEN 1 ELSE 0 END AS flagged,
       COALESCE(LR.tot_input_tax - LR.tot_output_tax, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
WHERE LR.rn = 1
  AND LR.form_id = 210
  AND LR.tot_input_tax > LR.tot_output_tax * 1.5` + commonFilters + rowCap,
	},
	{
		ID:          "d",
		Title:       "Habitual late filing",
		Description: "Taxpayers filing after the statutory due date in three or more periods inside the window.",
		Category:    "filing",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: `
WITH late_filers AS (
    SELECT RR.tax_payer_id,
           COUNT(*) AS late_count,
           SUM(COALESCE(RR.tot_tax_payable, 0)) AS late_liability
    FROM rtn_returns_register RR
    WHERE RR.rtn_status IN ('APRV', 'BRNAPRV', 'ASMT')
      AND RR.rtn_dt > RR.due_dt
      AND RR.rtn_period_from >= TO_DATE(:start_date, 'DD/MM/YYYY')
      AND RR.rtn_period_to   <= TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY RR.tax_payer_id
    HAVING COUNT(*) >= 3
)
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       LF.late_liability AS exposure
FROM late_filers LF
JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = LF.tax_payer_id
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id
WHERE 1 = 1` + commonFilters + rowCap,
	},
	{
		ID:          "e",
		Title:       "Stop-filers with active registration",
		Description: "Registered taxpayers with prior filing history who filed nothing inside the reporting window.",
		Category:    "filing",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(HIST.avg_liability, 0) AS exposure
FROM reg_tax_payer_mst TP
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id
JOIN (
    SELECT tax_payer_id, AVG(COALESCE(tot_tax_payable, 0)) AS avg_liability
    FROM rtn_returns_register
    WHERE rtn_status IN ('APRV', 'BRNAPRV', 'ASMT')
      AND rtn_period_to < TO_DATE(:start_date, 'DD/MM/YYYY')
    GROUP BY tax_payer_id
) HIST ON HIST.tax_payer_id = TP.tax_payer_id
WHERE NOT EXISTS (
    SELECT 1
    FROM rtn_returns_register RR
    WHERE RR.tax_payer_id = TP.tax_payer_id
      AND RR.rtn_period_from >= TO_DATE(:start_date, 'DD/MM/YYYY')
      AND RR.rtn_period_to   <= TO_DATE(:end_date, 'DD/MM/YYYY')
)` + commonFilters + rowCap,
	},
	{
		ID:          "f",
		Title:       "Turnover below withholding credits",
		Description: "Declared turnover lower than the gross payments third parties withheld tax on, implying undeclared sales.",
		Category:    "income",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(WC.gross_paid - LR.tot_turnover, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT payee_tax_payer_id, SUM(gross_amt) AS gross_paid
    FROM rtn_wht_credit_dtl
    WHERE txn_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                     AND TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY payee_tax_payer_id
) WC ON WC.payee_tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND LR.form_id = 230
  AND COALESCE(LR.tot_turnover, 0) < WC.gross_paid` + commonFilters + rowCap,
	},
	{
		ID:          "g",
		Title:       "PAYE below employee baseline",
		Description: "Employers whose declared payroll tax falls below what their registered employee count implies at the minimum taxable wage.",
		Category:    "payroll",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(PE.emp_count * 23500 - LR.tot_tax_payable, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN rtn_paye_emp_dtl PE ON PE.rtn_no = LR.rtn_no
WHERE LR.rn = 1
  AND LR.form_id = 220
  AND COALESCE(LR.tot_tax_payable, 0) < PE.emp_count * 23500` + commonFilters + rowCap,
	},
	{
		ID:          "h",
		Title:       "VAT and income turnover mismatch",
		Description: "Turnover declared on VAT returns differing from turnover on the income tax return for the same window by more than ten percent.",
		Category:    "cross-check",
		Severity:    SeverityCritical,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       ABS(COALESCE(VT.tot_sales_amt, 0) - COALESCE(LR.tot_turnover, 0)) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN latest_returns VT ON VT.tax_payer_id = LR.tax_payer_id
   AND VT.form_id = 210 AND VT.rn = 1
WHERE LR.rn = 1
  AND LR.form_id = 230
  AND ABS(COALESCE(VT.tot_sales_amt, 0) - COALESCE(LR.tot_turnover, 0))
      > COALESCE(LR.tot_turnover, 0) * 0.10` + commonFilters + rowCap,
	},
	{
		ID:          "i",
		Title:       "Zero net tax on high turnover",
		Description: "Returns declaring turnover above 500,000,000 shillings with zero or negative net tax payable.",
		Category:    "income",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(LR.tot_turnover, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
WHERE LR.rn = 1
  AND LR.form_id = 230
  AND COALESCE(LR.tot_turnover, 0) > 500000000
  AND COALESCE(LR.tot_tax_payable, 0) <= 0` + commonFilters + rowCap,
	},
	{
		ID:          "j",
		Title:       "Refund claims above sector norm",
		Description: "VAT refund claims exceeding three times the average claim of the taxpayer's business sector.",
		Category:    "vat",
		Severity:    SeverityCritical,
		Params:      windowParams,
		Query: latestReturns + `
, sector_norm AS (
    SELECT TP.bsns_sector_code, AVG(COALESCE(LR.refund_claim_amt, 0)) AS avg_claim
    FROM latest_returns LR
    JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = LR.tax_payer_id
    WHERE LR.rn = 1 AND LR.form_id = 210
    GROUP BY TP.bsns_sector_code
)
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(LR.refund_claim_amt, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN sector_norm SN ON SN.bsns_sector_code = TP.bsns_sector_code
WHERE LR.rn = 1
  AND LR.form_id = 210
  AND COALESCE(LR.refund_claim_amt, 0) > SN.avg_claim * 3` + commonFilters + rowCap,
	},
	{
		ID:          "k",
		Title:       "Customs imports above declared purchases",
		Description: "CIF value of cleared imports exceeding the purchases declared on VAT returns by more than twenty percent.",
		Category:    "customs",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(IM.total_cif - LR.tot_purchases_amt, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT tax_payer_id, SUM(cif_value) AS total_cif
    FROM cus_import_register
    WHERE import_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                        AND TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY tax_payer_id
) IM ON IM.tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND LR.form_id = 210
  AND IM.total_cif > COALESCE(LR.tot_purchases_amt, 0) * 1.2` + commonFilters + rowCap,
	},
	{
		ID:          "l",
		Title:       "Cash-economy under-declaration",
		Description: "Cash-intensive sectors declaring turnover below half of their sector's median inside the window.",
		Category:    "income",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
, sector_median AS (
    SELECT TP.bsns_sector_code,
           PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY COALESCE(LR.tot_turnover, 0)) AS med_turnover
    FROM latest_returns LR
    JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = LR.tax_payer_id
    WHERE LR.rn = 1 AND LR.form_id = 230
    GROUP BY TP.bsns_sector_code
)
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(SM.med_turnover - LR.tot_turnover, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN sector_median SM ON SM.bsns_sector_code = TP.bsns_sector_code
WHERE LR.rn = 1
  AND LR.form_id = 230
  AND TP.cash_intensive_flag = 'Y'
  AND COALESCE(LR.tot_turnover, 0) < SM.med_turnover * 0.5` + commonFilters + rowCap,
	},
	{
		ID:          "m",
		Title:       "Dormant registration with recent filings",
		Description: "Taxpayers marked dormant in the register who nonetheless filed returns inside the window.",
		Category:    "registration",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(LR.tot_tax_payable, 0) AS exposure
FROM latest_returns LR
JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = LR.tax_payer_id
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id
WHERE LR.rn = 1
  AND TP.reg_status = 'DRMT'
  AND (:region = '' OR RG.region_name = :region)` + rowCap,
	},
	{
		ID:          "n",
		Title:       "Exempt supplies anomalies",
		Description: "Exempt supplies above eighty percent of total sales for taxpayers outside the exempt-dominant sectors.",
		Category:    "vat",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(LR.exempt_sales_amt, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
WHERE LR.rn = 1
  AND LR.form_id = 210
  AND COALESCE(LR.tot_sales_amt, 0) > 0
  AND LR.exempt_sales_amt > LR.tot_sales_amt * 0.8
  AND TP.bsns_sector_code NOT IN ('AGRI', 'EDUC', 'HLTH', 'FINS')` + commonFilters + rowCap,
	},
	{
		ID:          "o",
		Title:       "Repeat liability-reducing amendments",
		Description: "Two or more amended returns in the window where each amendment reduced the declared liability.",
		Category:    "filing",
		Severity:    SeverityHigh,
		Params:      windowParams,
		Query: `
WITH reducing_amendments AS (
    SELECT RR.tax_payer_id,
           COUNT(*) AS amendment_count,
           SUM(PRV.tot_tax_payable - RR.tot_tax_payable) AS reduction
    FROM rtn_returns_register RR
    JOIN rtn_returns_register PRV
      ON PRV.tax_payer_id = RR.tax_payer_id
     AND PRV.form_id = RR.form_id
     AND PRV.rtn_period_from = RR.rtn_period_from
     AND PRV.rtn_version = RR.rtn_version - 1
    WHERE RR.rtn_version > 1
      AND RR.tot_tax_payable < PRV.tot_tax_payable
      AND RR.rtn_period_from >= TO_DATE(:start_date, 'DD/MM/YYYY')
      AND RR.rtn_period_to   <= TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY RR.tax_payer_id
    HAVING COUNT(*) >= 2
)
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       RA.reduction AS exposure
FROM reducing_amendments RA
JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = RA.tax_payer_id
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id
WHERE 1 = 1` + commonFilters + rowCap,
	},
	{
		ID:          "p",
		Title:       "Credit carry-forward never offset",
		Description: "VAT credit balances carried forward across every period in the window without offset or refund claim.",
		Category:    "vat",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: `
WITH perpetual_credit AS (
    SELECT RR.tax_payer_id,
           MAX(COALESCE(RR.credit_bf_amt, 0)) AS max_credit
    FROM rtn_returns_register RR
    WHERE RR.form_id = 210
      AND RR.rtn_status IN ('APRV', 'BRNAPRV', 'ASMT')
      AND RR.rtn_period_from >= TO_DATE(:start_date, 'DD/MM/YYYY')
      AND RR.rtn_period_to   <= TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY RR.tax_payer_id
    HAVING MIN(COALESCE(RR.credit_bf_amt, 0)) > 0
       AND SUM(COALESCE(RR.refund_claim_amt, 0)) = 0
       AND SUM(COALESCE(RR.tot_tax_payable, 0)) = 0
)
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       PC.max_credit AS exposure
FROM perpetual_credit PC
JOIN reg_tax_payer_mst TP ON TP.tax_payer_id = PC.tax_payer_id
JOIN gen_location_mst_rsb RG ON TP.jurisdiction_location_id = RG.location_id
WHERE 1 = 1` + commonFilters + rowCap,
	},
	{
		ID:          "q",
		Title:       "Rental income below property register",
		Description: "Declared rental income below the annual rental value of properties registered to the taxpayer.",
		Category:    "income",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(PR.register_value - LR.tot_rental_income, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT tax_payer_id, SUM(annual_rental_value) AS register_value
    FROM reg_property_mst
    WHERE property_status = 'ACTV'
    GROUP BY tax_payer_id
) PR ON PR.tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND LR.form_id = 250
  AND COALESCE(LR.tot_rental_income, 0) < PR.register_value` + commonFilters + rowCap,
	},
	{
		ID:          "r",
		Title:       "Withholding agents not remitting",
		Description: "Appointed withholding agents whose certificates issued to payees exceed the withholding tax they remitted.",
		Category:    "withholding",
		Severity:    SeverityCritical,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(CD.certified_amt - LR.tot_tax_payable, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT agent_tax_payer_id, SUM(wht_amt) AS certified_amt
    FROM rtn_wht_credit_dtl
    WHERE txn_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                     AND TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY agent_tax_payer_id
) CD ON CD.agent_tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND LR.form_id = 240
  AND TP.wht_agent_flag = 'Y'
  AND COALESCE(LR.tot_tax_payable, 0) < CD.certified_amt` + commonFilters + rowCap,
	},
	{
		ID:          "s",
		Title:       "Branch transfers without head-office declaration",
		Description: "Branch returns recording stock transfers to a head office that declared no corresponding movement.",
		Category:    "cross-check",
		Severity:    SeverityMedium,
		Params:      windowParams,
		Query: latestReturns + `
SELECT TP.tin_no, TP.tax_payer_name, RG.region_name,
       1 AS flagged,
       COALESCE(BR.transfer_amt, 0) AS exposure
FROM latest_returns LR` + taxpayerJoins + `
JOIN (
    SELECT branch_tax_payer_id, head_office_tax_payer_id,
           SUM(transfer_value) AS transfer_amt
    FROM rtn_branch_transfer_dtl
    WHERE transfer_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                          AND TO_DATE(:end_date, 'DD/MM/YYYY')
    GROUP BY branch_tax_payer_id, head_office_tax_payer_id
) BR ON BR.head_office_tax_payer_id = TP.tax_payer_id
WHERE LR.rn = 1
  AND NOT EXISTS (
      SELECT 1
      FROM rtn_branch_transfer_dtl HD
      WHERE HD.branch_tax_payer_id = TP.tax_payer_id
        AND HD.transfer_dt BETWEEN TO_DATE(:start_date, 'DD/MM/YYYY')
                               AND TO_DATE(:end_date, 'DD/MM/YYYY')
  )` + commonFilters + rowCap,
	},
}

var catalogueByID = func() map[string]Rule {
	m := make(map[string]Rule, len(catalogue))
	for _, r := range catalogue {
		m[r.ID] = r
	}
	return m
}()

// Lookup returns the rule with the given identifier. Unknown identifiers
// fail with RISK_UNKNOWN before any query is attempted.
func Lookup(id string) (Rule, error) {
	rule, ok := catalogueByID[id]
	if !ok {
		return Rule{}, types.NewError(types.RISK_UNKNOWN, "unknown risk identifier: "+id)
	}
	return rule, nil
}

// All returns every catalogue rule ordered by identifier.
func All() []Rule {
	out := make([]Rule, len(catalogue))
	copy(out, catalogue)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the ordered identifiers of every catalogue rule.
func IDs() []string {
	rules := All()
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

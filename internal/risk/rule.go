package risk

// Severity ranks how urgently a flagged taxpayer should be worked.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Bind parameter names shared by every catalogue template. Filters are
// always passed as bound parameters, never interpolated into SQL text.
const (
	ParamStartDate = "start_date"
	ParamEndDate   = "end_date"
	ParamRegion    = "region"
	ParamRowLimit  = "row_limit"
)

// Rule is one entry in the risk catalogue: a parameterized SQL template
// plus the metadata the dashboard shows for it. Rules are data, not code;
// adding a detection scenario means adding a Rule, not a function.
//
// Every template projects at least tin_no, tax_payer_name, region_name,
// flagged (0/1) and exposure, and binds the parameters listed in Params.
type Rule struct {
	// ID is the stable single-letter identifier used in API paths and
	// graph edges.
	ID string `json:"id"`

	// Title is the short human-readable name shown in listings.
	Title string `json:"title"`

	// Description explains what behaviour the rule detects and why it
	// matters for compliance.
	Description string `json:"description"`

	// Category groups related rules (vat, income, customs, filing, ...).
	Category string `json:"category"`

	Severity Severity `json:"severity"`

	// Query is the SQL template executed against the relational replica.
	Query string `json:"-"`

	// Params names the bind parameters the template expects.
	Params []string `json:"params"`
}

func (r Rule) bindsParam(name string) bool {
	for _, p := range r.Params {
		if p == name {
			return true
		}
	}
	return false
}

// Package canon maps raw metric labels to the canonical metric vocabulary.
package canon

import (
	"sort"
	"strings"
	"unicode"
)

// vocabulary is the fixed set of canonical metric identifiers.
var vocabulary = []string{
	"mrr", "arr", "revenue", "recurring_revenue",
	"gross_profit", "gross_margin", "cogs", "opex",
	"ebitda", "operating_income", "net_income",
	"cash_balance", "burn_rate", "runway_months",
	"headcount", "customers", "new_customers", "churn_rate",
	"arpu", "cac", "ltv", "bookings",
	"deferred_revenue", "accounts_receivable", "accounts_payable", "capex",
}

var canonical = func() map[string]bool {
	m := make(map[string]bool, len(vocabulary))
	for _, id := range vocabulary {
		m[id] = true
	}
	return m
}()

// synonyms maps normalized labels to canonical ids. Keys are already
// stripped of total/actual/budget/forecast qualifiers.
var synonyms = map[string]string{
	"monthly_recurring_revenue": "mrr",
	"monthly_recurring_rev":     "mrr",

	"annual_recurring_revenue":     "arr",
	"annualized_recurring_revenue": "arr",
	"annualised_recurring_revenue": "arr",
	"run_rate_arr":                 "arr",

	"revenues":    "revenue",
	"net_revenue": "revenue",
	"sales":       "revenue",
	"net_sales":   "revenue",
	"turnover":    "revenue",

	"subscription_revenue": "recurring_revenue",

	"gross_margin_pct":     "gross_margin",
	"gross_margin_percent": "gross_margin",

	"cost_of_goods_sold": "cogs",
	"cost_of_revenue":    "cogs",
	"cost_of_sales":      "cogs",

	"operating_expenses": "opex",
	"operating_expense":  "opex",
	"operating_costs":    "opex",

	"adjusted_ebitda": "ebitda",
	"adj_ebitda":      "ebitda",

	"ebit":             "operating_income",
	"operating_profit": "operating_income",

	"net_profit":       "net_income",
	"net_loss":         "net_income",
	"net_income_loss":  "net_income",
	"profit_after_tax": "net_income",

	"cash":                      "cash_balance",
	"cash_and_cash_equivalents": "cash_balance",
	"cash_cash_equivalents":     "cash_balance",
	"closing_cash":              "cash_balance",
	"ending_cash":               "cash_balance",
	"cash_at_bank":              "cash_balance",

	"burn":         "burn_rate",
	"net_burn":     "burn_rate",
	"cash_burn":    "burn_rate",
	"monthly_burn": "burn_rate",

	"runway":      "runway_months",
	"cash_runway": "runway_months",

	"fte":       "headcount",
	"ftes":      "headcount",
	"employees": "headcount",

	"customer_count":   "customers",
	"paying_customers": "customers",
	"logos":            "customers",

	"new_logos": "new_customers",

	"churn":         "churn_rate",
	"logo_churn":    "churn_rate",
	"revenue_churn": "churn_rate",

	"average_revenue_per_user":    "arpu",
	"average_revenue_per_account": "arpu",
	"arpa":                        "arpu",

	"customer_acquisition_cost": "cac",

	"clv":                     "ltv",
	"lifetime_value":          "ltv",
	"customer_lifetime_value": "ltv",

	"new_bookings": "bookings",

	"unearned_revenue": "deferred_revenue",

	"ar":                "accounts_receivable",
	"receivables":       "accounts_receivable",
	"trade_receivables": "accounts_receivable",

	"ap":             "accounts_payable",
	"payables":       "accounts_payable",
	"trade_payables": "accounts_payable",

	"capital_expenditure":  "capex",
	"capital_expenditures": "capex",
}

var qualifiers = []string{"total_", "actual_", "actuals_", "budget_", "forecast_"}

// Vocabulary returns the canonical ids, sorted.
func Vocabulary() []string {
	out := append([]string(nil), vocabulary...)
	sort.Strings(out)
	return out
}

// IsCanonical reports whether id is a canonical metric id.
func IsCanonical(id string) bool { return canonical[id] }

// Normalize converts a free-form label to its lookup key: lowercase,
// non-alphanumeric runs collapsed to "_", leading qualifiers stripped.
// "Total Actual MRR" -> "mrr".
func Normalize(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	key := strings.TrimSuffix(b.String(), "_")

	for stripped := true; stripped; {
		stripped = false
		for _, q := range qualifiers {
			if strings.HasPrefix(key, q) && len(key) > len(q) {
				key = strings.TrimPrefix(key, q)
				stripped = true
			}
		}
	}
	return key
}

// Static resolves label through the canonical ids and the synonym table.
func Static(label string) (string, bool) {
	if canonical[label] {
		return label, true
	}
	key := Normalize(label)
	if canonical[key] {
		return key, true
	}
	id, ok := synonyms[key]
	return id, ok
}

package reconcile

import (
	"path/filepath"
	"strings"

	"portfolio_metrics/pkg/models"
)

const (
	restatementBoost      = 100
	forecastRevisionBoost = 20
)

var basePriorities = map[models.DocumentType]int{
	models.DocBoardDeck:      100,
	models.DocInvestorReport: 80,
	models.DocMonthlyReport:  80,
	models.DocBudget:         70,
	models.DocFinancialModel: 60,
	models.DocRawExport:      40,
	models.DocUnknown:        20,
}

// BasePriority ranks a document type. Budget files outrank board decks for
// the budget scenario only.
func BasePriority(doc models.DocumentType, scenario models.Scenario) int {
	if doc == models.DocBudget && scenario == models.ScenarioBudget {
		return 110
	}
	if p, ok := basePriorities[doc]; ok {
		return p
	}
	return basePriorities[models.DocUnknown]
}

// EffectivePriority adds the explanation boost to the base priority.
func EffectivePriority(doc models.DocumentType, scenario models.Scenario, expl *models.Explanation) int {
	p := BasePriority(doc, scenario)
	switch {
	case expl.IsOverride():
		p += restatementBoost
	case expl != nil && expl.Type == models.ExplainForecastRevision:
		p += forecastRevisionBoost
	}
	return p
}

// documentRules are checked in order; the first keyword hit wins.
var documentRules = []struct {
	doc      models.DocumentType
	keywords []string
}{
	{models.DocBoardDeck, []string{"board", "deck", "presentation"}},
	{models.DocInvestorReport, []string{"investor"}},
	{models.DocMonthlyReport, []string{"monthly", "report"}},
	{models.DocBudget, []string{"budget", "forecast", "plan"}},
	{models.DocFinancialModel, []string{"model"}},
	{models.DocRawExport, []string{"export", "dump"}},
}

// DetectDocumentType guesses the document type from a file name.
func DetectDocumentType(filename string) models.DocumentType {
	base := strings.ToLower(filepath.Base(filename))
	for _, rule := range documentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(base, kw) {
				return rule.doc
			}
		}
	}
	if strings.EqualFold(filepath.Ext(base), ".csv") {
		return models.DocRawExport
	}
	return models.DocUnknown
}

// ParseDocumentType accepts a document type name, as used by overrides.
func ParseDocumentType(s string) (models.DocumentType, bool) {
	doc := models.DocumentType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := basePriorities[doc]
	return doc, ok
}

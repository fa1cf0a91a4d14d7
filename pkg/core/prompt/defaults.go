package prompt

// Template IDs used by the document understanding service.
const (
	IDStructure = "docservice.structure"
	IDMatch     = "docservice.match"
	IDSummary   = "docservice.summary"
	IDClassify  = "docservice.classify"
)

// Defaults returns the built-in templates. Each call returns fresh copies.
func Defaults() []*PromptTemplate {
	return []*PromptTemplate{
		{
			ID:       IDStructure,
			Name:     "Spreadsheet structure sketch",
			Category: "docservice",
			Version:  "1",
			SystemPrompt: `You analyse the layout of financial spreadsheets submitted by portfolio companies.
You never transcribe values. You only describe where periods and scenarios are.
Answer with a single JSON object and nothing else:
{"schema_version":"1","sheets":[{"sheet":"<name>","dateHeaderRow":<1-based row>,"scenarioLabelRow":<1-based row or 0>,
"actualColumns":["D","E"],"budgetColumns":["P"],"columnDates":{"D":"2024-03-01"},"metricRows":{"mrr":29}}]}
Rules:
- actualColumns and budgetColumns must come from a row that literally labels the scenario (Actual, Budget, Forecast, Plan). Never infer them from position.
- A column never appears in both lists.
- columnDates values are ISO dates on the first day of the month.
- metricRows is optional; include only rows you are certain about.
- Omit sheets that hold no periodic financial data.`,
			UserPromptTmpl: `Document: {{.Filename}}
{{.Digest}}`,
			Variables: []PromptVariable{
				{Name: "Filename", Type: "string", Required: true},
				{Name: "Digest", Type: "string", Required: true},
			},
		},
		{
			ID:       IDMatch,
			Name:     "Metric to row label matching",
			Category: "docservice",
			Version:  "1",
			SystemPrompt: `You match canonical financial metric identifiers to row labels of a spreadsheet.
You receive the target metrics (with known synonyms) and the list of row labels per sheet with their row numbers.
Answer with a single JSON object and nothing else:
{"schema_version":"1","matches":{"<metric_id>":{"sheet":"<sheet>","row":<row>}}}
Only use sheet/row pairs that appear in the label list. If no label is a confident semantic match for a metric, leave it out. Do not guess.`,
			UserPromptTmpl: `Target metrics:
{{.Targets}}

Row labels by sheet:
{{.Labels}}`,
			Variables: []PromptVariable{
				{Name: "Targets", Type: "string", Required: true},
				{Name: "Labels", Type: "string", Required: true},
			},
		},
		{
			ID:       IDSummary,
			Name:     "Whole document financial summary",
			Category: "docservice",
			Version:  "1",
			SystemPrompt: `You read a financial document of a portfolio company and report the headline metrics it states.
Answer with a single JSON object and nothing else:
{"schema_version":"1","currency":"EUR","items":[{"metric":"revenue","amount":100000,"period":"2024-09-01","scenario":"actual","page":3,"note":"p.3 KPI table"}]}
Use the figures exactly as printed, converted to plain numbers. period is the first day of the month the figure refers to. scenario is "actual" or "budget".`,
			UserPromptTmpl: `Document: {{.Filename}}
Company: {{.Company}}
Expected currency: {{.Currency}}

{{.Content}}`,
			Variables: []PromptVariable{
				{Name: "Filename", Type: "string", Required: true},
				{Name: "Company", Type: "string"},
				{Name: "Currency", Type: "string"},
				{Name: "Content", Type: "string", Required: true},
			},
		},
		{
			ID:       IDClassify,
			Name:     "Metric label classification",
			Category: "docservice",
			Version:  "1",
			SystemPrompt: `You map a raw financial metric label to exactly one identifier of a fixed vocabulary.
Answer with a single JSON object and nothing else:
{"schema_version":"1","metric_id":"<identifier or empty>","confidence":<0..1>}
If none of the identifiers fits, return an empty metric_id with confidence 0.`,
			UserPromptTmpl: `Label: {{.Label}}
Company business model: {{.BusinessModel}}
Vocabulary: {{.Vocabulary}}`,
			Variables: []PromptVariable{
				{Name: "Label", Type: "string", Required: true},
				{Name: "BusinessModel", Type: "string"},
				{Name: "Vocabulary", Type: "string", Required: true},
			},
		},
	}
}

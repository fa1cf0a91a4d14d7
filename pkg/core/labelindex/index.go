// Package labelindex scans the label columns of a workbook and records
// every plausible row label, so that matching never depends on anyone
// enumerating the rows of a document.
package labelindex

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Rhymond/go-money"

	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/period"
)

// Entry is one candidate row label. Row is 1-based.
type Entry struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Label  string `json:"label"`
	Column string `json:"column"`
}

type Options struct {
	LabelColumns int // left-most columns scanned
	MinLen       int
	MaxLen       int
}

func DefaultOptions() Options {
	return Options{LabelColumns: 3, MinLen: 2, MaxLen: 80}
}

// Index is the flat label list plus lookups over it.
type Index struct {
	Entries []Entry

	rows    map[string]map[int][]int // sheet -> row -> entry positions
	byLabel map[string][]int         // normalized label -> entry positions
}

// Build scans every sheet of wb. Entries are ordered by sheet, row, column.
func Build(wb *grid.Workbook, opts Options) *Index {
	if opts.LabelColumns <= 0 {
		opts.LabelColumns = DefaultOptions().LabelColumns
	}
	if opts.MinLen <= 0 {
		opts.MinLen = DefaultOptions().MinLen
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = DefaultOptions().MaxLen
	}

	idx := &Index{
		rows:    make(map[string]map[int][]int),
		byLabel: make(map[string][]int),
	}
	for _, sheet := range wb.Sheets {
		for r := range sheet.Rows {
			for c := 0; c < opts.LabelColumns; c++ {
				cell := sheet.Cell(r, c)
				if cell.Kind != grid.Text {
					continue
				}
				label := strings.Join(strings.Fields(cell.Text), " ")
				if !IsLabel(label, opts) {
					continue
				}
				idx.add(Entry{
					Sheet:  sheet.Name,
					Row:    r + 1,
					Label:  label,
					Column: grid.ColumnLetter(c),
				})
			}
		}
	}
	return idx
}

func (idx *Index) add(e Entry) {
	pos := len(idx.Entries)
	idx.Entries = append(idx.Entries, e)
	if idx.rows[e.Sheet] == nil {
		idx.rows[e.Sheet] = make(map[int][]int)
	}
	idx.rows[e.Sheet][e.Row] = append(idx.rows[e.Sheet][e.Row], pos)
	key := Normalize(e.Label)
	idx.byLabel[key] = append(idx.byLabel[key], pos)
}

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.Entries) }

// Contains reports whether (sheet, row) carries at least one label.
func (idx *Index) Contains(sheet string, row int) bool {
	return len(idx.rows[sheet][row]) > 0
}

// RowLabel returns the first label recorded for (sheet, row).
func (idx *Index) RowLabel(sheet string, row int) string {
	if positions := idx.rows[sheet][row]; len(positions) > 0 {
		return idx.Entries[positions[0]].Label
	}
	return ""
}

// Lookup returns entries whose normalized label equals the normalized query.
func (idx *Index) Lookup(label string) []Entry {
	positions := idx.byLabel[Normalize(label)]
	out := make([]Entry, len(positions))
	for i, p := range positions {
		out[i] = idx.Entries[p]
	}
	return out
}

// GroupBySheet de-duplicates labels per sheet, keeping the first
// occurrence, and caps every sheet at capPerSheet entries (0 = no cap).
func (idx *Index) GroupBySheet(capPerSheet int) map[string][]Entry {
	out := make(map[string][]Entry)
	seen := make(map[string]map[string]bool)
	for _, e := range idx.Entries {
		if seen[e.Sheet] == nil {
			seen[e.Sheet] = make(map[string]bool)
		}
		key := Normalize(e.Label)
		if seen[e.Sheet][key] {
			continue
		}
		if capPerSheet > 0 && len(out[e.Sheet]) >= capPerSheet {
			continue
		}
		seen[e.Sheet][key] = true
		out[e.Sheet] = append(out[e.Sheet], e)
	}
	return out
}

// Sheets returns the sheet names that carry labels, sorted.
func (idx *Index) Sheets() []string {
	names := make([]string, 0, len(idx.rows))
	for name := range idx.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize lowercases a label and collapses whitespace and trailing colons.
func Normalize(label string) string {
	s := strings.ToLower(strings.Join(strings.Fields(label), " "))
	return strings.TrimRight(s, ": ")
}

// IsLabel applies the label filters: length bounds, no bare numbers,
// no currency-only tokens, no dates or month headers.
func IsLabel(s string, opts Options) bool {
	n := utf8.RuneCountInString(s)
	if n < opts.MinLen || n > opts.MaxLen {
		return false
	}
	if isBareNumber(s) || isCurrencyToken(s) {
		return false
	}
	if period.IsDateLike(s) {
		return false
	}
	return true
}

const numberRunes = "0123456789.,'()%+-−  "

func isBareNumber(s string) bool {
	hasDigit := false
	var rest strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(numberRunes, r), unicode.Is(unicode.Sc, r):
		default:
			rest.WriteRune(r)
		}
	}
	if !hasDigit {
		return false
	}
	tail := strings.TrimSpace(rest.String())
	return tail == "" || isCurrencyCode(tail) || strings.EqualFold(tail, "k") || strings.EqualFold(tail, "m")
}

func isCurrencyToken(s string) bool {
	t := strings.TrimSpace(s)
	if isCurrencyCode(t) {
		return true
	}
	for _, r := range t {
		if !unicode.Is(unicode.Sc, r) && !unicode.IsSpace(r) && r != '.' {
			return false
		}
	}
	return true
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return money.GetCurrency(s) != nil
}

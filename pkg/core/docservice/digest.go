package docservice

import (
	"fmt"
	"strings"

	"portfolio_metrics/pkg/core/grid"
	"portfolio_metrics/pkg/core/period"
)

const (
	maxDigestCellRunes = 24
	maxDigestColumns   = 60
)

var scenarioWords = []string{"actual", "budget", "forecast", "plan", "projection"}

// BuildDigest renders a bounded sketch of wb: per sheet its size, the first
// sampleRows rows, every row that looks like a date or scenario header, and
// the last sampleRows/2 rows.
func BuildDigest(filename string, wb *grid.Workbook, sampleRows int) Digest {
	if sampleRows <= 0 {
		sampleRows = 8
	}
	var b strings.Builder
	d := Digest{Filename: filename}
	for _, sheet := range wb.Sheets {
		d.Sheets = append(d.Sheets, sheet.Name)
		fmt.Fprintf(&b, "Sheet %q (%d rows x %d columns)\n", sheet.Name, len(sheet.Rows), sheet.MaxColumns())

		tail := sampleRows / 2
		last := -1
		for r := range sheet.Rows {
			keep := r < sampleRows || r >= len(sheet.Rows)-tail || isHeaderRow(sheet.Rows[r])
			if !keep {
				continue
			}
			line := renderRow(sheet, r)
			if line == "" {
				continue
			}
			if last >= 0 && r > last+1 {
				fmt.Fprintf(&b, "  ... rows %d-%d omitted\n", last+2, r)
			}
			fmt.Fprintf(&b, "  Row %d: %s\n", r+1, line)
			last = r
		}
		b.WriteString("\n")
	}
	d.Text = strings.TrimRight(b.String(), "\n")
	return d
}

// RenderWorkbook renders every non-empty row of every sheet, capped at
// maxRows rows in total. Used as the text strategy of the summary fallback.
func RenderWorkbook(wb *grid.Workbook, maxRows int) string {
	var b strings.Builder
	rows := 0
	for _, sheet := range wb.Sheets {
		fmt.Fprintf(&b, "Sheet %q\n", sheet.Name)
		for r := range sheet.Rows {
			if maxRows > 0 && rows >= maxRows {
				b.WriteString("  ... truncated\n")
				return b.String()
			}
			if line := renderRow(sheet, r); line != "" {
				fmt.Fprintf(&b, "  Row %d: %s\n", r+1, line)
				rows++
			}
		}
	}
	return b.String()
}

func renderRow(sheet *grid.Sheet, r int) string {
	var cells []string
	for c, cell := range sheet.Rows[r] {
		if c >= maxDigestColumns {
			cells = append(cells, "...")
			break
		}
		text := cell.String()
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > maxDigestCellRunes {
			text = string(runes[:maxDigestCellRunes]) + "…"
		}
		cells = append(cells, grid.CellRef(r, c)+"="+text)
	}
	return strings.Join(cells, " | ")
}

// isHeaderRow flags rows carrying at least three period headers or scenario labels.
func isHeaderRow(row []grid.Cell) bool {
	dates, scenarios := 0, 0
	for _, cell := range row {
		switch cell.Kind {
		case grid.Number:
			if _, ok := period.ParseSerial(cell.Number); ok {
				dates++
			}
		case grid.Text:
			t := strings.ToLower(cell.String())
			if period.IsDateLike(t) {
				dates++
				continue
			}
			for _, w := range scenarioWords {
				if strings.Contains(t, w) {
					scenarios++
					break
				}
			}
		}
	}
	return dates >= 3 || scenarios >= 3
}

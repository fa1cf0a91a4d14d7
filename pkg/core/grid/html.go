package grid

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// loadHTML turns every <table> of an HTML report into a sheet named
// "Table N". Header and data cells are treated alike; colspan is expanded
// so banner labels cover the columns they head.
func loadHTML(content []byte) (*Workbook, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	wb := &Workbook{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		var rows [][]Cell
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			// Nested tables are read on their own.
			if tr.Closest("table").Get(0) != table.Get(0) {
				return
			}
			var cells []Cell
			tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				text := strings.Join(strings.Fields(cell.Text()), " ")
				parsed := ParseCell(text)
				span := 1
				if v, ok := cell.Attr("colspan"); ok {
					if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 && n <= 256 {
						span = n
					}
				}
				for k := 0; k < span; k++ {
					cells = append(cells, parsed)
				}
			})
			rows = append(rows, cells)
		})
		if len(rows) == 0 {
			return
		}
		name := strings.TrimSpace(table.Find("caption").First().Text())
		if name == "" {
			name = fmt.Sprintf("Table %d", len(wb.Sheets)+1)
		}
		wb.Sheets = append(wb.Sheets, &Sheet{Name: name, Rows: rows})
	})

	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("no tables found")
	}
	return wb, nil
}

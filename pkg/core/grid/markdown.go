package grid

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// loadMarkdown reads GFM pipe tables from a markdown report, one sheet per table.
func loadMarkdown(content []byte) (*Workbook, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(content))

	wb := &Workbook{}
	var current [][]Cell
	var row []Cell

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case extast.KindTable:
			if entering {
				current = nil
				return ast.WalkContinue, nil
			}
			wb.Sheets = append(wb.Sheets, &Sheet{
				Name: fmt.Sprintf("Table %d", len(wb.Sheets)+1),
				Rows: current,
			})
		case extast.KindTableHeader, extast.KindTableRow:
			if entering {
				row = nil
				return ast.WalkContinue, nil
			}
			current = append(current, row)
		case extast.KindTableCell:
			if entering {
				row = append(row, ParseCell(nodeText(n, content)))
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("no tables found")
	}
	return wb, nil
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestColumnLetter_RoundTrip(t *testing.T) {
	for i := 0; i <= 701; i++ {
		letter := ColumnLetter(i)
		require.NotEmpty(t, letter, "index %d", i)
		back, err := ColumnIndex(letter)
		require.NoError(t, err)
		assert.Equal(t, i, back, "letter %s", letter)
	}
	assert.Equal(t, "A", ColumnLetter(0))
	assert.Equal(t, "Z", ColumnLetter(25))
	assert.Equal(t, "AA", ColumnLetter(26))
	assert.Equal(t, "ZZ", ColumnLetter(701))
	assert.Equal(t, "AAA", ColumnLetter(702))
}

func TestColumnIndex_Invalid(t *testing.T) {
	_, err := ColumnIndex("")
	assert.Error(t, err)
	_, err = ColumnIndex("A1")
	assert.Error(t, err)
}

func TestCellRef(t *testing.T) {
	assert.Equal(t, "A1", CellRef(0, 0))
	assert.Equal(t, "J29", CellRef(28, 9))
}

func TestSheetCell_OutOfRange(t *testing.T) {
	s := NewSheetFromStrings("S", [][]string{{"a", "1"}, {"b"}})
	assert.Equal(t, Text, s.Cell(0, 0).Kind)
	assert.Equal(t, Number, s.Cell(0, 1).Kind)
	assert.True(t, s.Cell(1, 1).IsEmpty())
	assert.True(t, s.Cell(-1, 0).IsEmpty())
	assert.True(t, s.Cell(5, 5).IsEmpty())
	assert.Equal(t, 2, s.MaxColumns())

	c, err := s.At(1, "B")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Number)
}

func TestWorkbookSheet_NotFound(t *testing.T) {
	wb := &Workbook{Sheets: []*Sheet{{Name: "Revenue"}}}
	_, err := wb.Sheet("Costs")
	assert.ErrorIs(t, err, ErrSheetNotFound)
	s, err := wb.Sheet("Revenue")
	require.NoError(t, err)
	assert.Equal(t, "Revenue", s.Name)
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Revenue"))
	require.NoError(t, f.SetCellValue("Revenue", "A29", "Total MRR"))
	require.NoError(t, f.SetCellValue("Revenue", "J29", "1.234,56"))
	require.NoError(t, f.SetCellValue("Revenue", "K29", 1500.25))
	require.NoError(t, f.SetCellValue("Revenue", "D2", "Actual"))
	require.NoError(t, f.MergeCell("Revenue", "D2", "F2"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	wb, err := Load("company_model.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, FileTypeXLSX, wb.FileType)
	assert.Equal(t, []string{"Revenue"}, wb.SheetNames())

	sheet, err := wb.Sheet("Revenue")
	require.NoError(t, err)

	label, _ := sheet.At(29, "A")
	assert.Equal(t, Text, label.Kind)
	assert.Equal(t, "Total MRR", label.String())

	typed, _ := sheet.At(29, "J")
	assert.Equal(t, Text, typed.Kind, "human-typed amounts stay text")
	assert.Equal(t, "1.234,56", typed.Text)

	num, _ := sheet.At(29, "K")
	assert.Equal(t, Number, num.Kind)
	assert.InDelta(t, 1500.25, num.Number, 1e-9)

	for _, col := range []string{"D", "E", "F"} {
		banner, _ := sheet.At(2, col)
		assert.Equal(t, "Actual", banner.String(), "merged banner should cover %s", col)
	}
}

func TestLoad_XLSXCorrupt(t *testing.T) {
	_, err := Load("broken.xlsx", []byte("not a zip"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, FileTypeXLSX, le.Format)
}

func TestLoad_CSV(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Metric,Mar-24,Apr-24\nTotal MRR,\"1.234,56\",1300\n")...)
	wb, err := Load("export.csv", content)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	s := wb.Sheets[0]
	assert.Equal(t, "export", s.Name)
	assert.Equal(t, "Metric", s.Cell(0, 0).String())
	assert.Equal(t, Text, s.Cell(1, 1).Kind)
	assert.Equal(t, Number, s.Cell(1, 2).Kind)
	assert.Equal(t, 1300.0, s.Cell(1, 2).Number)
}

func TestLoad_TSV(t *testing.T) {
	wb, err := Load("export.tsv", []byte("a\tb\n1\t2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, wb.Sheets[0].Cell(1, 1).Number)
}

func TestLoad_HTML(t *testing.T) {
	html := `<html><body>
<p>Monthly report</p>
<table>
  <tr><th></th><th colspan="2">Actual</th><th>Budget</th></tr>
  <tr><td>Metric</td><td>Mar-24</td><td>Apr-24</td><td>Mar-25</td></tr>
  <tr><td>Revenue</td><td>$ 100,000</td><td>101,500</td><td>120000</td></tr>
</table>
<table><caption>Headcount</caption><tr><td>FTE</td><td>42</td></tr></table>
</body></html>`
	wb, err := Load("report.html", []byte(html))
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)

	s := wb.Sheets[0]
	assert.Equal(t, "Table 1", s.Name)
	assert.Equal(t, "Actual", s.Cell(0, 1).String())
	assert.Equal(t, "Actual", s.Cell(0, 2).String())
	assert.Equal(t, "Budget", s.Cell(0, 3).String())
	assert.Equal(t, "$ 100,000", s.Cell(2, 1).Text)
	assert.Equal(t, Number, s.Cell(2, 3).Kind)

	assert.Equal(t, "Headcount", wb.Sheets[1].Name)
}

func TestLoad_HTMLWithoutTables(t *testing.T) {
	_, err := Load("note.html", []byte("<p>nothing here</p>"))
	assert.Error(t, err)
}

func TestLoad_Markdown(t *testing.T) {
	md := "# Board update\n\n| Metric | Mar-24 | Apr-24 |\n|---|---|---|\n| Total MRR | 1.234,56 | 1300 |\n| Customers | 40 | 42 |\n"
	wb, err := Load("update.md", []byte(md))
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	s := wb.Sheets[0]
	assert.Equal(t, "Table 1", s.Name)
	require.Len(t, s.Rows, 3)
	assert.Equal(t, "Metric", s.Cell(0, 0).String())
	assert.Equal(t, "Total MRR", s.Cell(1, 0).String())
	assert.Equal(t, "1.234,56", s.Cell(1, 1).Text)
	assert.Equal(t, 42.0, s.Cell(2, 2).Number)
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load("board_deck.pdf", []byte("%PDF-1.7"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, IsGridFile("board_deck.pdf"))
	assert.True(t, IsGridFile("Model.XLSX"))
	assert.Equal(t, "pdf", FileType("board_deck.pdf"))
}

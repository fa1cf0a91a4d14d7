package grid

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

func loadXLSX(content []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		// Raw values keep dates as serial numbers and amounts unformatted.
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}

		sheet := &Sheet{Name: name, Rows: make([][]Cell, len(rows))}
		for r, row := range rows {
			cells := make([]Cell, len(row))
			for c, raw := range row {
				cells[c] = xlsxCell(f, name, r, c, raw)
			}
			sheet.Rows[r] = cells
		}
		if err := spreadMergedLabels(f, sheet); err != nil {
			return nil, fmt.Errorf("read merged cells of %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

// xlsxCell keeps string-typed cells as Text even when they look numeric,
// so "1.234,56" typed by a human is routed through the normalizer.
func xlsxCell(f *excelize.File, sheet string, row, col int, raw string) Cell {
	if raw == "" {
		return Cell{}
	}
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err == nil {
		if typ, err := f.GetCellType(sheet, ref); err == nil {
			switch typ {
			case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
				return TextCell(raw)
			}
		}
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return NumberCell(v, raw)
	}
	return TextCell(raw)
}

// spreadMergedLabels copies the text of a merged range (e.g. an "Actual"
// banner over twelve month columns) into every cell the range covers.
func spreadMergedLabels(f *excelize.File, sheet *Sheet) error {
	merged, err := f.GetMergeCells(sheet.Name)
	if err != nil {
		return err
	}
	for _, m := range merged {
		startCol, startRow, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		origin := sheet.Cell(startRow-1, startCol-1)
		if origin.Kind != Text {
			continue
		}
		for r := startRow - 1; r < endRow; r++ {
			for c := startCol - 1; c < endCol; c++ {
				sheet.set(r, c, origin)
			}
		}
	}
	return nil
}

package grid

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ColumnLetter converts a 0-based column index to its spreadsheet label (0 -> A, 26 -> AA).
func ColumnLetter(idx int) string {
	name, err := excelize.ColumnNumberToName(idx + 1)
	if err != nil {
		return ""
	}
	return name
}

// ColumnIndex converts a spreadsheet column label to a 0-based index.
func ColumnIndex(letter string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(letter))
	if err != nil {
		return -1, fmt.Errorf("invalid column %q: %w", letter, err)
	}
	return n - 1, nil
}

// CellRef renders 0-based coordinates as a human cell reference ("J29").
func CellRef(row, col int) string {
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return ref
}

// CompareColumns orders column letters the way they appear in a sheet.
func CompareColumns(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

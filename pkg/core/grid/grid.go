// Package grid holds the in-memory representation of sheet-structured
// documents and the loaders that build it.
package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported grid format")
	ErrSheetNotFound     = errors.New("sheet not found")
)

// LoadError wraps a failure to turn a file into a Workbook.
type LoadError struct {
	Format string
	File   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.File, e.Format, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type CellKind int

const (
	Empty CellKind = iota
	Number
	Text
)

// Cell is one grid value. Text keeps the raw source text for every kind.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
}

func NumberCell(v float64, raw string) Cell {
	if raw == "" {
		raw = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return Cell{Kind: Number, Number: v, Text: raw}
}

func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: Text, Text: s}
}

// ParseCell types a raw string: plain machine-formatted numbers become
// Number cells, everything else stays Text for the numeric normalizer.
func ParseCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Cell{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberCell(v, raw)
	}
	return TextCell(raw)
}

func (c Cell) IsEmpty() bool { return c.Kind == Empty }

// String renders the cell for digests and labels.
func (c Cell) String() string {
	return strings.TrimSpace(c.Text)
}

// Sheet is an ordered sequence of rows; rows may be ragged.
type Sheet struct {
	Name string
	Rows [][]Cell
}

// Cell returns the cell at 0-based coordinates, Empty when out of range.
func (s *Sheet) Cell(row, col int) Cell {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return Cell{}
	}
	return s.Rows[row][col]
}

// At returns the cell at a 1-based row and a column letter.
func (s *Sheet) At(row int, column string) (Cell, error) {
	col, err := ColumnIndex(column)
	if err != nil {
		return Cell{}, err
	}
	return s.Cell(row-1, col), nil
}

// set writes a cell, growing the row storage when needed.
func (s *Sheet) set(row, col int, c Cell) {
	for len(s.Rows) <= row {
		s.Rows = append(s.Rows, nil)
	}
	for len(s.Rows[row]) <= col {
		s.Rows[row] = append(s.Rows[row], Cell{})
	}
	s.Rows[row][col] = c
}

func (s *Sheet) MaxColumns() int {
	max := 0
	for _, r := range s.Rows {
		if len(r) > max {
			max = len(r)
		}
	}
	return max
}

// Workbook is a named collection of sheets.
type Workbook struct {
	Name     string
	FileType string
	Sheets   []*Sheet
}

func (w *Workbook) Sheet(name string) (*Sheet, error) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// NewSheetFromStrings builds a sheet typing each value with ParseCell.
func NewSheetFromStrings(name string, rows [][]string) *Sheet {
	sheet := &Sheet{Name: name, Rows: make([][]Cell, len(rows))}
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = ParseCell(v)
		}
		sheet.Rows[i] = cells
	}
	return sheet
}

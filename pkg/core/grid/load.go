package grid

import (
	"path/filepath"
	"strings"
)

const (
	FileTypeXLSX     = "xlsx"
	FileTypeCSV      = "csv"
	FileTypeHTML     = "html"
	FileTypeMarkdown = "markdown"
)

// FileType returns the grid file type for filename, or the bare extension
// when the file is not grid-structured (e.g. "pdf").
func FileType(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "xlsx", "xlsm", "xltx":
		return FileTypeXLSX
	case "csv", "tsv":
		return FileTypeCSV
	case "html", "htm":
		return FileTypeHTML
	case "md", "markdown":
		return FileTypeMarkdown
	}
	return ext
}

// IsGridFile reports whether Load understands filename.
func IsGridFile(filename string) bool {
	switch FileType(filename) {
	case FileTypeXLSX, FileTypeCSV, FileTypeHTML, FileTypeMarkdown:
		return true
	}
	return false
}

// Load builds a Workbook from raw document bytes, dispatching on the
// filename extension.
func Load(filename string, content []byte) (*Workbook, error) {
	var (
		wb  *Workbook
		err error
	)
	fileType := FileType(filename)
	switch fileType {
	case FileTypeXLSX:
		wb, err = loadXLSX(content)
	case FileTypeCSV:
		delim := ','
		if strings.EqualFold(filepath.Ext(filename), ".tsv") {
			delim = '\t'
		}
		wb, err = loadCSV(filename, content, delim)
	case FileTypeHTML:
		wb, err = loadHTML(content)
	case FileTypeMarkdown:
		wb, err = loadMarkdown(content)
	default:
		return nil, &LoadError{Format: fileType, File: filename, Err: ErrUnsupportedFormat}
	}
	if err != nil {
		return nil, &LoadError{Format: fileType, File: filename, Err: err}
	}
	wb.Name = filepath.Base(filename)
	wb.FileType = fileType
	return wb, nil
}

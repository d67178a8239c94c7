// Package sheet loads uploaded pricelist files into a plain row grid so the
// rest of the pipeline never touches file-format specifics.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for anything that is not .xlsx or .csv.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when the file contains no usable rows.
	ErrEmptyFile = errors.New("file contains no readable data")
)

// Grid holds raw cell text, rows by columns. Rows may be ragged; use Cell for
// bounds-safe access.
type Grid [][]string

// Cell returns the trimmed value at (row, col) or "" when out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	r := g[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// MaxCols returns the widest row in the grid.
func (g Grid) MaxCols() int {
	max := 0
	for _, r := range g {
		if len(r) > max {
			max = len(r)
		}
	}
	return max
}

// Load parses file bytes into a Grid, dispatching on the filename extension.
func Load(fileName string, data []byte) (Grid, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		return loadXLSX(data)
	case ".csv":
		return loadCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

func loadXLSX(data []byte) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	// Pricelists ship their data on the first sheet.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return validate(Grid(rows))
}

func loadCSV(data []byte) (Grid, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var grid Grid
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		grid = append(grid, record)
	}
	return validate(grid)
}

func validate(g Grid) (Grid, error) {
	if len(g) == 0 {
		return nil, ErrEmptyFile
	}
	nonEmpty := false
	for _, row := range g {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				nonEmpty = true
				break
			}
		}
		if nonEmpty {
			break
		}
	}
	if !nonEmpty {
		return nil, ErrEmptyFile
	}
	if g.MaxCols() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 columns", ErrEmptyFile)
	}
	return g, nil
}

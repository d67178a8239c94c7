package sheet

import (
	"errors"
	"testing"
)

func TestLoadCSV(t *testing.T) {
	data := []byte("Brand,Code,Price\nYEALINK,T31P,\"1,299.00\"\n,,\n")
	grid, err := Load("pricelist.csv", data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("rows = %d, want 3", len(grid))
	}
	if got := grid.Cell(1, 2); got != "1,299.00" {
		t.Errorf("cell(1,2) = %q, want %q", got, "1,299.00")
	}
}

func TestLoadCSVRaggedRows(t *testing.T) {
	data := []byte("a,b,c\nd\ne,f\n")
	grid, err := Load("ragged.csv", data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if grid.MaxCols() != 3 {
		t.Errorf("MaxCols = %d, want 3", grid.MaxCols())
	}
	if got := grid.Cell(1, 2); got != "" {
		t.Errorf("out-of-range cell = %q, want empty", got)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("pricelist.ods", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	if _, err := Load("empty.csv", nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("no bytes: err = %v, want ErrEmptyFile", err)
	}
	if _, err := Load("blank.csv", []byte(" , ,\n,,\n")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("blank cells: err = %v, want ErrEmptyFile", err)
	}
	if _, err := Load("narrow.csv", []byte("only\none\ncolumn\n")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("single column: err = %v, want ErrEmptyFile", err)
	}
}

func TestCellTrimsWhitespace(t *testing.T) {
	grid := Grid{{"  padded  ", "x"}}
	if got := grid.Cell(0, 0); got != "padded" {
		t.Errorf("Cell = %q, want trimmed value", got)
	}
	if got := grid.Cell(-1, 0); got != "" {
		t.Errorf("negative row = %q, want empty", got)
	}
}

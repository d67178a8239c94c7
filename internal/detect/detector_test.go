package detect

import (
	"context"
	"testing"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

func TestClassifyHorizontalMultiBrand(t *testing.T) {
	grid := sheet.Grid{
		{"Brand: JABRA", "", "Code", "Price Excl VAT", "Brand: YEALINK", "", "Code", "Price"},
		{"", "", "EVOLVE2-65", "1,299.00", "", "", "T31P", "R 899.00"},
		{"", "", "SPEAK-510", "2 499.00", "", "", "T33G", "P.O.R"},
	}

	report, err := NewHeuristic(nil).Classify(context.Background(), grid)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if report.Layout != model.LayoutHorizontalMultiBrand {
		t.Fatalf("layout = %s, want %s", report.Layout, model.LayoutHorizontalMultiBrand)
	}
	if len(report.Brands) != 2 {
		t.Fatalf("brands = %v, want 2", report.Brands)
	}
	if report.DataStartRow != 1 {
		t.Errorf("dataStartRow = %d, want 1", report.DataStartRow)
	}
	if report.EstimatedTotal != 4 {
		t.Errorf("estimatedTotal = %d, want 4", report.EstimatedTotal)
	}

	byBrand := make(map[string]model.BrandColumns)
	for _, c := range report.Columns {
		byBrand[c.Brand] = c
	}
	jabra := byBrand["JABRA"]
	if jabra.CodeCol != 2 || jabra.PriceCol != 3 {
		t.Errorf("JABRA columns = (%d,%d), want (2,3)", jabra.CodeCol, jabra.PriceCol)
	}
	yealink := byBrand["YEALINK"]
	if yealink.CodeCol != 6 || yealink.PriceCol != 7 {
		t.Errorf("YEALINK columns = (%d,%d), want (6,7)", yealink.CodeCol, yealink.PriceCol)
	}

	rows := Extract(grid, report)
	if len(rows) != 4 {
		t.Fatalf("extracted %d rows, want 4", len(rows))
	}
}

func TestClassifyVerticalSingleBrand(t *testing.T) {
	grid := sheet.Grid{
		{"YEALINK PRICELIST", "", ""},
		{"Stock Code", "Description", "Price"},
		{"T31P", "Entry level IP phone with two line keys", "899.00"},
		{"T33G", "Gigabit IP phone for the open office desk", "1,199.00"},
		{"W73P", "DECT base and handset bundle", "TBC"},
	}

	report, err := NewHeuristic(nil).Classify(context.Background(), grid)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if report.Layout != model.LayoutVerticalSingleBrand {
		t.Fatalf("layout = %s, want %s", report.Layout, model.LayoutVerticalSingleBrand)
	}
	if report.DataStartRow != 2 {
		t.Errorf("dataStartRow = %d, want 2 (past the header text row)", report.DataStartRow)
	}
	if len(report.Columns) != 1 {
		t.Fatalf("columns = %d, want 1", len(report.Columns))
	}
	cols := report.Columns[0]
	if cols.CodeCol != 0 || cols.PriceCol != 2 {
		t.Errorf("columns = (%d,%d), want (0,2)", cols.CodeCol, cols.PriceCol)
	}
	if report.EstimatedTotal != 3 {
		t.Errorf("estimatedTotal = %d, want 3", report.EstimatedTotal)
	}
	if !report.Ready {
		t.Errorf("report not ready: issues=%v", report.Issues)
	}
}

func TestClassifyUnrecognized(t *testing.T) {
	grid := sheet.Grid{
		{"Quarterly revenue", "Q1", "Q2"},
		{"EMEA", "100", "200"},
		{"APAC", "150", "250"},
	}

	report, err := NewHeuristic(nil).Classify(context.Background(), grid)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if report.Layout != model.LayoutUnrecognized {
		t.Fatalf("layout = %s, want %s", report.Layout, model.LayoutUnrecognized)
	}
	if report.Ready {
		t.Error("unrecognized layout must not be ready")
	}
	if len(report.Issues) == 0 {
		t.Error("unrecognized layout should report issues")
	}
	if len(report.ReadyBrands()) != 0 {
		t.Errorf("ready brands = %v, want none", report.ReadyBrands())
	}
}

func TestClassifyCustomVocabulary(t *testing.T) {
	grid := sheet.Grid{
		{"ACMECORP", "Code", "Price"},
		{"", "AC-1", "10.00"},
	}

	report, err := NewHeuristic([]string{"ACMECORP"}).Classify(context.Background(), grid)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if report.Layout != model.LayoutVerticalSingleBrand {
		t.Fatalf("layout = %s, want %s", report.Layout, model.LayoutVerticalSingleBrand)
	}
	if len(report.Brands) != 1 || report.Brands[0] != "ACMECORP" {
		t.Errorf("brands = %v, want [ACMECORP]", report.Brands)
	}
}

func TestClosestColumnTieBreak(t *testing.T) {
	if got := closestColumn([]int{5, 3}, 4); got != 5 {
		t.Errorf("closestColumn = %d, want first candidate 5 on tie", got)
	}
	if got := closestColumn([]int{9, 2}, 1); got != 2 {
		t.Errorf("closestColumn = %d, want 2", got)
	}
	if got := closestColumn(nil, 1); got != -1 {
		t.Errorf("closestColumn = %d, want -1 for no candidates", got)
	}
}

func TestLooksLikeCode(t *testing.T) {
	for _, v := range []string{"T31P", "EVOLVE2-65", "AC_100", "SKU/22"} {
		if !looksLikeCode(v) {
			t.Errorf("looksLikeCode(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"1299.00", "1,299", "x", "has spaces", ""} {
		if looksLikeCode(v) {
			t.Errorf("looksLikeCode(%q) = true, want false", v)
		}
	}
}

func TestRegionQualityIgnoresTrailingPadding(t *testing.T) {
	grid := sheet.Grid{
		{"YEALINK PRICELIST", "", ""},
		{"Stock Code", "Description", "Price"},
		{"T31P", "", "899.00"},
		{"T33G", "", "1199.00"},
		{"", "", ""},
		{"", "", ""},
		{"", "", ""},
	}
	cols := model.BrandColumns{Brand: "YEALINK", CodeCol: 0, PriceCol: 2, DescCol: -1}
	if q := regionQuality(grid, cols, 2); q != 1.0 {
		t.Errorf("quality = %v, want 1.0 with trailing blank rows ignored", q)
	}

	// A genuinely gappy region still scores below 1.
	grid[3][2] = ""
	if q := regionQuality(grid, cols, 2); q != 0.5 {
		t.Errorf("quality = %v, want 0.5 with one row missing a price", q)
	}
}

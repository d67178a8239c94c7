package detect

import (
	"strings"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

// Extract pulls raw product rows for every ready brand in the report. Rows
// without a usable product code are skipped; a brand that resolved only one
// of its columns contributes nothing.
func Extract(grid sheet.Grid, report *model.StructureReport) []model.RawProductRow {
	var rows []model.RawProductRow
	for _, cols := range report.ReadyBrands() {
		for row := report.DataStartRow; row < len(grid); row++ {
			code := grid.Cell(row, cols.CodeCol)
			if !usableCode(code) {
				continue
			}
			rows = append(rows, model.RawProductRow{
				Brand:       cols.Brand,
				ProductCode: code,
				RawPrice:    grid.Cell(row, cols.PriceCol),
				RowIndex:    row,
			})
		}
	}
	return rows
}

// ExtractSamples returns up to limit preview rows with a best-effort price
// parse attached.
func ExtractSamples(grid sheet.Grid, report *model.StructureReport, limit int) []model.SampleProduct {
	var samples []model.SampleProduct
	for _, raw := range Extract(grid, report) {
		if len(samples) >= limit {
			break
		}
		sample := model.SampleProduct{
			Brand:       raw.Brand,
			ProductCode: raw.ProductCode,
			RawPrice:    raw.RawPrice,
			RowIndex:    raw.RowIndex,
		}
		if amount, ok, err := pricing.Parse(raw.RawPrice); err == nil && ok {
			f, _ := amount.Float64()
			sample.ParsedPrice = &f
		}
		samples = append(samples, sample)
	}
	return samples
}

func usableCode(code string) bool {
	if code == "" {
		return false
	}
	switch strings.ToLower(code) {
	case "nan", "none", "null":
		return false
	}
	return true
}

// Package detect classifies pricelist layouts and locates per-brand
// product-code and price columns.
package detect

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

const (
	// headerScanRows bounds how deep brand tokens are searched for.
	headerScanRows = 5
	// defaultBrandSpan is the column window assumed for the last brand
	// region in a header row.
	defaultBrandSpan = 3
	// classifySampleRows bounds value-based column classification.
	classifySampleRows = 30
)

var codeHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`stock.?code`),
	regexp.MustCompile(`product.?code`),
	regexp.MustCompile(`item.?code`),
	regexp.MustCompile(`sku`),
	regexp.MustCompile(`part.?number`),
	regexp.MustCompile(`model`),
	regexp.MustCompile(`code`),
}

var priceHeaderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`price`),
	regexp.MustCompile(`cost`),
	regexp.MustCompile(`msrp`),
	regexp.MustCompile(`retail`),
	regexp.MustCompile(`excl.*vat`),
	regexp.MustCompile(`incl.*vat`),
}

// DefaultVocabulary lists supplier brands recognized out of the box. The
// active vocabulary is configuration, not ambient state.
var DefaultVocabulary = []string{
	"YEALINK", "JABRA", "DNAKE", "CALL4TEL", "LG", "SHELLY",
	"MIKROTIK", "ZYXEL", "TP-LINK", "VILO", "CAMBIUM", "BLUETTI",
	"MOTOROLA", "NEAT", "LOGITECH", "TELRAD", "HUAWEI", "TELTONICA",
	"SAMSUNG", "NETGEAR", "MINIX",
}

// Heuristic is the deterministic classifier. It is always available and is
// the reference implementation the tests run against.
type Heuristic struct {
	vocabulary []string
}

// NewHeuristic builds a classifier over the given brand vocabulary. Tokens
// are matched case-insensitively as substrings of header cells.
func NewHeuristic(vocabulary []string) *Heuristic {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	upper := make([]string, len(vocabulary))
	for i, v := range vocabulary {
		upper[i] = strings.ToUpper(strings.TrimSpace(v))
	}
	return &Heuristic{vocabulary: upper}
}

type brandHit struct {
	brand string
	row   int
	col   int
}

// Classify inspects the grid and produces a structure report. An
// unrecognized layout is a valid terminal classification, never an error.
func (h *Heuristic) Classify(_ context.Context, grid sheet.Grid) (*model.StructureReport, error) {
	report := &model.StructureReport{
		Layout:    model.LayoutUnrecognized,
		TotalRows: len(grid),
	}

	hits, headerRows := h.findBrandHits(grid)
	if len(hits) == 0 {
		report.DataStartRow = 1
		report.Issues = append(report.Issues, "no known brand tokens found in header rows")
		report.Recommendations = append(report.Recommendations, "verify file format and brand placement, or extend the brand vocabulary")
		return report, nil
	}

	dataStart := maxInt(headerRows) + 1

	regions := buildRegions(hits, grid.MaxCols())
	if len(regions) >= 2 {
		report.Layout = model.LayoutHorizontalMultiBrand
	} else {
		report.Layout = model.LayoutVerticalSingleBrand
	}

	// Resolve columns first: header text may occupy rows below the brand
	// row, and data only starts after the last header row seen.
	colsList := make([]model.BrandColumns, 0, len(regions))
	lastHeaderRow := -1
	for _, region := range regions {
		cols, headerTextRow := resolveColumns(grid, region, dataStart)
		colsList = append(colsList, cols)
		if headerTextRow > lastHeaderRow {
			lastHeaderRow = headerTextRow
		}
	}
	if lastHeaderRow+1 > dataStart {
		dataStart = lastHeaderRow + 1
	}
	report.DataStartRow = dataStart

	for _, cols := range colsList {
		cols.Quality = regionQuality(grid, cols, dataStart)
		report.Columns = append(report.Columns, cols)
		report.Brands = append(report.Brands, cols.Brand)
		if cols.CodeCol < 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("no product-code column found for brand %s", cols.Brand))
		}
		if cols.PriceCol < 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("no price column found for brand %s", cols.Brand))
		}
	}

	report.EstimatedTotal = countExtractable(grid, report)
	report.Samples = ExtractSamples(grid, report, 20)
	report.SuccessRate = sampleSuccessRate(report.Samples)
	annotate(report)
	return report, nil
}

func (h *Heuristic) findBrandHits(grid sheet.Grid) ([]brandHit, []int) {
	var hits []brandHit
	var headerRows []int
	limit := len(grid)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for row := 0; row < limit; row++ {
		rowHit := false
		for col := 0; col < len(grid[row]); col++ {
			cell := strings.ToUpper(grid.Cell(row, col))
			if cell == "" {
				continue
			}
			for _, brand := range h.vocabulary {
				if strings.Contains(cell, brand) {
					hits = append(hits, brandHit{brand: brand, row: row, col: col})
					rowHit = true
					break
				}
			}
		}
		if rowHit {
			headerRows = append(headerRows, row)
		}
	}
	return dedupeHits(hits), headerRows
}

// dedupeHits keeps the first occurrence of each brand so merged-header
// artifacts (a brand name spanning several columns) yield one region.
func dedupeHits(hits []brandHit) []brandHit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, hit := range hits {
		if seen[hit.brand] {
			continue
		}
		seen[hit.brand] = true
		out = append(out, hit)
	}
	return out
}

// buildRegions converts brand hits into column ranges. Regions in the same
// header row extend to the column before the next brand; the last region
// gets the default span. A single brand claims the whole sheet width.
func buildRegions(hits []brandHit, maxCols int) []brandRegion {
	if len(hits) == 1 {
		return []brandRegion{{
			brand:     hits[0].brand,
			headerRow: hits[0].row,
			startCol:  0,
			endCol:    maxCols - 1,
		}}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].row != hits[j].row {
			return hits[i].row < hits[j].row
		}
		return hits[i].col < hits[j].col
	})
	regions := make([]brandRegion, 0, len(hits))
	for i, hit := range hits {
		end := hit.col + defaultBrandSpan
		if i+1 < len(hits) && hits[i+1].row == hit.row {
			end = hits[i+1].col - 1
		}
		if end >= maxCols {
			end = maxCols - 1
		}
		regions = append(regions, brandRegion{
			brand:     hit.brand,
			headerRow: hit.row,
			startCol:  hit.col,
			endCol:    end,
		})
	}
	return regions
}

type brandRegion struct {
	brand     string
	headerRow int
	startCol  int
	endCol    int
}

// resolveColumns identifies the product-code and price columns inside one
// brand region: header patterns first, then value-based classification for
// anything the headers left unresolved. The second return value is the last
// row in which header text was matched, or -1.
func resolveColumns(grid sheet.Grid, region brandRegion, dataStart int) (model.BrandColumns, int) {
	cols := model.BrandColumns{
		Brand:     region.brand,
		HeaderRow: region.headerRow,
		StartCol:  region.startCol,
		EndCol:    region.endCol,
		CodeCol:   -1,
		PriceCol:  -1,
		DescCol:   -1,
	}

	headerTextRow := -1
	var priceCandidates []int
	for col := region.startCol; col <= region.endCol; col++ {
		header, row := columnHeader(grid, region, col)
		switch {
		case cols.CodeCol < 0 && matchesAny(header, codeHeaderPatterns):
			cols.CodeCol = col
		case matchesAny(header, priceHeaderPatterns):
			priceCandidates = append(priceCandidates, col)
		default:
			continue
		}
		if row > headerTextRow {
			headerTextRow = row
		}
	}

	if cols.CodeCol < 0 {
		for col := region.startCol; col <= region.endCol; col++ {
			if containsInt(priceCandidates, col) {
				continue
			}
			if columnLooksLikeCodes(grid, col, dataStart) {
				cols.CodeCol = col
				break
			}
		}
	}
	if len(priceCandidates) == 0 {
		for col := region.startCol; col <= region.endCol; col++ {
			if col == cols.CodeCol {
				continue
			}
			if columnLooksLikePrices(grid, col, dataStart) {
				priceCandidates = append(priceCandidates, col)
			}
		}
	}
	cols.PriceCol = closestColumn(priceCandidates, cols.CodeCol)
	cols.DescCol = descriptionColumn(grid, region, cols, dataStart)
	return cols, headerTextRow
}

// columnHeader returns the first non-empty cell for the column, scanning the
// brand row itself (headers often share it) and the two rows below. The
// brand-token cell is skipped.
func columnHeader(grid sheet.Grid, region brandRegion, col int) (string, int) {
	for row := region.headerRow; row <= region.headerRow+2 && row < len(grid); row++ {
		if row == region.headerRow && col == region.startCol {
			continue
		}
		if v := grid.Cell(row, col); v != "" {
			return strings.ToLower(v), row
		}
	}
	return "", -1
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// columnLooksLikeCodes reports whether the column's data values are
// predominantly short alphanumeric strings.
func columnLooksLikeCodes(grid sheet.Grid, col, dataStart int) bool {
	total, matched := 0, 0
	for row := dataStart; row < len(grid) && row < dataStart+classifySampleRows; row++ {
		v := grid.Cell(row, col)
		if v == "" {
			continue
		}
		total++
		if looksLikeCode(v) {
			matched++
		}
	}
	return total > 0 && matched*10 >= total*6
}

// columnLooksLikePrices reports whether the column's data values are
// predominantly numeric or currency-like, counting recognized unavailable
// tokens as price-like.
func columnLooksLikePrices(grid sheet.Grid, col, dataStart int) bool {
	total, matched := 0, 0
	for row := dataStart; row < len(grid) && row < dataStart+classifySampleRows; row++ {
		v := grid.Cell(row, col)
		if v == "" {
			continue
		}
		total++
		if pricing.Unavailable(v) {
			matched++
			continue
		}
		if _, _, err := pricing.Parse(v); err == nil {
			matched++
		}
	}
	return total > 0 && matched*10 >= total*6
}

func looksLikeCode(v string) bool {
	if len(v) < 2 || len(v) > 24 {
		return false
	}
	if _, _, err := pricing.Parse(v); err == nil {
		// Pure numbers are prices, not codes.
		return false
	}
	for _, r := range v {
		ok := r == '-' || r == '_' || r == '.' || r == '/' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return false
		}
	}
	return true
}

// closestColumn picks the candidate with the fewest columns between it and
// the code column.
func closestColumn(candidates []int, codeCol int) int {
	if len(candidates) == 0 {
		return -1
	}
	if codeCol < 0 {
		return candidates[0]
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if abs(c-codeCol) < abs(best-codeCol) {
			best = c
		}
	}
	return best
}

// descriptionColumn returns a remaining column whose values are mostly long
// free text, or -1.
func descriptionColumn(grid sheet.Grid, region brandRegion, cols model.BrandColumns, dataStart int) int {
	for col := region.startCol; col <= region.endCol; col++ {
		if col == cols.CodeCol || col == cols.PriceCol {
			continue
		}
		total, long := 0, 0
		for row := dataStart; row < len(grid) && row < dataStart+classifySampleRows; row++ {
			v := grid.Cell(row, col)
			if v == "" {
				continue
			}
			total++
			if len(v) > 20 {
				long++
			}
		}
		if total > 0 && long*2 >= total {
			return col
		}
	}
	return -1
}

func regionQuality(grid sheet.Grid, cols model.BrandColumns, dataStart int) float64 {
	if !cols.Ready() || dataStart >= len(grid) {
		return 0
	}
	// Trailing padding rows are not part of the region and must not dilute
	// the fraction.
	end := len(grid)
	for end > dataStart && grid.Cell(end-1, cols.CodeCol) == "" && grid.Cell(end-1, cols.PriceCol) == "" {
		end--
	}
	total := end - dataStart
	if total == 0 {
		return 0
	}
	both := 0
	for row := dataStart; row < end; row++ {
		if grid.Cell(row, cols.CodeCol) != "" && grid.Cell(row, cols.PriceCol) != "" {
			both++
		}
	}
	return float64(both) / float64(total)
}

func countExtractable(grid sheet.Grid, report *model.StructureReport) int {
	count := 0
	for _, cols := range report.ReadyBrands() {
		for row := report.DataStartRow; row < len(grid); row++ {
			if usableCode(grid.Cell(row, cols.CodeCol)) {
				count++
			}
		}
	}
	return count
}

func sampleSuccessRate(samples []model.SampleProduct) float64 {
	if len(samples) == 0 {
		return 0
	}
	ok := 0
	for _, s := range samples {
		if s.ParsedPrice != nil || pricing.Unavailable(s.RawPrice) {
			ok++
		}
	}
	return float64(ok) / float64(len(samples)) * 100
}

func annotate(report *model.StructureReport) {
	readyBrands := len(report.ReadyBrands())
	if readyBrands == 0 {
		report.Issues = append(report.Issues, "no extractable brands")
		report.Recommendations = append(report.Recommendations, "consider manual column mapping")
		return
	}
	switch {
	case report.SuccessRate < 50:
		report.Issues = append(report.Issues, fmt.Sprintf("low extraction success rate: %.0f%%", report.SuccessRate))
		report.Recommendations = append(report.Recommendations, "review price formatting and column structure")
	case report.SuccessRate < 80:
		report.Warnings = append(report.Warnings, fmt.Sprintf("moderate extraction success rate: %.0f%%", report.SuccessRate))
		report.Recommendations = append(report.Recommendations, "some price parsing may fail")
	}
	if report.EstimatedTotal > 20000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("large dataset: %d products", report.EstimatedTotal))
		report.Recommendations = append(report.Recommendations, "processing may take several minutes")
	}
	report.Ready = len(report.Issues) == 0
}

func maxInt(vals []int) int {
	max := 0
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	return max
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func containsInt(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

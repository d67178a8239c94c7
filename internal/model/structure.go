package model

// LayoutType classifies how brands and their columns are arranged in a sheet.
type LayoutType string

const (
	// LayoutHorizontalMultiBrand covers sheets where two or more brand
	// regions sit side by side in the same header row.
	LayoutHorizontalMultiBrand LayoutType = "horizontal-multi-brand"
	// LayoutVerticalSingleBrand covers sheets with one brand context and a
	// single product-code/price column pair running down the sheet.
	LayoutVerticalSingleBrand LayoutType = "vertical-single-brand"
	// LayoutUnrecognized is a terminal classification, not an error.
	LayoutUnrecognized LayoutType = "unrecognized"
)

// BrandColumns maps one detected brand region to its columns. Column indexes
// are zero-based; -1 means unresolved.
type BrandColumns struct {
	Brand     string  `json:"brand"`
	HeaderRow int     `json:"headerRow"`
	StartCol  int     `json:"startCol"`
	EndCol    int     `json:"endCol"`
	CodeCol   int     `json:"codeCol"`
	PriceCol  int     `json:"priceCol"`
	DescCol   int     `json:"descCol"`
	Quality   float64 `json:"quality"`
}

// Ready reports whether both the product-code and price columns resolved.
// Brands that are not ready are excluded from extraction.
func (b BrandColumns) Ready() bool {
	return b.CodeCol >= 0 && b.PriceCol >= 0
}

// SampleProduct is a preview row included in the structure report so callers
// can eyeball extraction quality before committing to a full run.
type SampleProduct struct {
	Brand       string   `json:"brand"`
	ProductCode string   `json:"productCode"`
	RawPrice    string   `json:"rawPrice"`
	ParsedPrice *float64 `json:"parsedPrice,omitempty"`
	RowIndex    int      `json:"rowIndex"`
}

// StructureReport is the output of structure detection. An unrecognized
// layout still produces a report with Issues populated.
type StructureReport struct {
	Layout          LayoutType      `json:"layoutType"`
	Brands          []string        `json:"brands"`
	Columns         []BrandColumns  `json:"columns"`
	DataStartRow    int             `json:"dataStartRow"`
	TotalRows       int             `json:"totalRows"`
	EstimatedTotal  int             `json:"estimatedTotal"`
	Samples         []SampleProduct `json:"samples,omitempty"`
	SuccessRate     float64         `json:"successRate"`
	Issues          []string        `json:"issues,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Ready           bool            `json:"ready"`
}

// ReadyBrands returns the column maps that resolved both required columns.
func (r *StructureReport) ReadyBrands() []BrandColumns {
	out := make([]BrandColumns, 0, len(r.Columns))
	for _, c := range r.Columns {
		if c.Ready() {
			out = append(out, c)
		}
	}
	return out
}

package model

import (
	"github.com/shopspring/decimal"
)

// RawProductRow is an extracted but not yet normalized row. It is produced by
// extraction and consumed by the normalizer, never persisted.
type RawProductRow struct {
	Brand       string `json:"brand"`
	ProductCode string `json:"productCode"`
	RawPrice    string `json:"rawPrice"`
	RowIndex    int    `json:"rowIndex"`
}

// NormalizedProduct is a fully priced row ready for persistence. Nil price
// fields mean "price on request": the product is retained but marked
// non-priceable rather than silently dropped.
type NormalizedProduct struct {
	Brand        string           `json:"brand"`
	ProductCode  string           `json:"productCode"`
	PriceExclVAT *decimal.Decimal `json:"priceExclVat,omitempty"`
	PriceInclVAT *decimal.Decimal `json:"priceInclVat,omitempty"`
	RetailPrice  *decimal.Decimal `json:"retailPrice,omitempty"`
	Currency     string           `json:"currency"`
	Priceable    bool             `json:"priceable"`
	RowIndex     int              `json:"rowIndex"`
}

// PricingConfig controls normalization, validation, and batching for one
// session. It is resolved once before processing starts and immutable after.
type PricingConfig struct {
	MarkupPercent     float64 `json:"markupPercent"`
	VATRate           float64 `json:"vatRate"`
	VATIncluded       bool    `json:"vatIncluded"`
	Currency          string  `json:"currency"`
	BatchSize         int     `json:"batchSize"`
	SkipInvalidPrices bool    `json:"skipInvalidPrices"`
	RequireBrand      bool    `json:"requireBrand"`
	RequireCode       bool    `json:"requireCode"`
	RequirePrice      bool    `json:"requirePrice"`
	MinPrice          float64 `json:"minPrice"`
	MaxPrice          float64 `json:"maxPrice"`
}

// ConfigOverrides carries explicit user-supplied values. Nil fields fall
// through to structure-derived recommendations and then system defaults.
type ConfigOverrides struct {
	MarkupPercent     *float64 `json:"markupPercent,omitempty"`
	VATRate           *float64 `json:"vatRate,omitempty"`
	VATIncluded       *bool    `json:"vatIncluded,omitempty"`
	Currency          *string  `json:"currency,omitempty"`
	BatchSize         *int     `json:"batchSize,omitempty"`
	SkipInvalidPrices *bool    `json:"skipInvalidPrices,omitempty"`
	RequireBrand      *bool    `json:"requireBrand,omitempty"`
	RequireCode       *bool    `json:"requireCode,omitempty"`
	RequirePrice      *bool    `json:"requirePrice,omitempty"`
	MinPrice          *float64 `json:"minPrice,omitempty"`
	MaxPrice          *float64 `json:"maxPrice,omitempty"`
}

// Merge layers other on top of o, field by field: values supplied in other
// win. Either argument may be nil.
func (o *ConfigOverrides) Merge(other *ConfigOverrides) *ConfigOverrides {
	if o == nil {
		return other
	}
	if other == nil {
		return o
	}
	merged := *o
	if other.MarkupPercent != nil {
		merged.MarkupPercent = other.MarkupPercent
	}
	if other.VATRate != nil {
		merged.VATRate = other.VATRate
	}
	if other.VATIncluded != nil {
		merged.VATIncluded = other.VATIncluded
	}
	if other.Currency != nil {
		merged.Currency = other.Currency
	}
	if other.BatchSize != nil {
		merged.BatchSize = other.BatchSize
	}
	if other.SkipInvalidPrices != nil {
		merged.SkipInvalidPrices = other.SkipInvalidPrices
	}
	if other.RequireBrand != nil {
		merged.RequireBrand = other.RequireBrand
	}
	if other.RequireCode != nil {
		merged.RequireCode = other.RequireCode
	}
	if other.RequirePrice != nil {
		merged.RequirePrice = other.RequirePrice
	}
	if other.MinPrice != nil {
		merged.MinPrice = other.MinPrice
	}
	if other.MaxPrice != nil {
		merged.MaxPrice = other.MaxPrice
	}
	return &merged
}

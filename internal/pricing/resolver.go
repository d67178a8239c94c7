package pricing

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

// ErrInvalidConfig marks a resolved configuration outside the accepted
// bounds. It is fatal to session start.
var ErrInvalidConfig = errors.New("invalid config")

// Defaults is the system fallback configuration applied when neither the
// caller nor the structure report supplies a value.
func Defaults() model.PricingConfig {
	return model.PricingConfig{
		MarkupPercent:     10,
		VATRate:           15,
		VATIncluded:       false,
		Currency:          "ZAR",
		BatchSize:         1000,
		SkipInvalidPrices: true,
		RequireBrand:      true,
		RequireCode:       true,
		RequirePrice:      false,
		MinPrice:          0,
		MaxPrice:          1_000_000,
	}
}

// Recommend derives configuration recommendations from the detected
// structure: batch size scales with the estimated row count so small files
// report progress in useful increments.
func Recommend(report *model.StructureReport, defaults model.PricingConfig) model.PricingConfig {
	rec := defaults
	if report == nil {
		return rec
	}
	if total := report.EstimatedTotal; total > 0 {
		batch := total / 10
		if batch < 100 {
			batch = 100
		}
		if batch > defaults.BatchSize {
			batch = defaults.BatchSize
		}
		rec.BatchSize = batch
	}
	return rec
}

// Resolve merges explicit overrides onto the recommended configuration.
// Precedence is user value > recommendation > system default; the result is
// total (every field holds a value) and validated once, before processing
// starts.
func Resolve(overrides *model.ConfigOverrides, recommended model.PricingConfig) (model.PricingConfig, error) {
	cfg := recommended
	if overrides != nil {
		if v := overrides.MarkupPercent; v != nil {
			cfg.MarkupPercent = *v
		}
		if v := overrides.VATRate; v != nil {
			cfg.VATRate = *v
		}
		if v := overrides.VATIncluded; v != nil {
			cfg.VATIncluded = *v
		}
		if v := overrides.Currency; v != nil && *v != "" {
			cfg.Currency = *v
		}
		if v := overrides.BatchSize; v != nil {
			cfg.BatchSize = *v
		}
		if v := overrides.SkipInvalidPrices; v != nil {
			cfg.SkipInvalidPrices = *v
		}
		if v := overrides.RequireBrand; v != nil {
			cfg.RequireBrand = *v
		}
		if v := overrides.RequireCode; v != nil {
			cfg.RequireCode = *v
		}
		if v := overrides.RequirePrice; v != nil {
			cfg.RequirePrice = *v
		}
		if v := overrides.MinPrice; v != nil {
			cfg.MinPrice = *v
		}
		if v := overrides.MaxPrice; v != nil {
			cfg.MaxPrice = *v
		}
	}
	if err := validateConfig(cfg); err != nil {
		return model.PricingConfig{}, err
	}
	return cfg, nil
}

func validateConfig(cfg model.PricingConfig) error {
	if cfg.VATRate < 0 || cfg.VATRate > 200 {
		return fmt.Errorf("%w: vat rate %.2f outside [0,200]", ErrInvalidConfig, cfg.VATRate)
	}
	if cfg.MarkupPercent < 0 || cfg.MarkupPercent > 200 {
		return fmt.Errorf("%w: markup %.2f outside [0,200]", ErrInvalidConfig, cfg.MarkupPercent)
	}
	if cfg.MinPrice > cfg.MaxPrice {
		return fmt.Errorf("%w: min price %.2f exceeds max price %.2f", ErrInvalidConfig, cfg.MinPrice, cfg.MaxPrice)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, cfg.BatchSize)
	}
	return nil
}

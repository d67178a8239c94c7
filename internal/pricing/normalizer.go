// Package pricing converts raw price tokens into canonical amounts and
// resolves per-session pricing configuration.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

// ErrInvalidPrice marks a single-cell parse failure. Callers count these per
// row; they never abort a batch.
var ErrInvalidPrice = errors.New("invalid price")

// unavailableTokens are the recognized "price on request" markers, keyed by
// their canonical form (uppercased, spaces/dots/slashes removed).
var unavailableTokens = map[string]struct{}{
	"":     {},
	"POR":  {},
	"NA":   {},
	"TBC":  {},
	"POA":  {},
	"CALL": {},
}

// currencyStripper removes currency symbols and whitespace before numeric
// parsing. R covers ZAR-formatted supplier files.
var currencyStripper = strings.NewReplacer(
	"R", "", "r", "", "$", "", "€", "", "£", "",
	" ", "", " ", "", "\t", "",
)

// Unavailable reports whether the raw token is a recognized non-numeric
// price placeholder such as "P.O.R" or "TBC".
func Unavailable(raw string) bool {
	_, ok := unavailableTokens[canonicalToken(raw)]
	return ok
}

func canonicalToken(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '/':
			return -1
		}
		return r
	}, s)
	return s
}

// Parse maps one raw cell value to an amount. The second return value is
// false when the token is a recognized unavailable marker; that is not an
// error. Negative amounts are parse failures, not negative prices.
func Parse(raw string) (decimal.Decimal, bool, error) {
	if Unavailable(raw) {
		return decimal.Decimal{}, false, nil
	}
	cleaned := currencyStripper.Replace(strings.TrimSpace(raw))
	cleaned = normalizeSeparators(cleaned)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, false, fmt.Errorf("%w: negative amount %q", ErrInvalidPrice, raw)
	}
	return amount, true, nil
}

// normalizeSeparators rewrites the token to use "." as the decimal separator.
// When both "," and "." occur the later one is the decimal point. A single
// separator followed by exactly three digits is a thousands separator;
// followed by one or two digits it is the decimal point.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = rewriteSingleKind(s, ',', lastComma)
	case lastDot >= 0:
		s = rewriteSingleKind(s, '.', lastDot)
	}
	return s
}

func rewriteSingleKind(s string, sep byte, last int) string {
	if strings.Count(s, string(sep)) > 1 {
		// Repeated separators can only be grouping.
		return strings.ReplaceAll(s, string(sep), "")
	}
	trailing := len(s) - last - 1
	if trailing == 3 {
		return strings.ReplaceAll(s, string(sep), "")
	}
	if sep == ',' {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// Derive computes the VAT-exclusive base, the VAT-inclusive price, and the
// markup-adjusted retail price from a parsed amount. It is a pure function of
// (amount, config). When the raw amount already includes VAT the base is
// recovered by dividing the VAT rate out before markup is applied.
func Derive(amount decimal.Decimal, cfg model.PricingConfig) (excl, incl, retail decimal.Decimal) {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	vatFactor := one.Add(decimal.NewFromFloat(cfg.VATRate).Div(hundred))
	markupFactor := one.Add(decimal.NewFromFloat(cfg.MarkupPercent).Div(hundred))

	excl = amount
	if cfg.VATIncluded {
		excl = amount.Div(vatFactor)
	}
	incl = excl.Mul(vatFactor)
	retail = incl.Mul(markupFactor)
	return excl.Round(2), incl.Round(2), retail.Round(2)
}

// Normalize maps one extracted row to a NormalizedProduct. Unavailable
// prices yield a retained, non-priceable product with nil price fields.
func Normalize(row model.RawProductRow, cfg model.PricingConfig) (model.NormalizedProduct, error) {
	product := model.NormalizedProduct{
		Brand:       row.Brand,
		ProductCode: row.ProductCode,
		Currency:    cfg.Currency,
		RowIndex:    row.RowIndex,
	}
	amount, available, err := Parse(row.RawPrice)
	if err != nil {
		return model.NormalizedProduct{}, err
	}
	if !available {
		return product, nil
	}
	excl, incl, retail := Derive(amount, cfg)
	product.PriceExclVAT = &excl
	product.PriceInclVAT = &incl
	product.RetailPrice = &retail
	product.Priceable = true
	return product, nil
}

package pricing

import (
	"errors"
	"testing"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

func TestParseFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1234.56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"R 1 234.56", "1234.56"},
		{"$99", "99"},
		{"1,234", "1234"},
		{"1.234", "1234"},
		{"12,34", "12.34"},
		{"1,234,567.89", "1234567.89"},
		{"0.5", "0.5"},
		{"0", "0"},
	}
	for _, tc := range cases {
		amount, available, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error %v", tc.raw, err)
		}
		if !available {
			t.Fatalf("Parse(%q): reported unavailable", tc.raw)
		}
		if amount.String() != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.raw, amount, tc.want)
		}
	}
}

func TestParseUnavailableTokens(t *testing.T) {
	for _, raw := range []string{"", "  ", "P.O.R", "POR", "por", "N/A", "n/a", "TBC", "POA", "CALL", "call"} {
		_, available, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error %v", raw, err)
		}
		if available {
			t.Errorf("Parse(%q): want unavailable", raw)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"abc", "12x4", "-5.00", "R -10"} {
		_, _, err := Parse(raw)
		if !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("Parse(%q): err = %v, want ErrInvalidPrice", raw, err)
		}
	}
}

func TestDerive(t *testing.T) {
	cfg := Defaults()
	cfg.MarkupPercent = 20
	cfg.VATRate = 15

	amount, _, err := Parse("100")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	excl, incl, retail := Derive(amount, cfg)
	if got := excl.StringFixed(2); got != "100.00" {
		t.Errorf("excl = %s, want 100.00", got)
	}
	if got := incl.StringFixed(2); got != "115.00" {
		t.Errorf("incl = %s, want 115.00", got)
	}
	if got := retail.StringFixed(2); got != "138.00" {
		t.Errorf("retail = %s, want 138.00", got)
	}
}

func TestDeriveVATIncluded(t *testing.T) {
	cfg := Defaults()
	cfg.MarkupPercent = 20
	cfg.VATRate = 15
	cfg.VATIncluded = true

	amount, _, err := Parse("115")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	excl, incl, retail := Derive(amount, cfg)
	if got := excl.StringFixed(2); got != "100.00" {
		t.Errorf("excl = %s, want 100.00", got)
	}
	if got := incl.StringFixed(2); got != "115.00" {
		t.Errorf("incl = %s, want 115.00", got)
	}
	if got := retail.StringFixed(2); got != "138.00" {
		t.Errorf("retail = %s, want 138.00", got)
	}
}

func TestNormalizeUnavailable(t *testing.T) {
	row := model.RawProductRow{Brand: "YEALINK", ProductCode: "T31P", RawPrice: "P.O.R", RowIndex: 4}
	product, err := Normalize(row, Defaults())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if product.Priceable {
		t.Error("product should not be priceable")
	}
	if product.PriceExclVAT != nil || product.PriceInclVAT != nil || product.RetailPrice != nil {
		t.Error("unavailable price must leave all price fields nil")
	}
	if product.Brand != "YEALINK" || product.ProductCode != "T31P" || product.RowIndex != 4 {
		t.Errorf("identity fields not carried: %+v", product)
	}
}

func TestNormalizePriced(t *testing.T) {
	cfg := Defaults()
	row := model.RawProductRow{Brand: "JABRA", ProductCode: "EVOLVE2", RawPrice: "R 1,299.00"}
	product, err := Normalize(row, cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !product.Priceable {
		t.Fatal("product should be priceable")
	}
	if got := product.PriceExclVAT.StringFixed(2); got != "1299.00" {
		t.Errorf("excl = %s, want 1299.00", got)
	}
	if got := product.PriceInclVAT.StringFixed(2); got != "1493.85" {
		t.Errorf("incl = %s, want 1493.85", got)
	}
	if product.Currency != "ZAR" {
		t.Errorf("currency = %s, want ZAR", product.Currency)
	}
}

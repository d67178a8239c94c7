package config

import "testing"

func TestExtAllowed(t *testing.T) {
	cfg := &Config{AllowedExts: []string{".xlsx", ".csv"}}
	for _, ext := range []string{".xlsx", ".csv", ".XLSX"} {
		if !cfg.ExtAllowed(ext) {
			t.Errorf("ExtAllowed(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{".exe", ".pdf", ""} {
		if cfg.ExtAllowed(ext) {
			t.Errorf("ExtAllowed(%q) = true, want false", ext)
		}
	}
}

func TestLoadDefaultAllowedExts(t *testing.T) {
	t.Setenv("PRICEDROP_ALLOWED_EXTS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, ext := range []string{".xlsx", ".csv", ".pdf", ".txt", ".md"} {
		if !cfg.ExtAllowed(ext) {
			t.Errorf("default allow-list rejects %s", ext)
		}
	}
}

package signing

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	expires := time.Now().Add(time.Hour).Unix()
	sig := s.Sign("session123", expires)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	expStr := strconv.FormatInt(expires, 10)
	if !s.Validate("session123", expStr, sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("wrong", expStr, sig) {
		t.Fatalf("expected validation to fail for wrong session id")
	}
	if s.Validate("session123", "42", sig) {
		t.Fatalf("expected validation to fail for tampered expiry")
	}
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	expired := time.Now().Add(-time.Minute).Unix()
	sig := s.Sign("session123", expired)
	if s.Validate("session123", strconv.FormatInt(expired, 10), sig) {
		t.Fatalf("expected expired link to fail validation")
	}
}

func TestExportPath(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	path := s.ExportPath("abc", time.Hour)
	if !strings.HasPrefix(path, "/exports/abc?") {
		t.Fatalf("unexpected path %q", path)
	}
	if !strings.Contains(path, "signature=") || !strings.Contains(path, "expires=") {
		t.Fatalf("path missing query parameters: %q", path)
	}
}

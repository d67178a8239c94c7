package docs

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHashStable(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	if a != b {
		t.Fatalf("same bytes hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if Hash([]byte("hello!")) == a {
		t.Error("different bytes produced the same hash")
	}
}

func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText("notes.txt", []byte("supplier onboarding notes"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "supplier onboarding notes" {
		t.Errorf("text = %q", text)
	}

	if _, err := ExtractText("notes.txt", []byte{0xff, 0xfe, 0x01}); err == nil {
		t.Error("invalid utf-8 should be rejected")
	}
	if _, err := ExtractText("image.png", []byte("x")); err == nil {
		t.Error("unsupported format should be rejected")
	}
}

func TestChunkParagraphBoundaries(t *testing.T) {
	text := strings.Join([]string{
		strings.Repeat("a", 30),
		strings.Repeat("b", 30),
		strings.Repeat("c", 30),
	}, "\n\n")

	chunks := Chunk(text, 70)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 70 {
			t.Errorf("chunk %d exceeds max: %d chars", i, len(c))
		}
	}
	// Paragraphs are never split when they fit.
	if !strings.Contains(chunks[0], strings.Repeat("a", 30)) {
		t.Errorf("first chunk lost its paragraph: %q", chunks[0])
	}
}

func TestChunkOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := Chunk(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3 for 250 chars at max 100", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d exceeds max: %d chars", i, len(c))
		}
		total += len(c)
	}
	if total != 250 {
		t.Errorf("content lost: %d of 250 chars survived", total)
	}
}

func TestChunkMultibyteHardSplit(t *testing.T) {
	text := strings.Repeat("量", 700)
	chunks := Chunk(text, 2000)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want a hard split for 2100 bytes at max 2000", len(chunks))
	}
	var rebuilt strings.Builder
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is invalid UTF-8 after hard split (len=%d)", i, len(c))
		}
		if len(c) > 2000 {
			t.Errorf("chunk %d exceeds max: %d bytes", i, len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Error("content changed across hard splits")
	}
}

func TestChunkEmpty(t *testing.T) {
	if chunks := Chunk("", 100); len(chunks) != 0 {
		t.Errorf("chunks = %v, want none for empty text", chunks)
	}
	if chunks := Chunk("\n\n  \n\n", 100); len(chunks) != 0 {
		t.Errorf("chunks = %v, want none for whitespace-only text", chunks)
	}
}

// Package docs ingests knowledge documents: text extraction, chunking, and
// content hashing for dedup.
package docs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
)

// DefaultChunkSize bounds chunk bodies so downstream consumers (embedding
// pipelines, search indexes) get evenly sized units.
const DefaultChunkSize = 2000

// Hash returns the hex SHA-256 of the raw file bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ExtractText pulls plain text out of a knowledge document, dispatching on
// the filename extension.
func ExtractText(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return extractPDF(data)
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s: not valid utf-8 text", fileName)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported document format %q", filepath.Ext(fileName))
	}
}

func extractPDF(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("no text could be extracted from pdf")
	}
	return text, nil
}

// Chunk splits text into pieces of at most maxLen characters, preferring
// paragraph boundaries and falling back to hard splits for oversized
// paragraphs.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > maxLen {
			flush()
			// Back off to a rune boundary so a hard split never
			// produces invalid UTF-8.
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, para[:cut])
			para = para[cut:]
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// #region types

// Document is one loadable unit of a source file: the whole file for text
// formats, one page for PDFs.
type Document struct {
	Source string
	// Origin identifies the file for passage IDs. Empty means Source.
	Origin string
	Page   int // 1-based; 0 for unpaged sources
	Text   string
}

// ErrUnsupported is returned for file extensions with no loader.
var ErrUnsupported = errors.New("unsupported file type")

// Supported reports whether path has a loader.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// #endregion types

// #region load

// LoadFile reads path and returns its documents. The source label is the
// file's base name; the origin is its absolute path, so same-named files in
// different directories keep distinct passages.
func LoadFile(path string) ([]Document, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Ext(path), ErrUnsupported)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	docs, err := LoadBytes(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	origin, err := filepath.Abs(path)
	if err != nil {
		origin = filepath.Clean(path)
	}
	for i := range docs {
		docs[i].Origin = filepath.ToSlash(origin)
	}
	return docs, nil
}

// LoadBytes parses data as the format named by source's extension.
func LoadBytes(source string, data []byte) ([]Document, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".txt", ".md":
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, nil
		}
		return []Document{{Source: source, Text: text}}, nil
	case ".pdf":
		return loadPDF(source, bytes.NewReader(data), int64(len(data)))
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Ext(source), ErrUnsupported)
	}
}

// loadPDF extracts plain text page by page. Blank pages are skipped but keep
// their numbering.
func loadPDF(source string, r io.ReaderAt, size int64) ([]Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", source, err)
	}
	var docs []Document
	fonts := map[string]*pdf.Font{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("pdf %s page %d: %w", source, i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			docs = append(docs, Document{Source: source, Page: i, Text: text})
		}
	}
	return docs, nil
}

// #endregion load

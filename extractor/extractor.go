// Package extractor turns source files into typed extraction units carrying
// layout metadata (section path, page, tables, figures, key/value pairs).
// The chunker consumes units; everything downstream is format-agnostic.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Unit is one extracted text unit with layout metadata.
type Unit struct {
	Text        string     `json:"text"`
	Role        string     `json:"role"` // paragraph, heading, table, figure, key_value, signature
	SectionPath []string   `json:"section_path,omitempty"`
	Page        int        `json:"page,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	Tables      []Table    `json:"tables,omitempty"`
	Figures     []Figure   `json:"figures,omitempty"`
	KeyValues   []KeyValue `json:"key_values,omitempty"`
}

// Table is a tabular region attached to a unit.
type Table struct {
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

// Figure is a figure or image reference attached to a unit.
type Figure struct {
	ID      string `json:"id,omitempty"`
	Caption string `json:"caption,omitempty"`
	Page    int    `json:"page,omitempty"`
}

// KeyValue is a labeled value found in a document (forms, cover pages).
type KeyValue struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Page       int     `json:"page,omitempty"`
}

// Extractor produces units from a source file.
type Extractor interface {
	// Extract reads the file at path and returns its units in document order.
	Extract(ctx context.Context, path string) ([]Unit, error)
}

// Registry dispatches to a format-specific extractor by file extension.
type Registry struct {
	byFormat map[string]Extractor
}

// NewRegistry returns a registry with the built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{byFormat: make(map[string]Extractor)}
	text := &TextExtractor{}
	r.Register(text, "txt", "md", "markdown")
	r.Register(&PDFExtractor{}, "pdf")
	r.Register(&XLSXExtractor{}, "xlsx", "xls")
	return r
}

// Register maps formats to an extractor, overriding earlier registrations.
func (r *Registry) Register(e Extractor, formats ...string) {
	for _, f := range formats {
		r.byFormat[strings.ToLower(f)] = e
	}
}

// ForPath returns the extractor for a file path's extension.
func (r *Registry) ForPath(path string) (Extractor, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	e, ok := r.byFormat[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", ext)
	}
	return e, nil
}

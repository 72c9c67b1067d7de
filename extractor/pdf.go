package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts per-page text units from PDF files.
type PDFExtractor struct{}

// Extract reads each page and splits it into units, tracking the heading
// chain across pages so section paths span page boundaries.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]Unit, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var units []Unit
	var sectionPath []string

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail extraction are skipped, not fatal.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pageUnits, newPath := splitPage(text, i, sectionPath)
		units = append(units, pageUnits...)
		sectionPath = newPath
	}

	return units, nil
}

// splitPage breaks a page's text into heading and paragraph units. The
// returned path is the heading chain in effect at the end of the page.
func splitPage(text string, pageNum int, path []string) ([]Unit, []string) {
	var units []Unit
	var buf strings.Builder

	flush := func() {
		t := strings.TrimSpace(buf.String())
		buf.Reset()
		if t == "" {
			return
		}
		units = append(units, Unit{
			Text:        t,
			Role:        "paragraph",
			SectionPath: append([]string(nil), path...),
			Page:        pageNum,
		})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			// Headings replace the deepest path element; numbered headings
			// at the top level reset the chain.
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			path = append(path, trimmed)
			units = append(units, Unit{
				Text:        trimmed,
				Role:        "heading",
				SectionPath: append([]string(nil), path...),
				Page:        pageNum,
			})
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(trimmed)
	}
	flush()

	return units, path
}

// isLikelyHeading uses layout heuristics: short all-caps lines, numbered
// section prefixes ("3.", "3.1"), or short title-cased lines without a
// trailing period.
func isLikelyHeading(line string) bool {
	if len(line) > 90 {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 12 {
		return false
	}

	if numbered(words[0]) {
		return true
	}
	if line == strings.ToUpper(line) && containsLetter(line) && len(words) <= 8 {
		return true
	}
	if len(words) <= 6 && !strings.HasSuffix(line, ".") && isTitleCased(words) {
		return true
	}
	return false
}

func numbered(word string) bool {
	word = strings.TrimSuffix(word, ".")
	if word == "" {
		return false
	}
	for _, part := range strings.Split(word, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isTitleCased(words []string) bool {
	upper := 0
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			upper++
		}
	}
	return upper >= (len(words)+1)/2+1 || upper == len(words)
}

package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextExtractor handles plain text and markdown. Markdown headings build the
// section path; paragraphs become units under the current path.
type TextExtractor struct{}

// Extract reads the file and splits it into paragraph units.
func (e *TextExtractor) Extract(ctx context.Context, path string) ([]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return UnitsFromText(string(data)), nil
}

// UnitsFromText splits raw text into units. Markdown-style headings open a
// new section level; blank lines separate paragraphs.
func UnitsFromText(text string) []Unit {
	var units []Unit
	var path []string

	flush := func(buf *strings.Builder) {
		t := strings.TrimSpace(buf.String())
		buf.Reset()
		if t == "" {
			return
		}
		units = append(units, Unit{
			Text:        t,
			Role:        "paragraph",
			SectionPath: append([]string(nil), path...),
		})
	}

	var buf strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if level, title := markdownHeading(trimmed); level > 0 {
			flush(&buf)
			if level-1 < len(path) {
				path = path[:level-1]
			}
			path = append(path, title)
			units = append(units, Unit{
				Text:        title,
				Role:        "heading",
				SectionPath: append([]string(nil), path...),
			})
			continue
		}

		if trimmed == "" {
			flush(&buf)
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(trimmed)
	}
	flush(&buf)

	return units
}

// markdownHeading returns the heading level and title for "#"-prefixed lines,
// or 0 if the line is not a heading.
func markdownHeading(line string) (int, string) {
	if !strings.HasPrefix(line, "#") {
		return 0, ""
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, ""
	}
	title := strings.TrimSpace(line[level:])
	if title == "" {
		return 0, ""
	}
	return level, title
}

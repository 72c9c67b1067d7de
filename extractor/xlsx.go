package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor extracts one table unit per sheet. Two-column sheets are
// additionally surfaced as key/value pairs so form-like workbooks feed the
// key-value index.
type XLSXExtractor struct{}

// Extract opens the workbook and produces a unit per non-empty sheet.
func (e *XLSXExtractor) Extract(ctx context.Context, path string) ([]Unit, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var units []Unit
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		table := Table{Summary: fmt.Sprintf("sheet %s, %d rows", sheet, len(rows))}
		if len(rows) > 0 {
			table.Headers = rows[0]
		}
		if len(rows) > 1 {
			table.Rows = rows[1:]
		}

		var content strings.Builder
		for _, row := range rows {
			content.WriteString(strings.Join(row, " | "))
			content.WriteByte('\n')
		}

		unit := Unit{
			Text:        strings.TrimSpace(content.String()),
			Role:        "table",
			SectionPath: []string{sheet},
			Tables:      []Table{table},
		}

		if kvs := keyValueRows(rows); len(kvs) > 0 {
			unit.KeyValues = kvs
		}

		units = append(units, unit)
	}

	return units, nil
}

// keyValueRows treats a sheet as a form when every non-empty row has exactly
// two cells.
func keyValueRows(rows [][]string) []KeyValue {
	var kvs []KeyValue
	for _, row := range rows {
		var cells []string
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				cells = append(cells, strings.TrimSpace(c))
			}
		}
		if len(cells) != 2 {
			return nil
		}
		kvs = append(kvs, KeyValue{Key: cells[0], Value: cells[1], Confidence: 1.0})
	}
	return kvs
}

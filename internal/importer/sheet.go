package importer

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet deck columns, left to right.
const (
	textColumn = iota
	translationColumn
	tagsColumn
)

// ParseSheet reads the entries of a spreadsheet deck. Every sheet is read;
// the first row of each sheet is a header. Column A holds the text to
// translate, column B the translation and column C comma-separated tags.
// Line is the 1-based row number.
func ParseSheet(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var entries []Entry
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			text := strings.TrimSpace(cell(row, textColumn))
			if text == "" {
				continue
			}
			entries = append(entries, Entry{
				TextToTranslate: text,
				Translation:     strings.TrimSpace(cell(row, translationColumn)),
				Tags:            appendTags(nil, cell(row, tagsColumn)),
				Line:            i + 1,
			})
		}
	}
	return entries, nil
}

// GetRows trims trailing empty cells, so rows may be short.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

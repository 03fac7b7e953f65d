package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheets are rendered as CSV blocks separated by a blank line, in workbook order
func extractSpreadsheet(_ context.Context, path string) (string, error) {
	if hasMagic(path, ole2Magic) {
		return "", ErrLegacyOfficeFormat
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open spreadsheet failed: %w", err)
	}
	defer f.Close()

	var blocks []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q failed: %w", sheet, err)
		}
		block, err := renderCSV(rows)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func extractCSV(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read csv failed: %w", err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return "", err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv failed: %w", err)
	}
	return renderCSV(rows)
}

func renderCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("render csv failed: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Package ingest turns uploaded tabular files into model items.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docutag/enricher/models"
)

// DefaultURLColumn is the column used when none is named
const DefaultURLColumn = "url"

var (
	// ErrColumnNotFound means the url column is absent from the header row
	ErrColumnNotFound = errors.New("url column not found")
	// ErrEmptyFile means the file has no header row
	ErrEmptyFile = errors.New("csv file is empty")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options control how rows become items
type Options struct {
	URLColumn string
	BaseURL   string // Prepended verbatim to every url cell
}

// ParseCSV reads a CSV with a header row. Each data row becomes an item whose
// url is BaseURL followed by the url cell; the remaining columns become the
// item's additional data. Rows with a blank url cell are dropped.
func ParseCSV(r io.Reader, opts Options) ([]models.Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	column := opts.URLColumn
	if column == "" {
		column = DefaultURLColumn
	}
	urlIdx := -1
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == column {
			urlIdx = i
		}
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}

	items := []models.Item{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", line, err)
		}
		if urlIdx >= len(record) || strings.TrimSpace(record[urlIdx]) == "" {
			continue
		}

		additional := make(map[string]string, len(header)-1)
		for i, name := range header {
			if i == urlIdx {
				continue
			}
			value := ""
			if i < len(record) {
				value = record[i]
			}
			additional[name] = value
		}
		items = append(items, models.NewItem(opts.BaseURL+strings.TrimSpace(record[urlIdx]), additional))
	}

	return items, nil
}

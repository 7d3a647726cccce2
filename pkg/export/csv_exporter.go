package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Dataset defines tabular export content. Rows are keyed by header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// utf8BOM makes Excel open the file as UTF-8 instead of the system code page.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOption customises a CSVExporter.
type CSVOption func(*CSVExporter)

// WithTitleRow writes the dataset title as a single-cell record above the header.
func WithTitleRow() CSVOption {
	return func(e *CSVExporter) { e.titleRow = true }
}

// WithExcelBOM prefixes the output with a UTF-8 byte order mark.
func WithExcelBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// WithDelimiter replaces the comma, e.g. with ';' for locales using decimal commas.
func WithDelimiter(r rune) CSVOption {
	return func(e *CSVExporter) { e.comma = r }
}

// CSVExporter renders agenda datasets as CSV. Cells carry patient-entered text,
// so values a spreadsheet would evaluate as formulas are written as literals.
type CSVExporter struct {
	comma    rune
	titleRow bool
	bom      bool
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{comma: ','}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.Write(utf8BOM)
	}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma

	if e.titleRow && data.Title != "" {
		if err := writer.Write([]string{literalCell(data.Title)}); err != nil {
			return nil, fmt.Errorf("write csv title: %w", err)
		}
	}
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = literalCell(row[header])
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// literalCell quotes values that start like a spreadsheet formula.
func literalCell(value string) string {
	if value == "" {
		return value
	}
	if strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

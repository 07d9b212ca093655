package csvhistory

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"parking-monitor/internal/parking/domain"
)

// Parser reads a header-first CSV document into history rows.
type Parser struct{}

// NewParser constructs a Parser.
func NewParser() Parser {
	return Parser{}
}

// Parse returns one row per non-empty record keyed by the header line.
// A document that fails to parse yields no rows.
func (Parser) Parse(text string) []domain.HistoryRow {
	rows, err := parse(strings.NewReader(text))
	if err != nil {
		return []domain.HistoryRow{}
	}
	return rows
}

func parse(r io.Reader) ([]domain.HistoryRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.HistoryRow{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows := make([]domain.HistoryRow, 0, 256)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		row := make(domain.HistoryRow, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

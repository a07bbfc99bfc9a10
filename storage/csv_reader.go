package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawListingRow is one untrimmed CSV record keyed by lower-cased header name.
type RawListingRow struct {
	Line   int
	Fields map[string]string
}

// ReadListingCSV reads every record of a listing import file. The first row
// must be a header; blank lines are skipped.
func ReadListingCSV(path string) ([]RawListingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	return ParseListingCSV(f)
}

// ParseListingCSV is ReadListingCSV over an arbitrary reader.
func ParseListingCSV(r io.Reader) ([]RawListingRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var rows []RawListingRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read record: %w", err)
		}

		line, _ := cr.FieldPos(0)
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, RawListingRow{Line: line, Fields: fields})
	}
	return rows, nil
}

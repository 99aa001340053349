package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readCSV parses delimited text. A UTF-8 or UTF-16 byte order mark is
// honored; rows may be shorter or longer than the header.
func readCSV(data []byte) ([]string, [][]string, error) {
	decoder := unicode.BOMOverride(transform.Nop)
	reader := csv.NewReader(transform.NewReader(bytes.NewReader(data), decoder))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("empty file: no header row found")
		}
		return nil, nil, fmt.Errorf("failed to read header row: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}

	return cleanHeader(header), rows, nil
}

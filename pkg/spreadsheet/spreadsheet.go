// Package spreadsheet reads uploaded CSV and Excel files into rows.
package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/record"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultMaxBytes is the upload size limit when none is configured
const DefaultMaxBytes int64 = 10 << 20

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// File is a parsed upload: the header row and every non-empty data row.
type File struct {
	Name   string
	Format Format
	Size   int64
	Header []string
	Rows   []record.Row
}

type Reader struct {
	maxBytes int64
	logger   ectologger.Logger
}

func NewReader(maxBytes int64, logger ectologger.Logger) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Reader{maxBytes: maxBytes, logger: logger}
}

// DetectFormat returns the format implied by the file name's extension.
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch Format(ext) {
	case FormatCSV, FormatXLSX, FormatXLS:
		return Format(ext), nil
	}
	return "", httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
		"File type '.%s' is not supported. Please upload a CSV, XLSX, or XLS file.", ext)
}

// Read checks and parses an upload. size is the size reported by the client;
// the body is also capped so an understated size cannot bypass the limit.
func (r *Reader) Read(ctx context.Context, name string, size int64, src io.Reader) (*File, error) {
	ctx, span := tracing.StartSpan(ctx, "spreadsheet.Reader.Read")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"file_name": name,
		"file_size": size,
	})

	format, err := DetectFormat(name)
	if err != nil {
		log.WithError(err).Warn("Invalid file extension")
		return nil, err
	}

	if size > r.maxBytes {
		return nil, r.sizeError(size)
	}

	data, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, unreadable(err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, r.sizeError(int64(len(data)))
	}

	var header []string
	var rows [][]string
	switch format {
	case FormatCSV:
		header, rows, err = readCSV(data)
	default:
		header, rows, err = readWorkbook(data)
	}
	if err != nil {
		log.WithError(err).Error("File validation failed")
		return nil, unreadable(err)
	}

	file := &File{Name: name, Format: format, Size: int64(len(data)), Header: header}
	for _, values := range rows {
		row := toRow(header, values)
		if row.IsEmpty() {
			continue
		}
		file.Rows = append(file.Rows, row)
	}

	if len(file.Rows) == 0 {
		return nil, NoDataRows()
	}

	if column, ok := invalidEncoding(file.Rows[0]); ok {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
			"Character encoding issue detected in column '%s'. Please save your file with UTF-8 encoding and try again.", column)
	}

	log.WithField("row_count", len(file.Rows)).Info("File validation passed")
	return file, nil
}

// NoDataRows rejects an upload with a header but nothing below it
func NoDataRows() error {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity,
		"The file contains no data rows. Please ensure your file has at least one row of data below the header row.")
}

func (r *Reader) sizeError(size int64) error {
	return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge,
		"File size (%sMB) exceeds the %sMB limit. Please reduce the file size or split it into smaller files.",
		megabytes(size), megabytes(r.maxBytes))
}

func unreadable(err error) error {
	return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
		"Unable to read the file. Please ensure it's a valid Excel or CSV file and not corrupted. Error: %s", err.Error())
}

// megabytes renders a byte count with at most two decimals: 10, 10.5, 12.34.
func megabytes(n int64) string {
	s := fmt.Sprintf("%.2f", float64(n)/1024/1024)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// toRow pairs cells with header columns; unnamed columns are dropped.
func toRow(header []string, values []string) record.Row {
	row := make(record.Row, 0, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		v := record.Null()
		if i < len(values) {
			v = record.String(values[i])
		}
		row = append(row, record.Cell{Column: col, Value: v})
	}
	return row
}

func invalidEncoding(row record.Row) (string, bool) {
	for _, cell := range row {
		if !utf8.ValidString(cell.Value.Text()) {
			return cell.Column, true
		}
	}
	return "", false
}

// Columns returns the named header columns.
func (f *File) Columns() []string {
	cols := make([]string, 0, len(f.Header))
	for _, c := range f.Header {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(string(bytes.TrimPrefix([]byte(h), utf8BOM)))
	}
	return out
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

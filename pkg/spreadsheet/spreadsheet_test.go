package spreadsheet

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Ramsey-B/fern/pkg/record"
)

func newTestReader(maxBytes int64) *Reader {
	return NewReader(maxBytes, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func read(t *testing.T, r *Reader, name string, data []byte) (*File, error) {
	t.Helper()
	return r.Read(context.Background(), name, int64(len(data)), bytes.NewReader(data))
}

func assertUserError(t *testing.T, err error, code int, message string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), message)
}

func TestRead_CSV(t *testing.T) {
	data := "\xEF\xBB\xBF Surname ,FirstName,DOB,\nDela Cruz,Juan,1990-01-15,\n,,,\nReyes,Maria\n"

	file, err := read(t, newTestReader(0), "people.CSV", []byte(data))
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, file.Format)
	assert.Equal(t, []string{"Surname", "FirstName", "DOB"}, file.Columns())
	require.Len(t, file.Rows, 2)
	assert.Equal(t, record.Row{
		{Column: "Surname", Value: record.String("Dela Cruz")},
		{Column: "FirstName", Value: record.String("Juan")},
		{Column: "DOB", Value: record.String("1990-01-15")},
	}, file.Rows[0])
	assert.True(t, file.Rows[1][2].Value.IsNull())
}

func TestRead_UTF16CSV(t *testing.T) {
	text := "Surname,FirstName\nCruz,Juan\n"
	data := []byte{0xFF, 0xFE}
	for _, r := range text {
		data = append(data, byte(r), 0)
	}

	file, err := read(t, newTestReader(0), "people.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Surname", "FirstName"}, file.Columns())
	v, _ := file.Rows[0].Get("FirstName")
	assert.Equal(t, "Juan", v.Text())
}

func TestRead_XLSX(t *testing.T) {
	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]any{"Surname", "FirstName", "EmployeeNo"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]any{"Dela Cruz", "Juan", 1042}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	file, err := read(t, newTestReader(0), "people.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, file.Format)
	assert.Equal(t, []string{"Surname", "FirstName", "EmployeeNo"}, file.Columns())
	require.Len(t, file.Rows, 1)
	v, _ := file.Rows[0].Get("EmployeeNo")
	assert.Equal(t, "1042", v.Text())
}

func TestRead_Rejections(t *testing.T) {
	r := newTestReader(64)

	_, err := read(t, r, "people.pdf", []byte("x"))
	assertUserError(t, err, http.StatusUnprocessableEntity, "File type '.pdf' is not supported. Please upload a CSV, XLSX, or XLS file.")

	_, err = read(t, r, "people.csv", []byte(strings.Repeat("a", 65)))
	assertUserError(t, err, http.StatusRequestEntityTooLarge, "exceeds the 0MB limit")

	_, err = read(t, r, "people.csv", []byte("Surname,FirstName\n , \n"))
	assertUserError(t, err, http.StatusUnprocessableEntity, "The file contains no data rows.")

	_, err = read(t, r, "people.csv", []byte("Surname,FirstName\nCru\xff,Juan\n"))
	assertUserError(t, err, http.StatusUnprocessableEntity, "Character encoding issue detected in column 'Surname'.")

	_, err = read(t, r, "people.xls", []byte("not a workbook"))
	assertUserError(t, err, http.StatusUnprocessableEntity, "Unable to read the file. Please ensure it's a valid Excel or CSV file and not corrupted. Error: ")
}

func TestRead_UnderstatedSize(t *testing.T) {
	r := newTestReader(16)
	data := []byte("Surname,FirstName\nCruz,Juan\n")

	_, err := r.Read(context.Background(), "people.csv", 1, bytes.NewReader(data))
	assert.Equal(t, http.StatusRequestEntityTooLarge, httperror.GetStatusCode(err))
}

func TestMegabytes(t *testing.T) {
	assert.Equal(t, "10", megabytes(DefaultMaxBytes))
	assert.Equal(t, "10.5", megabytes(DefaultMaxBytes+512*1024))
	assert.Equal(t, "0", megabytes(64))
}

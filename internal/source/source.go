// Package source turns uploaded files into raw tables.
//
// CSV input is read through a reader that drops a leading UTF-8 byte order
// mark and replaces invalid UTF-8 bytes with '?'. Excel input is read with
// excelize. In both cases the first non-blank row is the header, blank rows
// are skipped, and short rows are padded with missing cells.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/mlready/internal/table"
)

var (
	// ErrNoHeader is returned for input without a header row.
	ErrNoHeader = errors.New("no header row")

	// ErrRowWidth is returned when a row has more fields than the header.
	ErrRowWidth = errors.New("row wider than header")

	// ErrUnsupportedFormat is returned by Read for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ReadCSV reads a comma-separated file with a header row.
func ReadCSV(r io.Reader) (*table.RawTable, error) {
	cr := csv.NewReader(newCleanReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		records = append(records, rec)
	}

	return fromRecords(records)
}

// ReadSheet reads one worksheet of an open workbook. An empty sheet name
// selects the first sheet.
func ReadSheet(f *excelize.File, sheet string) (*table.RawTable, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoHeader
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRecords(rows)
}

// Read dispatches on the file name extension: .xlsx/.xlsm/.xltx workbooks
// use their first sheet, .csv/.txt and extensionless names are CSV.
func Read(name string, r io.Reader) (*table.RawTable, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		return ReadSheet(f, "")
	case ".csv", ".txt", "":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func fromRecords(records [][]string) (*table.RawTable, error) {
	start := 0
	for start < len(records) && isBlankRow(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, ErrNoHeader
	}

	header := headerNames(records[start])
	columns := make([]table.Column, len(header))
	for i, name := range header {
		columns[i] = table.Column{Name: name}
	}

	for n, rec := range records[start+1:] {
		if isBlankRow(rec) {
			continue
		}
		if len(rec) > len(header) && !isBlankRow(rec[len(header):]) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrRowWidth, start+n+2, len(rec), len(header))
		}
		for i := range columns {
			if i < len(rec) {
				columns[i].Cells = append(columns[i].Cells, table.Text(rec[i]))
			} else {
				columns[i].Cells = append(columns[i].Cells, table.Missing())
			}
		}
	}

	return table.New(columns...)
}

// headerNames cleans header cells and names blank ones by position.
func headerNames(row []string) []string {
	// Trailing blank header cells are spreadsheet padding.
	end := len(row)
	for end > 0 && table.CleanCell(row[end-1]) == "" {
		end--
	}

	names := make([]string, end)
	for i, h := range row[:end] {
		name := table.CleanCell(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		names[i] = name
	}
	return names
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

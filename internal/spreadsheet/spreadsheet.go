// Package spreadsheet reads uploaded tabular files and writes the exported
// workbook. Only the first sheet of a workbook is read.
package spreadsheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmpty      = errors.New("spreadsheet has no rows")
	ErrUnreadable = errors.New("spreadsheet could not be read")
)

// Table is a parsed sheet: the first row as headers, the rest as data rows.
// Data rows may be shorter than Headers when trailing cells are blank.
type Table struct {
	Headers []string
	Rows    [][]string
	// RawCells is set when cells hold unformatted workbook values, so a
	// number in a date column is a day serial rather than typed text.
	RawCells bool
}

// Cell returns the value of row i under header, or "" when absent.
func (t *Table) Cell(i int, header string) string {
	for col, h := range t.Headers {
		if h == header {
			if i < len(t.Rows) && col < len(t.Rows[i]) {
				return t.Rows[i][col]
			}
			return ""
		}
	}
	return ""
}

// Record returns row i keyed by header label.
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Headers))
	for col, h := range t.Headers {
		if col < len(t.Rows[i]) {
			rec[h] = t.Rows[i][col]
		} else {
			rec[h] = ""
		}
	}
	return rec
}

// zip local file header, the start of every xlsx file
var xlsxMagic = []byte("PK\x03\x04")

// Read parses an xlsx workbook, or a CSV file when the content is not a
// workbook. Cells are read raw so dates arrive as serial numbers.
func Read(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xlsxMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(head) == 0 {
		return nil, ErrEmpty
	}

	var rows [][]string
	workbook := bytes.Equal(head, xlsxMagic)
	if workbook {
		rows, err = readWorkbook(br)
	} else {
		rows, err = readCSV(br)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	t, err := FromRows(rows)
	if err != nil {
		return nil, err
	}
	t.RawCells = workbook
	return t, nil
}

// FromRows builds a table from raw rows, dropping blank rows. Header labels
// are trimmed.
func FromRows(rows [][]string) (*Table, error) {
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !blank(row) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmpty
	}

	headers := make([]string, len(kept[0]))
	for i, h := range kept[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return &Table{Headers: headers, Rows: kept[1:]}, nil
}

func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package spreadsheet

import (
	"fmt"
	"io"
	"time"

	"finanzas/internal/core"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName  = "Transacciones"
	FileName   = "transacciones.xlsx"
	MIMEType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateLayout = "2006-01-02"
)

// Header labels of the exported sheet. Importing an exported file maps every
// field onto the header of the same name.
const (
	HeaderDate        = "Fecha"
	HeaderDescription = "Descripción"
	HeaderAmount      = "Monto"
	HeaderType        = "Tipo"
	HeaderCategory    = "Categoría"
	HeaderComments    = "Comentarios"
)

// Headers returns the column order shared by the export and the mirror.
func Headers() []string {
	return []string{HeaderDate, HeaderDescription, HeaderAmount, HeaderType, HeaderCategory, HeaderComments}
}

var columnWidths = []float64{12, 40, 14, 10, 30, 40}

// Row lays out one transaction. The amount stays numeric.
func Row(t core.Transaction, loc *time.Location) []any {
	if loc == nil {
		loc = time.Local
	}
	return []any{
		t.OccurredAt.In(loc).Format(dateLayout),
		t.Description,
		t.Amount.InexactFloat64(),
		t.Kind.Label(),
		t.Category,
		t.Comments,
	}
}

// Rows lays out every transaction in the given order.
func Rows(txs []core.Transaction, loc *time.Location) [][]any {
	rows := make([][]any, len(txs))
	for i, t := range txs {
		rows[i] = Row(t, loc)
	}
	return rows
}

// Export writes txs, in the order given, as an xlsx workbook.
func Export(w io.Writer, txs []core.Transaction, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := setRow(f, 1, toAny(Headers())); err != nil {
		return err
	}
	for i, row := range Rows(txs, loc) {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

package ledger

import (
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/listing-ledger/internal/model"
)

const sheetName = "Sheet"

// readRows returns every data row of the first sheet, header excluded.
func readRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ledger: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for i, row := range sheet.Rows {
		if i == 0 || row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// writeWorkbook creates path holding header followed by rows. The workbook is
// saved beside path first and renamed into place.
func writeWorkbook(path string, schema model.Schema, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "ledger: add sheet")
	}

	addRow(sheet, schema.Header(), -1)
	for _, r := range rows {
		addRow(sheet, r, schema.ReferenceColumn())
	}
	return saveAtomic(f, path)
}

// appendRows opens path, appends rows to its first sheet, and saves it again.
func appendRows(path string, schema model.Schema, rows ...[]string) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return eris.Errorf("ledger: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	for _, r := range rows {
		addRow(sheet, r, schema.ReferenceColumn())
	}
	return saveAtomic(f, path)
}

// isEmptyLedger reports whether path holds no data rows, or only blank ones.
func isEmptyLedger(path string) (bool, error) {
	rows, err := readRows(path)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if !model.IsBlankRow(r) {
			return false, nil
		}
	}
	return true, nil
}

func saveAtomic(f *xlsx.File, path string) error {
	tmp := path + ".tmp"
	if err := f.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "ledger: save %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "ledger: replace %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string, linkCol int) {
	row := sheet.AddRow()
	for i, v := range values {
		cell := row.AddCell()
		cell.SetString(v)
		if i == linkCol && isWebURL(v) {
			cell.SetStyle(linkStyle())
		}
	}
}

// linkStyle renders location references like hyperlinks. Cosmetic only.
func linkStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font.Color = "FF0563C1"
	s.Font.Underline = true
	s.ApplyFont = true
	return s
}

func isWebURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// CountRows returns the number of non-blank data rows in a ledger file.
func CountRows(path string) (int, error) {
	rows, err := readRows(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if !model.IsBlankRow(r) {
			n++
		}
	}
	return n, nil
}

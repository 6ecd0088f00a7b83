package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidFormat indicates the input bytes are not a well-formed workbook
// container (corrupt archive, wrong format, or unsupported encryption).
var ErrInvalidFormat = errors.New("invalid workbook format")

// XLSX rebuilds workbooks from decoded values, so the only code it carries
// is what excelize itself emits: a plain macro-free container.
type XLSX struct{}

// New returns the excelize-backed transcoder.
func New() *XLSX {
	return &XLSX{}
}

// Decode reads src as a macro-enabled workbook and extracts resolved cell
// values. Formula cells yield their last-cached computed value; a formula
// with no cached result yields nothing and the cell becomes empty.
func (*XLSX) Decode(src []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrInvalidFormat, sheetName, err)
		}

		sheet := Sheet{Name: sheetName}
		for rowIdx, row := range rows {
			cellMap := make(map[string]interface{})
			for colIdx, cellValue := range row {
				if cellValue == "" {
					continue
				}
				cellMap[strconv.Itoa(colIdx+1)] = parseValue(cellValue)
			}
			if len(cellMap) > 0 {
				sheet.Rows = append(sheet.Rows, CellRow{R: rowIdx + 1, C: cellMap})
			}
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

// Encode writes wb as a fresh macro-free XLSX byte stream. Deterministic:
// the same workbook always encodes to the same bytes.
func (*XLSX) Encode(wb *Workbook) ([]byte, error) {
	out := excelize.NewFile()
	defer out.Close()

	for i, sheet := range wb.Sheets {
		if i == 0 {
			if err := out.SetSheetName(out.GetSheetName(0), sheet.Name); err != nil {
				return nil, fmt.Errorf("renaming sheet %q: %w", sheet.Name, err)
			}
		} else {
			if _, err := out.NewSheet(sheet.Name); err != nil {
				return nil, fmt.Errorf("creating sheet %q: %w", sheet.Name, err)
			}
		}
		for _, row := range sheet.Rows {
			for _, col := range sortedColumns(row.C) {
				cellName, err := excelize.CoordinatesToCellName(col, row.R)
				if err != nil {
					return nil, fmt.Errorf("cell coordinates (%d,%d): %w", col, row.R, err)
				}
				if err := out.SetCellValue(sheet.Name, cellName, row.C[strconv.Itoa(col)]); err != nil {
					return nil, fmt.Errorf("writing cell %s!%s: %w", sheet.Name, cellName, err)
				}
			}
		}
	}

	buf, err := out.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Transcode is Decode followed by Encode.
func (x *XLSX) Transcode(src []byte) ([]byte, error) {
	wb, err := x.Decode(src)
	if err != nil {
		return nil, err
	}
	return x.Encode(wb)
}

// sortedColumns returns the 1-based column indexes of a row in ascending
// order. Encoding order must not depend on map iteration.
func sortedColumns(c map[string]interface{}) []int {
	cols := make([]int, 0, len(c))
	for k := range c {
		if n, err := strconv.Atoi(k); err == nil {
			cols = append(cols, n)
		}
	}
	sort.Ints(cols)
	return cols
}

// parseValue attempts to parse a string value as a number.
// Returns int64 for integers, float64 for decimals, or the original string.
func parseValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

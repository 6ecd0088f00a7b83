// Package transcode converts macro-enabled workbooks into values-only,
// macro-free XLSX containers. Formulas are resolved to their last-cached
// result at decode time; no recomputation happens here. Macro streams and
// code-bearing parts never survive because the output is rebuilt from the
// decoded cell values alone.
package transcode

// Workbook is the in-memory values-only form of a decoded source workbook.
type Workbook struct {
	// Sheets preserves the source sheet order.
	Sheets []Sheet
}

// Sheet holds the non-empty rows of one worksheet.
type Sheet struct {
	// Name is the worksheet name as it appeared in the source.
	Name string
	// Rows contains only rows with at least one non-empty cell.
	Rows []CellRow
}

// CellRow represents a single row of resolved cell values.
type CellRow struct {
	// R is the row index (1-based).
	R int
	// C maps column index (1-based, as string) to the resolved scalar value:
	// int64, float64, or string. Cells whose only content was a formula with
	// no cached result are absent.
	C map[string]interface{}
}

// Package table holds the tabular output types produced by the extractor.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// Row is one canonical row: snake-cased field names mapped to string, float64
// or time.Time values.
type Row map[string]any

// Table is an ordered collection of rows for one category. Row order is the
// dense 0-based numbering; tables are built once and not mutated afterwards.
type Table struct {
	Name string
	Rows []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Columns returns the union of field names across all rows. The designated
// date column (if present) sorts first, the rest alphabetically.
func (t *Table) Columns(dateColumn string) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range t.Rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i] == dateColumn {
			return cols[j] != dateColumn
		}
		if cols[j] == dateColumn {
			return false
		}
		return cols[i] < cols[j]
	})
	return cols
}

// SortByDate stably sorts rows ascending by the named timestamp column. Rows
// missing the column (or holding a non-timestamp) sort as the zero time, so
// ties and malformed rows keep their prior relative order.
func (t *Table) SortByDate(column string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return rowTime(t.Rows[i], column).Before(rowTime(t.Rows[j], column))
	})
}

func rowTime(row Row, column string) time.Time {
	if v, ok := row[column].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// WriteCSV writes the table with a header row. The date column leads the
// column order when named.
func (t *Table) WriteCSV(w io.Writer, dateColumn string) error {
	cols := t.Columns(dateColumn)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(cols))
	for _, row := range t.Rows {
		for i, col := range cols {
			record[i] = formatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

package table

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2020, 4, d, 0, 0, 0, 0, time.UTC)
}

func TestSortByDateIsStableAndAscending(t *testing.T) {
	tbl := &Table{
		Name: "Record",
		Rows: []Row{
			{"creation_date": day(9), "value": "third"},
			{"creation_date": day(2), "value": "first-a"},
			{"creation_date": day(2), "value": "first-b"},
			{"creation_date": day(5), "value": "second"},
		},
	}
	tbl.SortByDate("creation_date")

	var order []string
	for _, row := range tbl.Rows {
		order = append(order, row["value"].(string))
	}
	require.Equal(t, []string{"first-a", "first-b", "second", "third"}, order)

	for i := 1; i < tbl.Len(); i++ {
		prev := tbl.Rows[i-1]["creation_date"].(time.Time)
		curr := tbl.Rows[i]["creation_date"].(time.Time)
		require.False(t, curr.Before(prev), "row %d out of order", i)
	}
}

func TestColumnsDateColumnLeads(t *testing.T) {
	tbl := &Table{
		Rows: []Row{
			{"value": "1", "creation_date": day(1)},
			{"unit": "count", "creation_date": day(2)},
		},
	}
	require.Equal(t, []string{"creation_date", "unit", "value"}, tbl.Columns("creation_date"))
}

func TestWriteCSV(t *testing.T) {
	tbl := &Table{
		Name: "Record",
		Rows: []Row{
			{"creation_date": day(1), "value": 12.5, "source_name": "Watch"},
			{"creation_date": day(2), "value": 3.0},
		},
	}

	var buf strings.Builder
	require.NoError(t, tbl.WriteCSV(&buf, "creation_date"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"creation_date,source_name,value",
		"2020-04-01T00:00:00Z,Watch,12.5",
		"2020-04-02T00:00:00Z,,3",
	}, lines)
}

package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"example.com/healthexport/internal/template"
)

const fixtureDir = "testdata/apple_health_export"

var sast = time.FixedZone("SAST", 2*60*60)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.Load()
	require.NoError(t, err)
	return tmpl
}

func TestRunWithoutCutoff(t *testing.T) {
	extractor := New(fixtureDir, loadTemplate(t), WithLogger(zaptest.NewLogger(t)))
	result, err := extractor.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 5, result.Records.Len())
	require.Equal(t, 3, result.Workouts.Len())
	require.Equal(t, 3, result.Activities.Len())
	require.Equal(t, 3, result.Routes.Len())

	require.Equal(t, "1989-04-24", result.Info.Characteristics["DateOfBirth"])
	require.Equal(t, "Male", result.Info.Characteristics["BiologicalSex"])
	require.Equal(t, "NotSet", result.Info.Characteristics["BloodType"])
	require.Equal(t, time.Date(2020, 4, 17, 10, 0, 0, 0, sast).UTC(), result.Info.ExportDate.UTC())

	// Activities sort ascending on date_components; the earliest day leads.
	first := result.Activities.Rows[0]
	require.Equal(t, time.Date(2020, 4, 5, 0, 0, 0, 0, time.UTC), first["date_components"])
	require.Equal(t, 408.302, first["active_energy_burned"])

	// The cross-training workout standardizes sec/m/cal onto min/km/kcal.
	second := result.Workouts.Rows[1]
	require.Equal(t, "CrossTraining", second["activity"])
	require.Equal(t, 30.0, second["duration_min"])
	require.Equal(t, 2.5, second["distance_km"])
	require.Equal(t, 250.0, second["energy_burned_kcal"])
}

func TestRunTableOrderIsNonDecreasing(t *testing.T) {
	extractor := New(fixtureDir, loadTemplate(t), WithLogger(zaptest.NewLogger(t)))
	result, err := extractor.Run(context.Background())
	require.NoError(t, err)

	for _, tbl := range []struct {
		name, column string
	}{
		{"Record", "creation_date"},
		{"Workout", "creation_date"},
		{"ActivitySummary", "date_components"},
	} {
		rows := result.Tables()[tbl.name].Rows
		for i := 1; i < len(rows); i++ {
			prev := rows[i-1][tbl.column].(time.Time)
			curr := rows[i][tbl.column].(time.Time)
			require.False(t, curr.Before(prev), "%s row %d out of order", tbl.name, i)
		}
	}
}

func TestRunWithCutoff(t *testing.T) {
	cutoff := time.Date(2020, 4, 12, 0, 0, 0, 0, sast)
	extractor := New(fixtureDir, loadTemplate(t),
		WithLogger(zaptest.NewLogger(t)),
		WithLocation(sast),
		WithCutoff(cutoff),
	)
	result, err := extractor.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, result.Records.Len())
	require.Equal(t, 1, result.Workouts.Len())
	require.Equal(t, 1, result.Activities.Len())
	require.Equal(t, 3, result.Routes.Len())
}

func TestRunRoutesJoinTrackPointsToMetadata(t *testing.T) {
	extractor := New(fixtureDir, loadTemplate(t), WithLogger(zaptest.NewLogger(t)))
	result, err := extractor.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, result.Routes.Len())
	first := result.Routes.Rows[0]
	require.Equal(t, "/workout-routes/route_2020-04-15_10.30am.gpx", first["path"])
	require.Equal(t, first["path"], first["filename"])
	require.Equal(t, "User’s Apple Watch", first["sourceName"])
	require.Equal(t, -26.2041, first["latitude"])
	require.Equal(t, 28.0436, first["longitude"])
	require.Equal(t, 1750.1, first["elevation"])
	require.Equal(t, time.Date(2020, 4, 15, 8, 30, 0, 0, time.UTC), first["time"].(time.Time).UTC())
}

func TestRunWorkerCountTransparency(t *testing.T) {
	tmpl := loadTemplate(t)

	serial, err := New(fixtureDir, tmpl, WithWorkers(1)).Run(context.Background())
	require.NoError(t, err)
	parallel, err := New(fixtureDir, tmpl, WithWorkers(4)).Run(context.Background())
	require.NoError(t, err)

	for name, tbl := range serial.Tables() {
		if diff := cmp.Diff(tbl.Rows, parallel.Tables()[name].Rows); diff != "" {
			t.Fatalf("%s table differs between worker counts (-serial +parallel):\n%s", name, diff)
		}
	}
}

func TestRunWithoutRouteMetadata(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_ZA">
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="Phone" unit="count" value="10" creationDate="2020-04-05 20:04:15 +0200" startDate="2020-04-05 19:00:00 +0200" endDate="2020-04-05 19:10:00 +0200"/>
</HealthData>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, exportFileName), []byte(doc), 0o644))

	routesDir := filepath.Join(dir, routesDirName)
	require.NoError(t, os.MkdirAll(routesDir, 0o755))
	src, err := os.ReadFile(filepath.Join(fixtureDir, routesDirName, "route_2020-04-15_10.30am.gpx"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(routesDir, "route_2020-04-15_10.30am.gpx"), src, 0o644))

	extractor := New(dir, loadTemplate(t), WithLogger(zaptest.NewLogger(t)))
	result, err := extractor.Run(context.Background())
	require.NoError(t, err)

	// No metadata: the raw track points come back unjoined with a warning,
	// and the missing Me/ExportDate nodes degrade to zero values.
	require.Equal(t, 3, result.Routes.Len())
	require.NotContains(t, result.Routes.Rows[0], "path")
	require.True(t, result.Info.ExportDate.IsZero())
	require.Empty(t, result.Info.Characteristics)
}

func TestRunAbortsOnMalformedRecord(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_ZA">
 <Workout workoutActivityType="HKWorkoutActivityTypeYoga" duration="55" durationUnit="fortnight" creationDate="2020-04-06 07:30:00 +0200" startDate="2020-04-06 06:30:00 +0200" endDate="2020-04-06 07:25:28 +0200"/>
</HealthData>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, exportFileName), []byte(doc), 0o644))

	extractor := New(dir, loadTemplate(t), WithLogger(zaptest.NewLogger(t)))
	_, err := extractor.Run(context.Background())
	require.Error(t, err)
}

func TestChunkRecords(t *testing.T) {
	records := make([]map[string]string, 10)

	tests := []struct {
		workers   int
		wantSizes []int
	}{
		{1, []int{10}},
		{3, []int{4, 4, 2}},
		{4, []int{3, 3, 3, 1}},
		{12, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0}},
	}
	for _, tc := range tests {
		chunks := chunkRecords(records, tc.workers)
		require.Len(t, chunks, tc.workers)
		var sizes []int
		total := 0
		for _, chunk := range chunks {
			sizes = append(sizes, len(chunk))
			total += len(chunk)
		}
		require.Equal(t, tc.wantSizes, sizes, "workers=%d", tc.workers)
		require.Equal(t, len(records), total)
	}
}

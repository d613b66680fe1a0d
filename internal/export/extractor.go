// Package export ingests an Apple Health export directory and produces the
// normalized category tables.
package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/healthexport/internal/format"
	"example.com/healthexport/internal/table"
	"example.com/healthexport/internal/template"
)

// DefaultWorkers is the per-category formatting fan-out when none is set.
const DefaultWorkers = 4

// metadataCategories are the export's singleton metadata nodes. They feed the
// Info block instead of a table and are counted explicitly in the integrity
// check.
var metadataCategories = []string{"Me", "ExportDate"}

// tableCategories are built into tables, in build order.
var tableCategories = []string{"ActivitySummary", "Workout", "Record"}

// Result bundles the tables produced from one export directory.
type Result struct {
	Info       Info
	Activities *table.Table
	Workouts   *table.Table
	Records    *table.Table
	Routes     *table.Table
}

// Tables returns the category tables keyed by name, for export surfaces that
// iterate rather than pick.
func (r *Result) Tables() map[string]*table.Table {
	return map[string]*table.Table{
		"ActivitySummary": r.Activities,
		"Workout":         r.Workouts,
		"Record":          r.Records,
		"Route":           r.Routes,
	}
}

// Extractor reads one export directory and builds the result tables. The
// format template is shared read-only across all workers.
type Extractor struct {
	dir     string
	tmpl    *template.Template
	logger  *zap.Logger
	workers int
	loc     *time.Location
	from    time.Time
}

// Option configures optional behaviour for the Extractor.
type Option func(*Extractor)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithWorkers sets the per-category formatting fan-out.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCutoff keeps only nodes and route files dated on or after t.
func WithCutoff(t time.Time) Option {
	return func(e *Extractor) {
		e.from = t
	}
}

// WithLocation sets the reference timezone used for cutoff comparisons.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// New constructs an Extractor over an export directory.
func New(dir string, tmpl *template.Template, opts ...Option) *Extractor {
	e := &Extractor{
		dir:     dir,
		tmpl:    tmpl,
		logger:  zap.NewNop(),
		workers: DefaultWorkers,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run loads the archive and builds every table. Categories build
// sequentially; formatting within a category fans out across workers. A
// formatting error in any worker aborts that category's build and Run.
func (e *Extractor) Run(ctx context.Context) (*Result, error) {
	e.logger.Info("extracting health data", zap.String("dir", e.dir))

	ar, err := e.readArchive()
	if err != nil {
		return nil, err
	}

	result := &Result{Info: e.extractInfo(ar)}
	for _, category := range tableCategories {
		tbl, err := e.buildTable(ctx, ar, category)
		if err != nil {
			return nil, err
		}
		switch category {
		case "ActivitySummary":
			result.Activities = tbl
		case "Workout":
			result.Workouts = tbl
		case "Record":
			result.Records = tbl
		}
	}

	routes, err := e.buildRoutes(ar)
	if err != nil {
		return nil, err
	}
	result.Routes = routes

	e.reportStats(ar, result)
	return result, nil
}

// buildTable fans the category's raw records out over contiguous chunks,
// formats each chunk on its own worker, concatenates the partial tables in
// worker order and sorts by the category's date column. Sorting after
// concatenation keeps the final order independent of chunk boundaries.
func (e *Extractor) buildTable(ctx context.Context, ar *archive, category string) (*table.Table, error) {
	cat, ok := e.tmpl.Category(category)
	if !ok {
		return nil, fmt.Errorf("no template entry for category %q", category)
	}

	records := ar.nodesFor(category)
	chunks := chunkRecords(records, e.workers)
	partials := make([][]table.Row, len(chunks))
	formatter := format.NewRecordFormatter(e.tmpl)

	g, _ := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			rows := make([]table.Row, 0, len(chunk))
			for _, record := range chunk {
				row, err := formatter.Format(category, record)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			partials[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build %s table: %w", category, err)
	}

	tbl := &table.Table{Name: category, Rows: make([]table.Row, 0, len(records))}
	for _, partial := range partials {
		tbl.Rows = append(tbl.Rows, partial...)
	}
	if dateColumn, ok := cat.DateColumn(); ok {
		tbl.SortByDate(dateColumn)
	}

	e.logger.Info("built table", zap.String("category", category), zap.Int("rows", tbl.Len()))
	return tbl, nil
}

// chunkRecords splits records into n contiguous chunks of ceiling-division
// size. Trailing chunks may be smaller or empty.
func chunkRecords(records []map[string]string, n int) [][]map[string]string {
	if n < 1 {
		n = 1
	}
	size := (len(records) + n - 1) / n
	chunks := make([][]map[string]string, n)
	for i := range chunks {
		lo := min(i*size, len(records))
		hi := min(lo+size, len(records))
		chunks[i] = records[lo:hi]
	}
	return chunks
}

// reportStats logs per-table counts and checks that every filtered node in a
// consumed category landed in a table or in the metadata block.
func (e *Extractor) reportStats(ar *archive, result *Result) {
	if !result.Info.ExportDate.IsZero() {
		e.logger.Info("export date", zap.Time("export_date", result.Info.ExportDate))
	}
	e.logger.Info("table sizes",
		zap.Int("records", result.Records.Len()),
		zap.Int("workouts", result.Workouts.Len()),
		zap.Int("activities", result.Activities.Len()),
		zap.Int("routes", result.Routes.Len()),
	)

	consumed := append(append([]string{}, tableCategories...), metadataCategories...)
	totalNodes := ar.countNodes(consumed...)
	metaNodes := ar.countNodes(metadataCategories...)
	extracted := result.Records.Len() + result.Workouts.Len() + result.Activities.Len()

	if extracted+metaNodes == totalNodes {
		e.logger.Info("extraction complete", zap.Int("nodes", totalNodes))
		return
	}
	e.logger.Warn("extraction incomplete",
		zap.Int("nodes", totalNodes),
		zap.Int("extracted", extracted),
		zap.Int("metadata_nodes", metaNodes),
		zap.Int("missing", totalNodes-metaNodes-extracted),
	)
}

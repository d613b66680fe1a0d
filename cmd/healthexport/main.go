// Command healthexport normalizes an Apple Health export directory into
// analysis-ready CSV tables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/healthexport/internal/config"
	"example.com/healthexport/internal/export"
	"example.com/healthexport/internal/table"
	"example.com/healthexport/internal/template"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	exportDir string
	outputDir string
	from      string
	timezone  string
	workers   int
	quiet     bool
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()
	opts := options{}

	cmd := &cobra.Command{
		Use:           "healthexport",
		Short:         "Normalize an Apple Health export into tabular CSV output",
		Long:          "Reads export.xml and the workout-routes directory from an Apple Health export, normalizes every record against the bundled format template, and writes one CSV per category.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.exportDir, "export-dir", "d", cfg.ExportDir, "directory containing export.xml")
	cmd.Flags().StringVarP(&opts.outputDir, "out", "o", cfg.OutputDir, "directory to write CSV tables to")
	cmd.Flags().StringVar(&opts.from, "from", "", "keep only data dated on or after this date (e.g. 2020-04-12)")
	cmd.Flags().StringVar(&opts.timezone, "timezone", cfg.Timezone, "reference timezone for the date cutoff")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", cfg.Workers, "formatting workers per category")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "log warnings only")
	return cmd
}

func run(ctx context.Context, opts options) error {
	logger, err := newLogger(opts.quiet)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tmpl, err := template.Load()
	if err != nil {
		return fmt.Errorf("load format template: %w", err)
	}
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	extractorOpts := []export.Option{
		export.WithLogger(logger),
		export.WithWorkers(opts.workers),
		export.WithLocation(loc),
	}
	if opts.from != "" {
		cutoff, err := dateparse.ParseIn(opts.from, loc)
		if err != nil {
			return fmt.Errorf("parse --from date: %w", err)
		}
		extractorOpts = append(extractorOpts, export.WithCutoff(cutoff))
	}

	result, err := export.New(opts.exportDir, tmpl, extractorOpts...).Run(ctx)
	if err != nil {
		return err
	}
	return writeTables(logger, tmpl, result, opts.outputDir)
}

func newLogger(quiet bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}

func writeTables(logger *zap.Logger, tmpl *template.Template, result *export.Result, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for name, tbl := range result.Tables() {
		path := filepath.Join(outputDir, strings.ToLower(name)+".csv")
		if err := writeTable(tmpl, tbl, path); err != nil {
			return err
		}
		logger.Info("wrote table", zap.String("path", path), zap.Int("rows", tbl.Len()))
	}
	return nil
}

func writeTable(tmpl *template.Template, tbl *table.Table, path string) error {
	dateColumn := "time" // route tables carry the track timestamp
	if cat, ok := tmpl.Category(tbl.Name); ok {
		if column, found := cat.DateColumn(); found {
			dateColumn = column
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tbl.WriteCSV(f, dateColumn); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

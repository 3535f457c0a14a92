package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-analytics/internal/dataset"
)

// Options configure an ingestion run.
type Options struct {
	RawDir     string
	Pattern    string
	OutputPath string
	ReportPath string
	Workers    int
}

// Validator cleans raw per-symbol CSV files into a single dataset.
type Validator struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Validator.
func New(opts Options, logger zerolog.Logger) *Validator {
	if opts.Pattern == "" {
		opts.Pattern = "*.csv"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Validator{opts: opts, logger: logger.With().Str("component", "ingest").Logger()}
}

// Run validates every matching file and writes the concatenated result.
// Files that fail are recorded in the report and skipped. The returned report
// is non-nil whenever files were found, including on ErrEmptyResult.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	files, err := filepath.Glob(filepath.Join(v.opts.RawDir, v.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("match input files: %w", err)
	}
	if len(files) == 0 {
		v.logger.Error().Str("dir", v.opts.RawDir).Str("pattern", v.opts.Pattern).Msg("no stock files found for ingestion")
		return nil, fmt.Errorf("%w in %s", ErrMissingInput, filepath.Join(v.opts.RawDir, v.opts.Pattern))
	}
	sort.Strings(files)

	report := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		OutputPath: v.opts.OutputPath,
		Files:      make([]FileResult, len(files)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Files[i] = v.processFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined []dataset.Record
	for i := range report.Files {
		if report.Files[i].OK() {
			combined = append(combined, report.Files[i].Records...)
			report.Files[i].Records = nil
		}
	}
	report.FinishedAt = time.Now().UTC()

	if len(combined) == 0 {
		v.logger.Error().Int("files", len(files)).Int("failed", report.Failed()).Msg("nothing left to write after validation")
		v.writeReport(report)
		return report, ErrEmptyResult
	}

	if err := dataset.WriteFile(v.opts.OutputPath, func(w io.Writer) error {
		return dataset.WriteRecords(w, combined)
	}); err != nil {
		return report, fmt.Errorf("write cleaned dataset: %w", err)
	}
	report.RowsWritten = len(combined)
	v.writeReport(report)

	v.logger.Info().
		Str("output", v.opts.OutputPath).
		Int("files", len(files)).
		Int("failed", report.Failed()).
		Int("rows", report.RowsWritten).
		Msg("ingestion completed")
	return report, nil
}

func (v *Validator) writeReport(report *Report) {
	if v.opts.ReportPath == "" {
		return
	}
	if err := WriteReport(v.opts.ReportPath, report); err != nil {
		v.logger.Error().Err(err).Str("path", v.opts.ReportPath).Msg("failed to write ingestion report")
	}
}

func (v *Validator) processFile(path string) FileResult {
	res := FileResult{Path: path}

	file, err := os.Open(path)
	if err != nil {
		res.Err = fmt.Errorf("open %s: %w", path, err)
		v.logFailure(res)
		return res
	}
	defer file.Close()

	res.Records, res.RowsBefore, res.Err = Clean(file, path)
	res.RowsAfter = len(res.Records)
	if res.Err != nil {
		res.Records = nil
		res.RowsAfter = 0
		v.logFailure(res)
		return res
	}

	v.logger.Info().
		Str("file", path).
		Int("rows_before", res.RowsBefore).
		Int("rows_after", res.RowsAfter).
		Msg("file validated")
	return res
}

func (v *Validator) logFailure(res FileResult) {
	v.logger.Error().Err(res.Err).
		Str("file", res.Path).
		Str("failure", string(Kind(res.Err))).
		Msg("failed processing file")
}

// Clean validates one raw CSV stream. It returns the rows that survived
// coercion and the number of data rows read. A header lacking required
// columns yields *SchemaMismatchError; name is used only in error messages.
func Clean(r io.Reader, name string) ([]dataset.Record, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	columns, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read %s: empty file", name)
		}
		return nil, 0, fmt.Errorf("read header of %s: %w", name, err)
	}

	header := dataset.NormalizeHeader(columns)
	if missing := header.Missing(dataset.RequiredColumns); len(missing) > 0 {
		return nil, 0, &SchemaMismatchError{File: name, Missing: missing}
	}

	var (
		records []dataset.Record
		before  int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, before, fmt.Errorf("read %s: %w", name, err)
		}
		before++
		if rec, ok := header.ParseRow(row); ok {
			records = append(records, rec)
		}
	}
	return records, before, nil
}

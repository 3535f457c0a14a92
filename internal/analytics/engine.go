package analytics

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"stock-analytics/internal/dataset"
)

// EngineOptions locate the cleaned input and the enriched output.
type EngineOptions struct {
	InputPath  string
	OutputPath string
	Windows    Options
}

// Result summarises one transform.
type Result struct {
	Rows      []dataset.Enriched
	Columns   dataset.DerivedColumns
	Companies int
	Duration  time.Duration
}

// Engine reads a cleaned dataset, enriches it and writes it back out.
type Engine struct {
	opts   EngineOptions
	logger zerolog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(opts EngineOptions, logger zerolog.Logger) *Engine {
	return &Engine{opts: opts, logger: logger.With().Str("component", "analytics").Logger()}
}

// Run executes the transform. A missing required column in the input is
// returned as *dataset.MissingColumnError.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.opts.Windows.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	file, err := os.Open(e.opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open cleaned dataset: %w", err)
	}
	records, err := dataset.ReadRecords(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("read cleaned dataset %s: %w", e.opts.InputPath, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := Compute(records, e.opts.Windows)
	cols := e.opts.Windows.Columns()

	if err := dataset.WriteFile(e.opts.OutputPath, func(w io.Writer) error {
		return dataset.WriteEnriched(w, cols, rows)
	}); err != nil {
		return nil, fmt.Errorf("write enriched dataset: %w", err)
	}

	res := &Result{
		Rows:      rows,
		Columns:   cols,
		Companies: CountCompanies(rows),
		Duration:  time.Since(started),
	}
	e.logger.Info().
		Str("input", e.opts.InputPath).
		Str("output", e.opts.OutputPath).
		Int("rows", len(rows)).
		Int("companies", res.Companies).
		Dur("duration", res.Duration).
		Msg("analytics completed")
	return res, nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"stock-analytics/internal/dataset"
)

// Export renders one company's enriched history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if strings.TrimSpace(opts.Company) == "" {
		return errors.New("--company must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	rows, cols, err := readEnrichedFile(a.Config.Paths.EnrichedFile)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	selected := selectRows(rows, opts.Company, opts.From, opts.To)
	if len(selected) == 0 {
		a.Logger.Info().Str("company", opts.Company).Msg("no rows found for export window")
		return nil
	}

	downsampled := downsampleRows(selected, opts.MaxPoints)
	a.Logger.Info().
		Str("company", opts.Company).
		Int("total", len(selected)).
		Int("exported", len(downsampled)).
		Msg("exporting analytics")

	if opts.CSVPath != "" {
		if err := dataset.WriteFile(opts.CSVPath, func(w io.Writer) error {
			return dataset.WriteEnriched(w, cols, downsampled)
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	if opts.PNGPath != "" {
		if err := writeChartPNG(opts.PNGPath, downsampled, cols, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
	}

	return nil
}

func readEnrichedFile(path string) ([]dataset.Enriched, dataset.DerivedColumns, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, dataset.DerivedColumns{}, fmt.Errorf("open enriched dataset: %w", err)
	}
	defer file.Close()

	rows, cols, err := dataset.ReadEnriched(file)
	if err != nil {
		return nil, dataset.DerivedColumns{}, fmt.Errorf("read enriched dataset %s: %w", path, err)
	}
	return rows, cols, nil
}

// selectRows keeps one company's rows within [from, to). Either bound may be nil.
func selectRows(rows []dataset.Enriched, company string, from, to *time.Time) []dataset.Enriched {
	var out []dataset.Enriched
	for _, row := range rows {
		if !strings.EqualFold(row.Company, company) {
			continue
		}
		if from != nil && row.Date.Before(*from) {
			continue
		}
		if to != nil && !row.Date.Before(*to) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func downsampleRows(rows []dataset.Enriched, max int) []dataset.Enriched {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]dataset.Enriched, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

// definedPoints returns the points of a derived series that have a value.
func definedPoints(rows []dataset.Enriched, pick func(dataset.Enriched) dataset.Float) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, row := range rows {
		v := pick(row)
		if !v.Valid {
			continue
		}
		xs = append(xs, row.Date)
		ys = append(ys, v.Value)
	}
	return xs, ys
}

func writeChartPNG(path string, rows []dataset.Enriched, cols dataset.DerivedColumns, width, height int) error {
	if len(rows) < 2 {
		return errors.New("at least two rows are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	x := make([]time.Time, len(rows))
	closes := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = row.Date
		closes[i] = row.Close
	}

	series := []chart.Series{
		chart.TimeSeries{Name: "Close", XValues: x, YValues: closes},
	}
	derived := []struct {
		name string
		pick func(dataset.Enriched) dataset.Float
	}{
		{cols.MAShort, func(r dataset.Enriched) dataset.Float { return r.MAShort }},
		{cols.MALong, func(r dataset.Enriched) dataset.Float { return r.MALong }},
	}
	for _, d := range derived {
		xs, ys := definedPoints(rows, d.pick)
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{Name: d.name, XValues: xs, YValues: ys})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  rows[0].Company,
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

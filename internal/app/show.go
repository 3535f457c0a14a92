package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"stock-analytics/internal/dataset"
	"stock-analytics/internal/storage"
)

// Show prints the latest enriched rows per company, and optionally the most
// recent pipeline runs from the database.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Runs {
		return a.showRuns(ctx, os.Stdout, opts.Limit)
	}

	rows, cols, err := readEnrichedFile(a.Config.Paths.EnrichedFile)
	if err != nil {
		return err
	}
	latest := latestPerCompany(rows, opts.Company, opts.Limit)
	if len(latest) == 0 {
		fmt.Fprintln(os.Stdout, "no rows found")
		return nil
	}
	return writeRowsTable(os.Stdout, latest, cols)
}

func (a *App) showRuns(ctx context.Context, out io.Writer, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	runs, err := store.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}
	return writeRunsTable(out, runs)
}

// latestPerCompany keeps the last limit rows of each company, companies in
// name order and rows in date order.
func latestPerCompany(rows []dataset.Enriched, company string, limit int) []dataset.Enriched {
	groups := make(map[string][]dataset.Enriched)
	for _, row := range rows {
		if company != "" && !strings.EqualFold(row.Company, company) {
			continue
		}
		groups[row.Company] = append(groups[row.Company], row)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []dataset.Enriched
	for _, name := range names {
		group := groups[name]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })
		if limit > 0 && len(group) > limit {
			group = group[len(group)-limit:]
		}
		out = append(out, group...)
	}
	return out
}

func writeRowsTable(out io.Writer, rows []dataset.Enriched, cols dataset.DerivedColumns) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Company\tDate\tClose\tReturn\t%s\t%s\t%s\n", cols.MAShort, cols.MALong, cols.Volatility)

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sanitizeInline(row.Company),
			row.Date.Format(dataset.DateLayout),
			fixed(dataset.Some(row.Close), 2),
			fixed(row.DailyReturn, 4),
			fixed(row.MAShort, 2),
			fixed(row.MALong, 2),
			fixed(row.Volatility, 4),
		)
	}

	return writer.Flush()
}

func writeRunsTable(out io.Writer, runs []storage.RunRecord) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tDuration\tFiles\tFailed\tCleaned\tEnriched\tStatus\tError")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.FilesTotal,
			run.FilesFailed,
			run.RowsCleaned,
			run.RowsEnriched,
			run.Status,
			sanitizeInline(run.Error),
		)
	}

	return writer.Flush()
}

func fixed(v dataset.Float, places int) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.*f", places, v.Value)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

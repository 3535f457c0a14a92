package analytics

import (
	"fmt"
	"slices"
	"strings"

	"stock-analytics/internal/dataset"
)

// Options sets the trailing window sizes.
type Options struct {
	ShortWindow      int
	LongWindow       int
	VolatilityWindow int
}

// DefaultOptions returns the 7/30/30 windows.
func DefaultOptions() Options {
	return Options{ShortWindow: 7, LongWindow: 30, VolatilityWindow: 30}
}

// Validate checks that every window is positive and the short average is
// shorter than the long one.
func (o Options) Validate() error {
	if o.ShortWindow <= 0 || o.LongWindow <= 0 || o.VolatilityWindow <= 0 {
		return fmt.Errorf("analytics windows must be positive (short=%d long=%d volatility=%d)", o.ShortWindow, o.LongWindow, o.VolatilityWindow)
	}
	if o.ShortWindow >= o.LongWindow {
		return fmt.Errorf("short window %d must be less than long window %d", o.ShortWindow, o.LongWindow)
	}
	return nil
}

// Columns returns the derived column names for these windows.
func (o Options) Columns() dataset.DerivedColumns {
	return dataset.DerivedNames(o.ShortWindow, o.LongWindow, o.VolatilityWindow)
}

// SortRecords returns a copy ordered by company, then date. Rows sharing
// both keep their input order.
func SortRecords(records []dataset.Record) []dataset.Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b dataset.Record) int {
		if c := strings.Compare(a.Company, b.Company); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
	return sorted
}

// Compute sorts the records and derives daily return, moving averages and
// rolling volatility for each company independently.
func Compute(records []dataset.Record, opts Options) []dataset.Enriched {
	sorted := SortRecords(records)
	out := make([]dataset.Enriched, len(sorted))

	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Company == sorted[start].Company {
			end++
		}
		computeGroup(sorted[start:end], out[start:end], opts)
		start = end
	}
	return out
}

func computeGroup(group []dataset.Record, out []dataset.Enriched, opts Options) {
	short := newWindow(opts.ShortWindow)
	long := newWindow(opts.LongWindow)
	returns := newWindow(opts.VolatilityWindow)

	for i, rec := range group {
		row := dataset.Enriched{Record: rec}

		if i > 0 {
			if prev := group[i-1].Close; prev != 0 {
				row.DailyReturn = dataset.Some((rec.Close - prev) / prev)
			}
		}

		short.push(rec.Close, true)
		long.push(rec.Close, true)
		returns.push(row.DailyReturn.Value, row.DailyReturn.Valid)

		row.MAShort = short.average()
		row.MALong = long.average()
		row.Volatility = returns.stddev()
		out[i] = row
	}
}

// CountCompanies returns the number of distinct companies.
func CountCompanies(rows []dataset.Enriched) int {
	seen := make(map[string]struct{})
	for _, row := range rows {
		seen[row.Company] = struct{}{}
	}
	return len(seen)
}

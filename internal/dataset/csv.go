package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MissingColumnError reports required columns absent from a header.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Header maps normalised column names to their position.
type Header map[string]int

// NormalizeHeader lower-cases and trims column names. The first occurrence of a
// duplicated name wins.
func NormalizeHeader(columns []string) Header {
	header := make(Header, len(columns))
	for i, col := range columns {
		name := strings.ToLower(strings.TrimSpace(col))
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, seen := header[name]; !seen {
			header[name] = i
		}
	}
	return header
}

// Missing returns the names from required that are not present.
func (h Header) Missing(required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Require fails with a MissingColumnError when any column is absent.
func (h Header) Require(required []string) error {
	if missing := h.Missing(required); len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

func (h Header) cell(row []string, col string) string {
	idx, ok := h[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// ParseRow coerces one raw row. ok is false when the date, any numeric field
// or the company is missing or unparseable.
func (h Header) ParseRow(row []string) (Record, bool) {
	var rec Record
	var ok bool

	if rec.Date, ok = ParseDate(h.cell(row, ColDate)); !ok {
		return Record{}, false
	}
	targets := []*float64{&rec.Open, &rec.High, &rec.Low, &rec.Close, &rec.Volume}
	for i, col := range NumericColumns {
		if *targets[i], ok = ParseFloat(h.cell(row, col)); !ok {
			return Record{}, false
		}
	}

	rec.Company = strings.TrimSpace(h.cell(row, ColCompany))
	rec.Sector = strings.TrimSpace(h.cell(row, ColSector))
	if rec.Company == "" {
		return Record{}, false
	}
	return rec, true
}

func recordFields(rec Record) []string {
	return []string{
		rec.Date.Format(DateLayout),
		FormatFloat(rec.Open),
		FormatFloat(rec.High),
		FormatFloat(rec.Low),
		FormatFloat(rec.Close),
		FormatFloat(rec.Volume),
		rec.Company,
		rec.Sector,
	}
}

// WriteRecords writes a header and one line per record.
func WriteRecords(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(RequiredColumns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(recordFields(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadRecords reads an already-cleaned dataset. Unlike ingestion it does not
// drop bad rows: any unparseable row is an error.
func ReadRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	columns, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MissingColumnError{Columns: RequiredColumns}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := NormalizeHeader(columns)
	if err := header.Require(RequiredColumns); err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		rec, ok := header.ParseRow(row)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid record", line)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteEnriched writes records with their analytics columns. Undefined values
// are written as empty cells.
func WriteEnriched(w io.Writer, cols DerivedColumns, rows []Enriched) error {
	writer := csv.NewWriter(w)
	header := append(append([]string{}, RequiredColumns...), cols.Slice()...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		fields := append(recordFields(row.Record),
			row.DailyReturn.String(),
			row.MAShort.String(),
			row.MALong.String(),
			row.Volatility.String(),
		)
		if err := writer.Write(fields); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadEnriched reads a file produced by WriteEnriched. The moving average and
// volatility columns are located by prefix so any window size is accepted.
func ReadEnriched(r io.Reader) ([]Enriched, DerivedColumns, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	columns, err := reader.Read()
	if err != nil {
		return nil, DerivedColumns{}, fmt.Errorf("read header: %w", err)
	}
	header := NormalizeHeader(columns)
	if err := header.Require(append(append([]string{}, RequiredColumns...), ColDailyReturn)); err != nil {
		return nil, DerivedColumns{}, err
	}

	cols := DerivedColumns{DailyReturn: ColDailyReturn}
	var averages []string
	for _, col := range columns {
		name := strings.ToLower(strings.TrimSpace(col))
		switch {
		case strings.HasPrefix(name, "ma_") && len(averages) < 2:
			averages = append(averages, name)
		case strings.HasPrefix(name, "volatility_") && cols.Volatility == "":
			cols.Volatility = name
		}
	}
	if len(averages) == 2 {
		// the shorter window is ma_short whatever the column order
		if windowSize(averages[0]) > windowSize(averages[1]) {
			averages[0], averages[1] = averages[1], averages[0]
		}
		cols.MAShort, cols.MALong = averages[0], averages[1]
	}
	var missing []string
	if cols.MAShort == "" || cols.MALong == "" {
		missing = append(missing, "ma_<n>")
	}
	if cols.Volatility == "" {
		missing = append(missing, "volatility_<n>")
	}
	if len(missing) > 0 {
		return nil, DerivedColumns{}, &MissingColumnError{Columns: missing}
	}

	optional := func(row []string, col string) Float {
		if v, ok := ParseFloat(header.cell(row, col)); ok {
			return Some(v)
		}
		return Float{}
	}

	rows := make([]Enriched, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, DerivedColumns{}, fmt.Errorf("read line %d: %w", line, err)
		}
		rec, ok := header.ParseRow(row)
		if !ok {
			return nil, DerivedColumns{}, fmt.Errorf("line %d: invalid record", line)
		}
		rows = append(rows, Enriched{
			Record:      rec,
			DailyReturn: optional(row, cols.DailyReturn),
			MAShort:     optional(row, cols.MAShort),
			MALong:      optional(row, cols.MALong),
			Volatility:  optional(row, cols.Volatility),
		})
	}
	return rows, cols, nil
}

// WriteFile writes to a temporary file next to path and renames it into place,
// so readers never observe a partial file.
func WriteFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// windowSize reads n from a "ma_<n>" column name; unparseable suffixes sort last.
func windowSize(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "ma_"))
	if err != nil {
		return math.MaxInt
	}
	return n
}

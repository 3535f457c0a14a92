package ingest

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"stock-analytics/internal/dataset"
)

// FileResult is the outcome of validating one input file: either cleaned
// records or a failure.
type FileResult struct {
	Path       string
	RowsBefore int
	RowsAfter  int
	Records    []dataset.Record
	Err        error
}

// OK reports whether the file contributed to the output.
func (r FileResult) OK() bool {
	return r.Err == nil
}

// Report collects per-file results for one ingestion run.
type Report struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	OutputPath  string
	RowsWritten int
	Files       []FileResult
}

// Failed counts files that were skipped.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if !f.OK() {
			n++
		}
	}
	return n
}

// RowsBefore sums the raw row count of every readable file.
func (r *Report) RowsBefore() int {
	n := 0
	for _, f := range r.Files {
		n += f.RowsBefore
	}
	return n
}

type fileEntry struct {
	Path       string      `yaml:"path"`
	RowsBefore int         `yaml:"rows_before"`
	RowsAfter  int         `yaml:"rows_after"`
	Failure    FailureKind `yaml:"failure,omitempty"`
	Reason     string      `yaml:"reason,omitempty"`
}

type reportDocument struct {
	RunID       string      `yaml:"run_id"`
	StartedAt   time.Time   `yaml:"started_at"`
	FinishedAt  time.Time   `yaml:"finished_at"`
	Output      string      `yaml:"output,omitempty"`
	RowsWritten int         `yaml:"rows_written"`
	FilesTotal  int         `yaml:"files_total"`
	FilesFailed int         `yaml:"files_failed"`
	Files       []fileEntry `yaml:"files"`
}

// MarshalYAML renders the report without the record payloads.
func (r *Report) MarshalYAML() (interface{}, error) {
	doc := reportDocument{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		Output:      r.OutputPath,
		RowsWritten: r.RowsWritten,
		FilesTotal:  len(r.Files),
		FilesFailed: r.Failed(),
		Files:       make([]fileEntry, 0, len(r.Files)),
	}
	for _, f := range r.Files {
		entry := fileEntry{Path: f.Path, RowsBefore: f.RowsBefore, RowsAfter: f.RowsAfter, Failure: Kind(f.Err)}
		if f.Err != nil {
			entry.Reason = f.Err.Error()
		}
		doc.Files = append(doc.Files, entry)
	}
	return doc, nil
}

// WriteReport saves the report as YAML.
func WriteReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal ingestion report: %w", err)
	}
	if err := dataset.WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("write ingestion report: %w", err)
	}
	return nil
}

package storage

import "time"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunRecord is the audit row of one pipeline run.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	FilesTotal   int
	FilesFailed  int
	RowsCleaned  int
	RowsEnriched int
	Status       string
	Error        string
}

package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput indicates no file matched the input pattern.
	ErrMissingInput = errors.New("ingest: no input files found")
	// ErrEmptyResult indicates every file failed or every row was dropped.
	ErrEmptyResult = errors.New("ingest: no valid rows after validation")
)

// FailureKind tags why a file was skipped.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureSchemaMismatch FailureKind = "schema_mismatch"
	FailureRead           FailureKind = "read_error"
)

// SchemaMismatchError reports a file lacking required columns.
type SchemaMismatchError struct {
	File    string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: missing %s", e.File, strings.Join(e.Missing, ", "))
}

// Kind classifies a per-file error.
func Kind(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var schema *SchemaMismatchError
	if errors.As(err, &schema) {
		return FailureSchemaMismatch
	}
	return FailureRead
}

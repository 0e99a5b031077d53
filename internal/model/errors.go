package model

import (
	"fmt"
	"strings"
)

// MissingInputError reports a required input source that does not exist.
type MissingInputError struct {
	Source string
	Err    error
}

func (e *MissingInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing input %s: %v", e.Source, e.Err)
	}
	return "missing input " + e.Source
}

func (e *MissingInputError) Unwrap() error {
	return e.Err
}

// SchemaError reports required columns absent from a table. Extra columns
// never cause a SchemaError; they are carried for logging only.
type SchemaError struct {
	Table   string
	Missing []string
	Extra   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s is missing columns: [%s]", e.Table, strings.Join(e.Missing, ", "))
}

// ValidationError reports a violated join cardinality or an invalid value
// that cannot be dropped silently.
type ValidationError struct {
	Table  string
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key %q)", e.Table, e.Reason, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Reason)
}

// EmptyResultError reports a stage that produced zero rows where downstream
// stages require data.
type EmptyResultError struct {
	Stage string
}

func (e *EmptyResultError) Error() string {
	return e.Stage + " produced no rows; check input data"
}

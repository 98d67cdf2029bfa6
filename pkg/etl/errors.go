package etl

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned by Run when another run holds the pipeline.
// Runs must be serialized; overlapping them would break merge correctness.
var ErrRunInProgress = errors.New("etl: run already in progress")

// SourceError means the extract stage could not reach the source store.
// Fatal for the run; there is no partial batch to salvage.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// MergeError means the customer merge hit an invariant violation: a fetched
// row that has no batch counterpart. It indicates a bug, never bad input,
// and is fatal for the run.
type MergeError struct {
	MSISDN string
	Reason string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("customer merge invariant violated for %s: %s", e.MSISDN, e.Reason)
}

// SinkError means one aggregate kind failed to persist. The loader still
// attempts the other kinds; the run reports partial failure.
type SinkError struct {
	Kind string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink unavailable for %s: %v", e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

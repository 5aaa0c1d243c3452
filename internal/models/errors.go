package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed request input or extractor output.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown meeting, job, or requirement ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a requirement already has a ticket
	// or a meeting already has an active job.
	ErrAlreadyExists = errors.New("already exists")
	// ErrJobTerminal is returned when writing to a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// ErrorKind classifies stage and item failures.
type ErrorKind string

const (
	KindTranscription   ErrorKind = "transcription"
	KindExtractionItem  ErrorKind = "extraction_item"
	KindExtractionStage ErrorKind = "extraction_stage"
	KindTicketItem      ErrorKind = "ticket_item"
)

// StageError carries the failing stage and the kind of failure.
type StageError struct {
	Kind    ErrorKind
	Stage   JobStatus
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsStageFatal reports whether err aborts the whole job.
func IsStageFatal(err error) bool {
	var se *StageError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindTranscription || se.Kind == KindExtractionStage
}

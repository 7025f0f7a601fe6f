package core

import (
	"errors"
	"fmt"

	"github.com/evoapps/evotrees/internal/core/fold"
)

// Outcome tags the result of folding one revision.
type Outcome int

const (
	Committed Outcome = iota
	// Skipped revisions were already persisted by an earlier run.
	Skipped
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Skipped:
		return "skipped"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// StepResult is the outcome of folding a single revision.
type StepResult struct {
	Outcome    Outcome
	RevisionID int64
	Err        error
}

// Status tags the result of importing one document.
type Status int

const (
	StatusImported Status = iota
	StatusResumed
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusImported:
		return "imported"
	case StatusResumed:
		return "resumed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DocumentResult reports one document. Committed counts revisions written by
// this run.
type DocumentResult struct {
	Title          string `json:"title"`
	Status         Status `json:"status"`
	Committed      int    `json:"committed"`
	LastRevisionID int64  `json:"last_revision_id,omitempty"`
	Err            error  `json:"-"`
}

var (
	ErrDuplicateRevision = errors.New("duplicate revision id")
	ErrOutOfOrder        = fold.ErrOutOfOrder
)

// DuplicateRevisionError reports a revision id that already exists in the
// graph. It matches ErrDuplicateRevision under errors.Is.
type DuplicateRevisionError struct {
	Title      string
	RevisionID int64
}

func (e *DuplicateRevisionError) Error() string {
	return fmt.Sprintf("document %q: revision %d already exists", e.Title, e.RevisionID)
}

func (e *DuplicateRevisionError) Is(target error) bool {
	return target == ErrDuplicateRevision
}

// OutOfOrderError reports a source that did not deliver revisions oldest
// first.
type OutOfOrderError struct {
	Title      string
	RevisionID int64
	Err        error
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("document %q: %v", e.Title, e.Err)
}

func (e *OutOfOrderError) Unwrap() error {
	return e.Err
}

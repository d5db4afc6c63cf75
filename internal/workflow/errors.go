package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal workflow error. Degraded (non-fatal) failures are
// never represented as a Kind; they are recorded as a Warning on Metrics and
// do not stop the pipeline.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindAccessDenied         Kind = "access_denied"
	KindFilterBuildFailed    Kind = "filter_build_failed"
	KindRetrievalFailed      Kind = "retrieval_failed"
	KindCancelled            Kind = "cancelled"
	KindDeadlineExceeded     Kind = "deadline_exceeded"
)

// Error is the fatal-error envelope ExecuteWorkflow returns. Kind lets
// callers branch on the taxonomy in §7 without string-matching messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err under kind. A nil err still produces a non-nil *Error
// carrying only the kind, for cases like InvalidInput that have no
// underlying cause.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// ErrEmptyQuery is the InvalidInput cause for a blank query string.
var ErrEmptyQuery = errors.New("query text is empty")

// ErrTopKOutOfRange is the InvalidInput cause for a negative or excessive
// topK; zero is accepted and replaced by the default.
var ErrTopKOutOfRange = errors.New("topK is out of range")

// KindOf reports the Kind of err if it (or something it wraps) is a
// *workflow.Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind, true
	}
	return "", false
}

package post

import "fmt"

// Pipeline stage numbers as recorded in failure records.
const (
	StageTranscription = 1
	StageResponse      = 2
	StageAudio         = 3
	StageImage         = 4
	StagePublication   = 5
)

// ErrorKind classifies what went wrong inside a stage.
type ErrorKind string

const (
	// ErrKindService covers failures of an external service or the
	// network path to it.
	ErrKindService ErrorKind = "service"
	// ErrKindParse covers malformed or incomplete service responses.
	ErrKindParse ErrorKind = "parse"
	// ErrKindIO covers local filesystem failures.
	ErrKindIO ErrorKind = "io"
)

// StageError is a fatal stage failure tagged with its stage number, so
// the failure record written beside a failed item always reports where
// the pipeline stopped.
type StageError struct {
	Stage int
	Kind  ErrorKind
	Err   error
}

// Error formats stage failures for logs and failure records.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stage %d %s failure: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStageError tags err with a stage number and kind.
func NewStageError(stage int, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

package etl

import (
	"errors"
	"fmt"

	"github.com/BartekS5/crm-migrate/pkg/logger"
)

// ErrorClass tags a log line and a recorded failure with its outcome bucket.
type ErrorClass string

const (
	ClassPrecondition ErrorClass = "PRECONDITION"
	ClassRead         ErrorClass = "READ"
	ClassSkip         ErrorClass = "SKIP"
	ClassWrite        ErrorClass = "WRITE"
	ClassVerify       ErrorClass = "VERIFY"
	ClassCap          ErrorClass = "CAP"
	ClassAbort        ErrorClass = "ABORT"
)

var (
	// ErrPrecondition means the source or a destination table is missing.
	ErrPrecondition = errors.New("precondition failed")
	// ErrReadFailed means a page could not be read and the policy is abort.
	ErrReadFailed = errors.New("page read failed")
	// ErrCapReached means an iteration or row cap was hit with CAP_POLICY=fail.
	ErrCapReached = errors.New("migration cap reached")
	// ErrAborted means the run was cancelled by the operator.
	ErrAborted = errors.New("migration aborted")
)

// SkipError is returned by a Transformer for a row it cannot map.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skip: " + e.Reason
}

// Skip builds a *SkipError from a format string.
func Skip(format string, args ...interface{}) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// skipReason returns the reason for a transformer error; errors that are
// not *SkipError are reported with their message.
func skipReason(err error) string {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason
	}
	return err.Error()
}

func logClass(class ErrorClass, format string, args ...interface{}) {
	entry := logger.WithField("class", string(class))
	msg := fmt.Sprintf("[%s] ", class) + fmt.Sprintf(format, args...)
	switch class {
	case ClassPrecondition, ClassAbort:
		entry.Error(msg)
	default:
		entry.Warn(msg)
	}
}

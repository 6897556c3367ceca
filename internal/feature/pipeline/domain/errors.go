// Package domain defines the quote pipeline's domain rules: error kinds,
// the quote payload accessor, the object key convention and the warehouse schema.
package domain

import (
	"context"
	"errors"
	"fmt"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

// ErrorKind classifies a stage failure. It is recorded on failed runs and
// attached to failure notifications.
type ErrorKind string

const (
	KindSensorTimeout ErrorKind = "SensorTimeout"
	KindRequest       ErrorKind = "RequestError"
	KindParse         ErrorKind = "ParseError"
	KindSchema        ErrorKind = "SchemaError"
	KindNotFound      ErrorKind = "NotFound"
	KindExternalJob   ErrorKind = "ExternalJobFailure"
	KindLoad          ErrorKind = "LoadError"
	KindInternal      ErrorKind = "InternalError"
)

// Stage errors. Adapters wrap these with fmt.Errorf("%w: ...") so that the
// kind survives any amount of wrapping.
var (
	// ErrSensorTimeout indicates that the market data API never became ready
	// within the sensor's wait budget.
	ErrSensorTimeout = errors.New("market data api not ready before timeout")

	// ErrRequest indicates a network or API failure talking to the market data source.
	ErrRequest = errors.New("market data request failed")

	// ErrParse indicates that the raw quote payload is not a JSON object.
	ErrParse = errors.New("malformed quote payload")

	// ErrSchema indicates that the quote payload lacks a required field.
	ErrSchema = errors.New("quote payload missing required field")

	// ErrNotFound indicates that no formatted prices artifact exists for a symbol.
	ErrNotFound = errors.New("formatted prices not found")

	// ErrExternalJob indicates that the reformatting job did not exit cleanly.
	ErrExternalJob = errors.New("reformatting job failed")

	// ErrLoad indicates that the warehouse bulk load failed.
	ErrLoad = errors.New("warehouse load failed")

	// ErrInvalidHandoff indicates that a stage received an input value it cannot interpret.
	ErrInvalidHandoff = errors.New("invalid handoff value")
)

// Run management errors.
var (
	// ErrInvalidSymbol is returned when a ticker contains characters that would
	// break the per-symbol key namespace.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrRunInProgress is returned when a run for the same symbol and date is already executing.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrRunNotFound is returned when no run record matches the requested ID.
	ErrRunNotFound = errors.New("run not found")
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSensorTimeout):
		return KindSensorTimeout
	case errors.Is(err, ErrRequest):
		return KindRequest
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExternalJob):
		return KindExternalJob
	case errors.Is(err, ErrLoad):
		return KindLoad
	default:
		return KindInternal
	}
}

// IsRetryable reports whether a scheduler may re-run the stage that produced err.
// Only request failures are transient; a cancelled or expired context never is.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRequest)
}

// StageError records which stage of a run failed.
type StageError struct {
	Stage entity.StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns the classification of the underlying error.
func (e *StageError) Kind() ErrorKind {
	return KindOf(e.Err)
}

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMethodNotFound matches any MethodNotFoundError.
	ErrMethodNotFound = errors.New("method not found")
	// ErrInvalidReturnValue matches any InvalidReturnValueError.
	ErrInvalidReturnValue = errors.New("invalid return value")
	// ErrRunnerNotFound matches any RunnerNotFoundError.
	ErrRunnerNotFound = errors.New("runner not found")
	// ErrNullValue is the "no value" outcome: the plugin returned null,
	// undefined or nothing at all.
	ErrNullValue = errors.New("null value")
)

// MethodNotFoundError is a call to a method the runner object lacks.
type MethodNotFoundError struct {
	RunnerID string
	Method   string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("runner %s: method %s not found", e.RunnerID, e.Method)
}

func (e *MethodNotFoundError) Is(target error) bool { return target == ErrMethodNotFound }

// InvalidReturnValueError is a return value that could not be turned into
// the expected host type. Err is either ErrNullValue or a DecodingError.
type InvalidReturnValueError struct {
	RunnerID string
	Method   string
	Err      error
}

func (e *InvalidReturnValueError) Error() string {
	return fmt.Sprintf("runner %s: method %s returned an invalid value: %v", e.RunnerID, e.Method, e.Err)
}

func (e *InvalidReturnValueError) Unwrap() error { return e.Err }

func (e *InvalidReturnValueError) Is(target error) bool { return target == ErrInvalidReturnValue }

// RunnerNotFoundError means the execution context behind a runner is gone.
type RunnerNotFoundError struct {
	RunnerID string
}

func (e *RunnerNotFoundError) Error() string {
	return fmt.Sprintf("runner %s not found", e.RunnerID)
}

func (e *RunnerNotFoundError) Is(target error) bool { return target == ErrRunnerNotFound }

// DecodingError is plugin output that is malformed JSON or does not match
// the expected shape.
type DecodingError struct {
	Type   string
	Path   string
	Reason string
	Err    error
}

func (e *DecodingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decoding %s at %s: %s", e.Type, e.Path, e.Reason)
	}
	return fmt.Sprintf("decoding %s: %s", e.Type, e.Reason)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// ThrownError is an error value thrown or rejected by plugin code. When
// the thrown value originated in a failed host call, Cause is the host
// error so callers can match it with errors.As.
type ThrownError struct {
	RunnerID string
	Method   string
	Name     string
	Message  string
	Cause    error
}

func (e *ThrownError) Error() string {
	name := e.Name
	if name == "" {
		name = "Error"
	}
	return fmt.Sprintf("runner %s: method %s threw %s: %s", e.RunnerID, e.Method, name, e.Message)
}

func (e *ThrownError) Unwrap() error { return e.Cause }

package recognize

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the client matches exactly one of these
// through errors.Is, except a failure to encode a request, which happens
// before anything is sent and carries no kind.
var (
	ErrTransport         = errors.New("transport failure")
	ErrIO                = errors.New("image read failure")
	ErrImageLimits       = errors.New("image limits exceeded")
	ErrMalformedResponse = errors.New("malformed response")
)

// OperationError annotates an error with the remote operation and the call id
// it belongs to.
type OperationError struct {
	Operation string
	RequestID string
	Kind      error
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	prefix := e.Operation
	if e.RequestID != "" {
		prefix = fmt.Sprintf("%s (request_id=%s)", e.Operation, e.RequestID)
	}
	if e.Kind == nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the error kind of e.
func (e *OperationError) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

func newOperationError(operation, requestID string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Kind: kind, Err: err}
}

// StatusError is returned (wrapped as ErrTransport) when the service answers
// with a non-2xx status.
type StatusError struct {
	StatusCode int
	Fault      string
}

func (e *StatusError) Error() string {
	if e.Fault != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Fault)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// LimitError describes which threshold an image failed.
type LimitError struct {
	Mode   Mode
	Reason string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s mode: %s", e.Mode, e.Reason)
}

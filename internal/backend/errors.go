package backend

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindNetwork covers transport failures, 5xx responses and anything else
	// where the job's true state is unknown.
	KindNetwork ErrorKind = iota
	// KindValidation marks bad caller input; never retried.
	KindValidation
	// KindUpstream means the backend understood the request and rejected it,
	// e.g. an unsupported or removed media URL.
	KindUpstream
	KindNotFound
	// KindNotReady marks a download resolution attempted before COMPLETED.
	KindNotReady
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindNotFound:
		return "not_found"
	case KindNotReady:
		return "not_ready"
	}
	return "unknown"
}

// APIError is the normalized failure for every backend operation. StatusCode
// is zero when the request never produced a response. Code and Message carry
// the backend's own error payload when one was decoded.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s (%s)", e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("backend: %s (status %d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, defaulting to KindNetwork for errors that
// did not originate from the backend client.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func validationError(message string) *APIError {
	return &APIError{Kind: KindValidation, Code: "validation_error", Message: message}
}

// NotReadyError is returned when a download is resolved for a job that has
// not reached COMPLETED yet.
func NotReadyError(jobID string) *APIError {
	return &APIError{
		Kind:    KindNotReady,
		Code:    "not_ready",
		Message: fmt.Sprintf("job %s is not completed yet", jobID),
	}
}

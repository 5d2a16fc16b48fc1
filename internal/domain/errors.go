package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrIndexUnavailable is returned when no persisted index exists and none can be built.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrTimeout matches any ServiceError caused by a per-call timeout.
	ErrTimeout = errors.New("service call timed out")
	// ErrEmptyQuery rejects blank questions before any service call.
	ErrEmptyQuery = errors.New("query is empty")
)

// Service names used in ServiceError.
const (
	ServiceEmbedding   = "embedding"
	ServiceCompletion  = "completion"
	ServiceVectorIndex = "vector index"
)

// SourceFetchError reports a single ingestion source that could not be read.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ServiceError is a failed call to an external collaborator.
type ServiceError struct {
	Service    string
	Timeout    bool
	Transient  bool
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s service timed out: %v", e.Service, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s service failed (status %d): %v", e.Service, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s service failed: %v", e.Service, e.Err)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match timeouts.
func (e *ServiceError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Transient || se.Timeout
	}
	return false
}

// NewServiceError classifies err for the named service. Context cancellation is returned
// unchanged so callers can tell a cancelled query from a failed one.
func NewServiceError(service string, status int, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	out := &ServiceError{Service: service, StatusCode: status, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Timeout = true
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Timeout = true
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		out.Transient = true
	case status == 0:
		// connection-level failure without a response
		out.Transient = true
	}
	return out
}

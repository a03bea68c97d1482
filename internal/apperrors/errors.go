package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrDuplicateClaim is wrapped by a claim attempt that did not acquire the
// message: another worker holds it or it was already replied to.
var ErrDuplicateClaim = errors.New("message already claimed or replied")

// TransientProviderError wraps failures that are expected to succeed on retry:
// network errors, timeouts and provider rate limits.
type TransientProviderError struct {
	Op  string
	Err error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error during %s: %v", e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// FatalJobError marks a job that must not be retried.
type FatalJobError struct {
	Reason string
	Err    error
}

func (e *FatalJobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fatal job error: %s", e.Reason)
	}
	return fmt.Sprintf("fatal job error: %s: %v", e.Reason, e.Err)
}

func (e *FatalJobError) Unwrap() error { return e.Err }

// ConfigurationError reports invalid or missing configuration detected at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Transient wraps err as a TransientProviderError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientProviderError{Op: op, Err: err}
}

// Fatal wraps err as a FatalJobError.
func Fatal(reason string, err error) error {
	return &FatalJobError{Reason: reason, Err: err}
}

// Configuration builds a ConfigurationError for field.
func Configuration(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientProviderError
	return errors.As(err, &t)
}

// IsFatal reports whether err must abandon the job immediately.
// Configuration errors reaching a job are fatal for that job.
func IsFatal(err error) bool {
	var f *FatalJobError
	if errors.As(err, &f) {
		return true
	}
	return IsConfiguration(err)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// IsNetwork reports whether err looks like a timeout or connection failure.
func IsNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// FromHTTPStatus classifies a provider HTTP status code. Rate limiting and
// server errors are transient, other client errors are fatal.
func FromHTTPStatus(op string, code int, err error) error {
	switch {
	case code == 429 || code == 408 || code >= 500:
		return Transient(op, err)
	case code >= 400:
		return Fatal(op, err)
	default:
		return Transient(op, err)
	}
}

package api

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy surfaced to callers in a RouteResponse.
type ErrorKind string

const (
	ErrorKindNotFound             ErrorKind = "NotFound"
	ErrorKindUnavailable          ErrorKind = "Unavailable"
	ErrorKindTimeout              ErrorKind = "Timeout"
	ErrorKindProtocolError        ErrorKind = "ProtocolError"
	ErrorKindBackendError         ErrorKind = "BackendError"
	ErrorKindDiscoverySourceError ErrorKind = "DiscoverySourceError"
)

// Kinded is implemented by every typed error in this package.
type Kinded interface {
	error
	Kind() ErrorKind
}

// NotFoundError represents a resource not found error with contextual information.
// The router returns it when a request names a service that is not registered.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "service", "tool")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string

	// Message provides a custom error message if the default format is insufficient
	Message string
}

// Error implements the error interface for NotFoundError.
// Returns either the custom message if provided, or a formatted default message
// using the resource type and name.
//
// Returns:
//   - string: The error message describing the not found condition
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// Kind returns ErrorKindNotFound.
func (e *NotFoundError) Kind() ErrorKind { return ErrorKindNotFound }

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
// Wrapped errors are supported.
//
// Args:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is or wraps a NotFoundError, false otherwise
//
// Example:
//
//	reg, _, err := store.Get("echo")
//	if api.IsNotFound(err) {
//	    return api.Failure(api.ErrorKindNotFound, err.Error())
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
//
// Args:
//   - resourceType: The category of resource (e.g., "service")
//   - resourceName: The specific identifier of the resource
//
// Returns:
//   - *NotFoundError: A new NotFoundError instance
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// NewServiceNotFoundError creates a service not found error.
//
// Args:
//   - name: The name of the service that was not found
//
// Returns:
//   - *NotFoundError: A NotFoundError for the specified service
func NewServiceNotFoundError(name string) *NotFoundError {
	return NewNotFoundError("service", name)
}

// UnavailableError reports that a service exists but has no routable
// instance. No backend call is made when it is returned.
type UnavailableError struct {
	ServiceName string
	Status      HealthStatus
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service %s is unavailable (health: %s)", e.ServiceName, e.Status)
}

// Kind returns ErrorKindUnavailable.
func (e *UnavailableError) Kind() ErrorKind { return ErrorKindUnavailable }

// NewUnavailableError creates an UnavailableError for the named service.
func NewUnavailableError(name string, status HealthStatus) *UnavailableError {
	return &UnavailableError{ServiceName: name, Status: status}
}

// BackendError is an error reported by the tool server itself. Message is
// safe to return to callers; Cause is kept for logs only.
type BackendError struct {
	Message    string
	StatusCode int
	Cause      error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return "backend error: " + e.Message
}

func (e *BackendError) Unwrap() error { return e.Cause }

// Kind returns ErrorKindBackendError.
func (e *BackendError) Kind() ErrorKind { return ErrorKindBackendError }

// NewBackendError creates a BackendError with the given caller-safe message.
func NewBackendError(message string, statusCode int, cause error) *BackendError {
	return &BackendError{Message: message, StatusCode: statusCode, Cause: cause}
}

// ProtocolError means the backend replied with something the adapter could
// not decode, or the transport failed mid-exchange.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Cause)
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// Kind returns ErrorKindProtocolError.
func (e *ProtocolError) Kind() ErrorKind { return ErrorKindProtocolError }

// NewProtocolError creates a ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{Message: message, Cause: cause}
}

// DiscoverySourceError wraps a failure of one discovery scanner. It is logged
// and recorded in the cycle summary but never fails the cycle.
type DiscoverySourceError struct {
	Scanner string
	Cause   error
}

func (e *DiscoverySourceError) Error() string {
	return fmt.Sprintf("discovery source %s failed: %v", e.Scanner, e.Cause)
}

func (e *DiscoverySourceError) Unwrap() error { return e.Cause }

// Kind returns ErrorKindDiscoverySourceError.
func (e *DiscoverySourceError) Kind() ErrorKind { return ErrorKindDiscoverySourceError }

// NewDiscoverySourceError wraps err as a failure of the named scanner.
func NewDiscoverySourceError(scanner string, err error) *DiscoverySourceError {
	return &DiscoverySourceError{Scanner: scanner, Cause: err}
}

// TimeoutError is returned when a backend call exceeds its deadline.
type TimeoutError struct {
	Operation string
	Cause     error
}

func (e *TimeoutError) Error() string {
	return e.Operation + " timed out"
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// Kind returns ErrorKindTimeout.
func (e *TimeoutError) Kind() ErrorKind { return ErrorKindTimeout }

// NewTimeoutError creates a TimeoutError for the given operation.
func NewTimeoutError(operation string, cause error) *TimeoutError {
	return &TimeoutError{Operation: operation, Cause: cause}
}

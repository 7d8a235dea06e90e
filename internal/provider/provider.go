// Package provider contains the remote service clients (Flickr photo search,
// Clarifai image tagging) and the error type they share.
//
// The interfaces these clients satisfy are defined in internal/photo, where
// they are consumed. Each sub-package here implements one of them for a
// specific service.
package provider

import (
	"errors"
	"fmt"
	"net"
)

// ServiceError reports a failed call to a remote service: transport errors,
// unexpected HTTP status codes, service-level error payloads and
// undecodable bodies. The fetch loop never retries these.
type ServiceError struct {
	Service    string // "flickr", "clarifai", "download"
	Op         string // e.g. "search", "token", "tag"
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (HTTP %d): %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call later could succeed:
// network errors, rate limiting and 5xx responses.
func (e *ServiceError) Transient() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Errorf builds a *ServiceError with a formatted cause.
func Errorf(service, op string, status int, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Service: service, Op: op, StatusCode: status, Err: fmt.Errorf(format, args...)}
}

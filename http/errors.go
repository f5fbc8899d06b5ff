package http

import (
	"errors"
	"fmt"
)

var (
	// ErrMethodNotAllowed is returned by Router.Match when nothing is
	// registered for the request method.
	ErrMethodNotAllowed = &ErrorResponse{Status: StatusMethodNotAllowed, Code: "invalid_method"}

	// ErrNotFound is returned by Router.Match when the method is known but no
	// literal or pattern route accepts the path.
	ErrNotFound = &ErrorResponse{Status: StatusNotFound, Code: "path_not_found"}

	ErrBodyTooLarge    = errors.New("http: request body too large")
	ErrHeaderTooLarge  = errors.New("http: request header too large")
	ErrMalformed       = errors.New("http: malformed request")
	ErrServerDraining  = errors.New("http: server is draining")
	ErrListenerStopped = errors.New("http: listener stopped unexpectedly")
)

// ErrorResponse is an error that knows how it is rendered on the wire. Any
// ErrorResponse returned by a callback is written verbatim.
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("http: %d %s: %s", e.Status, e.Code, e.Message)
}

// Response renders the error as a JSON response.
func (e *ErrorResponse) Response() Response {
	return JSON(e).WithStatus(e.Status)
}

func NotFound(message string) *ErrorResponse {
	return &ErrorResponse{Status: StatusNotFound, Code: "not_found", Message: message}
}

func BadRequest(message string) *ErrorResponse {
	return &ErrorResponse{Status: StatusBadRequest, Code: "invalid_request", Message: message}
}

// Internal builds a 500 response and logs the message server-side.
func Internal(message string) *ErrorResponse {
	logger.Error("internal error", "message", message)
	return &ErrorResponse{Status: StatusInternalServerError, Code: "internal_error", Message: message}
}

func NotImplemented(message string) *ErrorResponse {
	logger.Error("not implemented", "message", message)
	return &ErrorResponse{Status: StatusInternalServerError, Code: "not_implemented", Message: message}
}

// ConfigError reports a route that could not be registered. It is only ever
// produced during startup.
type ConfigError struct {
	Method Method
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("http: cannot register %s %q: %s", e.Method, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BindError reports a failure to set up the listening endpoint.
type BindError struct {
	Addr Address
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("http: cannot bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

package trackapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrOffline is returned when the service cannot be reached at all.
	ErrOffline = errors.New("api: offline")

	ErrNoAPIToken   = errors.New("api: api token missing")
	ErrNoServerURL  = errors.New("api: server url missing")
	ErrInvalidEmail = errors.New("api: invalid email")
)

// RequestError carries the request and response details shared by every
// error returned for a non-successful response.
type RequestError struct {
	Operation  string `json:"-"`
	Method     string `json:"-"`
	URL        string `json:"-"`
	StatusCode int    `json:"-"`
	Body       string `json:"-"`
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d", e.Operation, e.Method, e.URL, e.StatusCode)
}

// UnauthorizedError means the credentials of the session are no longer valid
type UnauthorizedError struct{ RequestError }

func (e *UnauthorizedError) Error() string { return "api unauthorized: " + e.RequestError.Error() }

// ApiDeprecatedError means the server no longer supports the api version in use
type ApiDeprecatedError struct{ RequestError }

func (e *ApiDeprecatedError) Error() string { return "api deprecated: " + e.RequestError.Error() }

// ClientDeprecatedError means the server no longer supports this client version
type ClientDeprecatedError struct{ RequestError }

func (e *ClientDeprecatedError) Error() string { return "client deprecated: " + e.RequestError.Error() }

// ClientError is any other 4xx response
type ClientError struct{ RequestError }

func (e *ClientError) Error() string { return "api client error: " + e.RequestError.Error() }

// ServerError is any 5xx response
type ServerError struct{ RequestError }

func (e *ServerError) Error() string { return "api server error: " + e.RequestError.Error() }

// DeserializationError means a successful response could not be decoded
type DeserializationError struct {
	RequestError
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("api deserialization: %s: %v", e.RequestError.Error(), e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// errorForStatus maps a failed response onto the error taxonomy. Forbidden
// responses are classified by the caller because they need a session check.
func errorForStatus(reqErr RequestError) error {
	switch code := reqErr.StatusCode; {
	case code == http.StatusUnauthorized:
		return &UnauthorizedError{reqErr}
	case code == http.StatusGone:
		return &ApiDeprecatedError{reqErr}
	case code == http.StatusTeapot:
		return &ClientDeprecatedError{reqErr}
	case code >= 400 && code < 500:
		return &ClientError{reqErr}
	default:
		return &ServerError{reqErr}
	}
}

// IsOffline reports whether err means the service was unreachable
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsDeprecation reports whether err means the client or api version is no longer supported
func IsDeprecation(err error) bool {
	var clientErr *ClientDeprecatedError
	var apiErr *ApiDeprecatedError
	return errors.As(err, &clientErr) || errors.As(err, &apiErr)
}

// IsUnauthorized reports whether err means the session credentials were rejected
func IsUnauthorized(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}

// IsSessionFatal reports whether err ends the session: nothing can be synced
// until the user updates the client or logs in again.
func IsSessionFatal(err error) bool {
	return IsDeprecation(err) || IsUnauthorized(err)
}

// IsClientError reports whether the server rejected the request itself
func IsClientError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr)
}

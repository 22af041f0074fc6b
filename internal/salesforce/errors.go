// Package salesforce manages an authenticated session against the Salesforce
// REST API and exposes query, metadata and record operations over it.
package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Use errors.Is(err, salesforce.ErrAuth) to check the kind and
// errors.As with the typed errors below for details.
var (
	ErrConfiguration   = errors.New("salesforce: configuration error")
	ErrAuth            = errors.New("salesforce: authentication failed")
	ErrRequest         = errors.New("salesforce: request failed")
	ErrNetwork         = errors.New("salesforce: network unreachable")
	ErrInvalidArgument = errors.New("salesforce: invalid argument")

	ErrNotAuthenticated = errors.New("salesforce: not authenticated")
	ErrNoRefreshToken   = errors.New("salesforce: no refresh token available")
)

// Sentinel errors for HTTP status code classification of data calls.
var (
	ErrBadRequest   = errors.New("salesforce: bad request")
	ErrUnauthorized = errors.New("salesforce: unauthorized")
	ErrForbidden    = errors.New("salesforce: forbidden")
	ErrNotFound     = errors.New("salesforce: not found")
	ErrConflict     = errors.New("salesforce: conflict")
	ErrThrottled    = errors.New("salesforce: request limit exceeded")
	ErrServerError  = errors.New("salesforce: server error")
)

// ConfigError reports missing or inconsistent credential settings. It is
// raised before any network activity and is never retried.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "salesforce: invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// AuthError reports a failed exchange or renewal against the identity
// endpoint, or a call attempted without a valid session. StatusCode is zero
// when the identity endpoint was never reached.
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("salesforce: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
	}

	return "salesforce: authentication failed: " + e.Message
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError is a non-2xx response from the data endpoint. Message is the
// service-supplied message when the body follows the documented error shape.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	ErrorCode  string
	Message    string
	Err        error // status sentinel, for errors.Is()
}

func (e *RequestError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("salesforce: %s %s: HTTP %d %s: %s", e.Method, e.Path, e.StatusCode, e.ErrorCode, e.Message)
	}

	return fmt.Sprintf("salesforce: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequest
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NetworkError means the request never reached the service (DNS failure,
// refused connection, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("salesforce: network unreachable during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// apiError is one element of the service's documented error body.
type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// parseAPIError extracts the service message from either {"message":...}
// or [{"message":...}, ...]. ok is false when neither shape matches.
func parseAPIError(body []byte) (apiError, bool) {
	trimmed := strings.TrimSpace(string(body))

	switch {
	case strings.HasPrefix(trimmed, "["):
		var list []apiError
		if err := json.Unmarshal(body, &list); err != nil || len(list) == 0 || list[0].Message == "" {
			return apiError{}, false
		}

		return list[0], true
	case strings.HasPrefix(trimmed, "{"):
		var single apiError
		if err := json.Unmarshal(body, &single); err != nil || single.Message == "" {
			return apiError{}, false
		}

		return single, true
	default:
		return apiError{}, false
	}
}

// newRequestError builds a RequestError from a failed response body.
func newRequestError(method, path string, status int, body []byte) *RequestError {
	re := &RequestError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d", status),
		Err:        classifyStatus(status),
	}

	if parsed, ok := parseAPIError(body); ok {
		re.Message = parsed.Message
		re.ErrorCode = parsed.ErrorCode
	}

	return re
}

// invalidArg reports a caller mistake detected before any request is made.
func invalidArg(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func decodeErr(what string, err error) error {
	return fmt.Errorf("salesforce: decoding %s response: %w", what, err)
}

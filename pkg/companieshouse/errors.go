package companieshouse

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classify categorizes a response status or transport error.
func classify(statusCode int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are answered the same way on every attempt
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// upstreamError is a single failed attempt, fed to the retry loop.
type upstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Body       any
	Err        error
}

func (e *upstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error: %v", e.ErrorClass, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d)", e.ErrorClass, e.StatusCode)
}

func (e *upstreamError) Unwrap() error {
	return e.Err
}

// ExternalServiceError reports a failed call to an external service.
// Status is the HTTP status the gateway answers with.
type ExternalServiceError struct {
	Message string
	Service string
	Status  int
	// Details carries the upstream error body or the validation messages.
	Details any
	Err     error
}

// Error implements the error interface.
func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s, status %d): %v", e.Message, e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Service, e.Status)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the gateway response.
func (e *ExternalServiceError) StatusCode() int {
	return e.Status
}

package httputil

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeConflict           Code = "CONFLICT"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Status returns the HTTP status that goes with the code
func (c Code) Status() int {
	switch c {
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// APIError is an error that maps onto the error body contract
type APIError struct {
	Code    Code
	Message string
}

// NewAPIError creates an APIError
func NewAPIError(code Code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status returns the HTTP status for the error
func (e *APIError) Status() int {
	return e.Code.Status()
}

// ErrorBody is the JSON envelope of an error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code and human-readable message
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// WriteAPIError writes err using the error body contract. Errors that are not
// *APIError become a generic 500 so internal detail never leaks.
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = NewAPIError(CodeInternal, "Internal server error")
	}
	WriteCode(w, apiErr.Code, apiErr.Message)
}

// WriteCode writes an error body for code with the given message
func WriteCode(w http.ResponseWriter, code Code, message string) {
	_ = WriteJSON(w, code.Status(), ErrorBody{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// WriteUnauthorized writes a 401 UNAUTHORIZED error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteCode(w, CodeUnauthorized, message)
}

// WriteForbidden writes a 403 FORBIDDEN error
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteCode(w, CodeForbidden, message)
}

// WriteInvalidCredentials writes a 401 INVALID_CREDENTIALS error
func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteCode(w, CodeInvalidCredentials, "Invalid credentials")
}

// WriteNotFound writes a 404 NOT_FOUND error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteCode(w, CodeNotFound, message)
}

// WriteValidationError writes a 400 VALIDATION_ERROR error
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteCode(w, CodeValidation, message)
}

// WriteBadRequest writes a 400 BAD_REQUEST error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteCode(w, CodeBadRequest, message)
}

// WriteConflict writes a 409 CONFLICT error
func WriteConflict(w http.ResponseWriter, message string) {
	WriteCode(w, CodeConflict, message)
}

// WriteInternalError writes a 500 INTERNAL_ERROR error with a generic message
func WriteInternalError(w http.ResponseWriter) {
	WriteCode(w, CodeInternal, "Internal server error")
}

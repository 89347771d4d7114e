package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrConflict        = 1004
	ErrBadRequest      = 1005
	ErrServiceUnavail  = 1006

	// Depot errors (2000-2999)
	ErrTokenNotFound       = 2000
	ErrDocumentNotFound    = 2001
	ErrUserNotFound        = 2002
	ErrAttachmentNotFound  = 2003
	ErrRedirectNotFound    = 2004
	ErrTokenExpired        = 2005
	ErrChecksumMismatch    = 2006
	ErrDuplicateContent    = 2007
	ErrIntegrityViolation  = 2008

	// Pipeline errors (3000-3999)
	ErrValidationFailed = 3000

	// Collaborator errors (4000-4999)
	ErrCollaboratorUnavailable = 4000
	ErrCompressionFailed       = 4001
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:   {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:     {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail: {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Depot errors
	ErrTokenNotFound:      {ErrTokenNotFound, http.StatusNotFound, "Token not found"},
	ErrDocumentNotFound:   {ErrDocumentNotFound, http.StatusNotFound, "Document not found"},
	ErrUserNotFound:       {ErrUserNotFound, http.StatusNotFound, "User not found"},
	ErrAttachmentNotFound: {ErrAttachmentNotFound, http.StatusNotFound, "Attachment not found"},
	ErrRedirectNotFound:   {ErrRedirectNotFound, http.StatusNotFound, "Redirect not found"},
	ErrTokenExpired:       {ErrTokenExpired, http.StatusGone, "Token expired"},
	ErrChecksumMismatch:   {ErrChecksumMismatch, http.StatusBadRequest, "Checksum verification failed"},
	ErrDuplicateContent:   {ErrDuplicateContent, http.StatusConflict, "Content already exists"},
	ErrIntegrityViolation: {ErrIntegrityViolation, http.StatusConflict, "Integrity constraint violated"},

	// Pipeline errors
	ErrValidationFailed: {ErrValidationFailed, http.StatusUnprocessableEntity, "Attachment validation failed"},

	// Collaborator errors
	ErrCollaboratorUnavailable: {ErrCollaboratorUnavailable, http.StatusServiceUnavailable, "Collaborator unavailable"},
	ErrCompressionFailed:       {ErrCompressionFailed, http.StatusUnprocessableEntity, "Compression failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}

package biz

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrRedirectNotFound   = errors.New("redirect not found")
	ErrTokenExpired       = errors.New("token expired")
	ErrDuplicateContent   = errors.New("duplicate content")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrInvalidRedirect    = errors.New("redirect must be scoped to exactly one of user or document")
)

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploaderr defines the error codes an upload request can fail with
// and how each maps onto the response envelope.
package uploaderr

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes one error code as it is exposed to callers.
type APIError struct {
	Code           string
	Description    string
	HTTPStatusCode int
}

// ErrorCode is an enumeration of upload pipeline failures.
type ErrorCode int

const (
	ErrNone ErrorCode = iota

	ErrDecode             // body encoding is malformed
	ErrParse              // multipart stream is malformed or truncated
	ErrNoFile             // stream parsed but carried no file
	ErrValidationRejected // size or content type refused by policy
	ErrTransform          // resize failed
	ErrPersistence        // object store write failed
	ErrSigning            // signed URL could not be generated
	ErrUnexpected         // anything else

	// Transport codes, raised before or around the pipeline.
	ErrTooManyRequests
	ErrAccessDenied
	ErrNoSuchObject
	ErrMethodNotAllowed
)

// Pipeline failures all surface as 500; rejections are distinguished by Code
// in the body rather than by status. Only transport codes use other statuses.
var errorCodeResponse = map[ErrorCode]APIError{
	ErrDecode: {
		Code:           "DecodeError",
		Description:    "The request body could not be decoded.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrParse: {
		Code:           "ParseError",
		Description:    "The multipart request body is malformed.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrNoFile: {
		Code:           "NoFile",
		Description:    "no file provided",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrValidationRejected: {
		Code:           "ValidationRejected",
		Description:    "The uploaded file is not allowed.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrTransform: {
		Code:           "TransformError",
		Description:    "The uploaded image could not be resized.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrPersistence: {
		Code:           "PersistenceError",
		Description:    "The upload could not be stored.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrSigning: {
		Code:           "SigningError",
		Description:    "Access URLs could not be generated.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrUnexpected: {
		Code:           "UnexpectedError",
		Description:    "We encountered an internal error. Please try again.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrTooManyRequests: {
		Code:           "TooManyRequests",
		Description:    "Please reduce your request rate.",
		HTTPStatusCode: http.StatusTooManyRequests,
	},
	ErrAccessDenied: {
		Code:           "AccessDenied",
		Description:    "The signature is invalid or has expired.",
		HTTPStatusCode: http.StatusForbidden,
	},
	ErrNoSuchObject: {
		Code:           "NoSuchObject",
		Description:    "The requested object does not exist.",
		HTTPStatusCode: http.StatusNotFound,
	},
	ErrMethodNotAllowed: {
		Code:           "MethodNotAllowed",
		Description:    "The specified method is not allowed against this resource.",
		HTTPStatusCode: http.StatusMethodNotAllowed,
	},
}

// APIError returns the definition of e, falling back to ErrUnexpected.
func (e ErrorCode) APIError() APIError {
	if api, ok := errorCodeResponse[e]; ok {
		return api
	}
	return errorCodeResponse[ErrUnexpected]
}

func (e ErrorCode) Code() string {
	return e.APIError().Code
}

func (e ErrorCode) Description() string {
	return e.APIError().Description
}

func (e ErrorCode) HTTPStatusCode() int {
	return e.APIError().HTTPStatusCode
}

// Error is a pipeline failure tagged with its code. Message is what the
// caller sees; Err keeps the underlying cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code.Description()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with an explicit message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf returns an Error with a formatted message. A %w verb keeps the
// wrapped error reachable through errors.Is/As.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Code: code, Message: err.Error(), Err: errors.Unwrap(err)}
}

// Wrap tags err with code, keeping err's message. A nil err yields nil.
// If err already carries a code it is returned unchanged.
func Wrap(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return err
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// CodeOf returns the code carried by err, ErrNone for nil and ErrUnexpected
// for errors that were never tagged.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrNone
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrUnexpected
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

package jwtclaims

import (
	"errors"
	"fmt"
)

// ErrorCode represents claims and validator error categories.
type ErrorCode string

const (
	ErrCodeMalformed     ErrorCode = "malformed_claims"
	ErrCodeShapeMismatch ErrorCode = "shape_mismatch"
	ErrCodeKeyCollision  ErrorCode = "key_collision"

	ErrCodeInvalidToken        ErrorCode = "invalid_token"
	ErrCodeExpired             ErrorCode = "token_expired"
	ErrCodeNotYetValid         ErrorCode = "token_not_yet_valid"
	ErrCodeInvalidIssuer       ErrorCode = "invalid_issuer"
	ErrCodeInvalidAudience     ErrorCode = "invalid_audience"
	ErrCodeSubjectNotAllowed   ErrorCode = "subject_not_allowed"
	ErrCodeIssuerNotRegistered ErrorCode = "issuer_not_registered"
	ErrCodeJWKSUnavailable     ErrorCode = "jwks_unavailable"
	ErrCodeInternal            ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeMalformed:     "Malformed claims",
	ErrCodeShapeMismatch: "Claim shape mismatch",
	ErrCodeKeyCollision:  "Private claim collides with registered claim",

	ErrCodeInvalidToken:        "Invalid token",
	ErrCodeExpired:             "Token expired",
	ErrCodeNotYetValid:         "Token not yet valid",
	ErrCodeInvalidIssuer:       "Invalid issuer",
	ErrCodeInvalidAudience:     "Invalid audience",
	ErrCodeSubjectNotAllowed:   "Subject not allowed",
	ErrCodeIssuerNotRegistered: "Issuer not registered",
	ErrCodeJWKSUnavailable:     "JWKS unavailable",
	ErrCodeInternal:            "Internal error",
}

// Error wraps claims errors with a stable code and message. Field carries the
// wire name of the offending claim when one is known.
type Error struct {
	Code    ErrorCode
	Message string
	Field   string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Field != "" {
		base = fmt.Sprintf("%s %q", base, e.Field)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func newFieldError(code ErrorCode, field string, err error) error {
	e := newError(code, err).(*Error)
	e.Field = field
	return e
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMalformed reports whether err is a malformed-input decode failure.
func IsMalformed(err error) bool {
	return CodeOf(err) == ErrCodeMalformed
}

// IsShapeMismatch reports whether err is a registered claim with the wrong JSON type.
func IsShapeMismatch(err error) bool {
	return CodeOf(err) == ErrCodeShapeMismatch
}

// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Package apierr defines the closed error taxonomy used across the gateway
// pipeline. Every policy failure is expressed as an *Error with a Kind, so
// the response normalizer is a single exhaustive switch rather than a chain
// of type assertions.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a gateway error. The set is closed: adding a kind requires
// updating Status and DefaultCode together.
type Kind int

const (
	// KindAuthentication covers missing, invalid, or expired credentials.
	KindAuthentication Kind = iota

	// KindForbidden covers role and entitlement rejections.
	KindForbidden

	// KindNotFound covers missing resources.
	KindNotFound

	// KindConflict covers state conflicts (duplicate create, stale update).
	KindConflict

	// KindRateLimited covers fixed-window rate limit rejections.
	KindRateLimited

	// KindQuotaExceeded covers billing-period usage limit rejections.
	KindQuotaExceeded

	// KindValidation covers request schema failures with field details.
	KindValidation

	// KindAPI covers handler-raised errors with a caller-chosen status.
	KindAPI

	// KindInternal covers everything unclassified. Details never leak.
	KindInternal
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindValidation:
		return "validation"
	case KindAPI:
		return "api"
	default:
		return "internal"
	}
}

// Status returns the HTTP status for a kind.
func (k Kind) Status() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindQuotaExceeded:
		return http.StatusPaymentRequired
	case KindValidation:
		return http.StatusBadRequest
	case KindAPI:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DefaultCode returns the machine-readable code for a kind.
func (k Kind) DefaultCode() string {
	switch k {
	case KindAuthentication:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAPI:
		return "API_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is the tagged error carried through the pipeline.
type Error struct {
	// Kind selects status code and default machine code.
	Kind Kind

	// Code overrides Kind.DefaultCode when non-empty.
	Code string

	// Message is the human-readable reason surfaced to the caller.
	Message string

	// Details carries structured context (e.g. field-level validation
	// errors). Omitted from the envelope when nil.
	Details any

	// StatusOverride replaces Kind.Status when non-zero (KindAPI only).
	StatusOverride int

	// RetryAfter is surfaced as a Retry-After header on 429 responses.
	RetryAfter time.Duration

	// Err is the wrapped cause, logged server-side, never surfaced.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code to emit for this error.
func (e *Error) HTTPStatus() int {
	if e.StatusOverride != 0 {
		return e.StatusOverride
	}
	return e.Kind.Status()
}

// MachineCode returns the code string to emit for this error.
func (e *Error) MachineCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.DefaultCode()
}

// Authentication builds a 401-class error.
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Forbidden builds a 403-class error. The message should name the missing
// role or plan tier.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound builds a 404-class error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict builds a 409-class error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// RateLimited builds a 429-class error with a retry-after hint.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// QuotaExceeded builds a 402-class error.
func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: message}
}

// Validation builds a 400-class error carrying field-level details.
func Validation(message string, details any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// API builds a handler-raised error with an explicit status code.
func API(status int, code, message string) *Error {
	return &Error{Kind: KindAPI, StatusOverride: status, Code: code, Message: message}
}

// Internal wraps an unclassified error. The cause is retained for logging
// but never surfaced to the caller.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// From normalizes any error to *Error. Non-taxonomy errors become
// KindInternal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

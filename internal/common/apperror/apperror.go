package apperror

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Code is the stable, client-facing identifier of a failure
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeInvalidPhone    Code = "INVALID_PHONE"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeExpired         Code = "EXPIRED"
	CodeCodeMismatch    Code = "CODE_MISMATCH"
	CodeAlreadyConsumed Code = "ALREADY_CONSUMED"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeConflict        Code = "CONFLICT"
	CodeDBUnavailable   Code = "DB_UNAVAILABLE"
	CodeInternal        Code = "INTERNAL_ERROR"
)

const uniqueViolation = "23505"

// Error is a typed failure. Message is safe to show to clients; Err is the
// internal cause and is only ever logged.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an internal cause
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error carrying an internal cause
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// RateLimited creates a RATE_LIMITED error with a retry hint
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Code: CodeRateLimited, Message: message, RetryAfter: retryAfter}
}

// As extracts the typed Error from err
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, INTERNAL_ERROR for untyped errors and an
// empty code for nil
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the response status
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidPhone:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized, CodeCodeMismatch:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyConsumed, CodeConflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDBUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromDB classifies a database error. Typed errors pass through unchanged so
// it is safe to call on errors returned from inside a transaction callback.
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(CodeNotFound, "record not found", err)
	}
	if IsUnavailable(err) {
		return Wrap(CodeDBUnavailable, "database temporarily unavailable, try again later", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return Wrap(CodeConflict, "resource already exists", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(CodeConflict, "resource already exists", err)
	}

	return Wrap(CodeInternal, "internal error", err)
}

// IsUnavailable reports whether err means the database could not be reached
// in time, as opposed to rejecting the statement
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

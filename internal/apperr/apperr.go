// Package apperr defines the error taxonomy shared by the assessment core
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindProvider
	KindPersistence
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindProvider:
		return "provider"
	case KindPersistence:
		return "persistence"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Provider failure codes.
const (
	CodeTimeout            = "timeout"
	CodeRateLimited        = "rate_limited"
	CodeInvalidResponse    = "invalid_response"
	CodeUnavailable        = "unavailable"
	CodeContentUnavailable = "content_unavailable"
)

// Persistence failure codes.
const (
	CodeConnectionFailure   = "connection_failure"
	CodeQueryTimeout        = "query_timeout"
	CodeConstraintViolation = "constraint_violation"
	CodeNotFound            = "not_found"
)

// State failure codes.
const (
	CodeMiniLessonPending   = "mini_lesson_pending"
	CodeMiniLessonNotServed = "mini_lesson_not_served"
	CodeNoPendingLesson     = "no_pending_lesson"
	CodeTopicMastered       = "topic_mastered"
	CodeSessionAlreadyOpen  = "session_already_open"
	CodeSessionEnded        = "session_ended"
	CodeNoOpenSession       = "no_open_session"
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Code string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Code
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error.
func New(kind Kind, code, op string, err error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Err: err}
}

func Validation(op string, format string, args ...any) *Error {
	return New(KindValidation, "invalid_input", op, fmt.Errorf(format, args...))
}

func State(code, op string, format string, args ...any) *Error {
	return New(KindState, code, op, fmt.Errorf(format, args...))
}

func Provider(code, op string, err error) *Error {
	return New(KindProvider, code, op, err)
}

func Persistence(code, op string, err error) *Error {
	return New(KindPersistence, code, op, err)
}

func NotFound(op string, format string, args ...any) *Error {
	return New(KindPersistence, CodeNotFound, op, fmt.Errorf(format, args...))
}

func Unauthorized(op string) *Error {
	return New(KindUnauthorized, "unauthorized", op, errors.New("missing verified student identity"))
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProvider:
		return true
	case KindPersistence:
		code := CodeOf(err)
		return code == CodeConnectionFailure || code == CodeQueryTimeout
	}
	return false
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindState:
		return http.StatusConflict
	case KindProvider:
		return http.StatusServiceUnavailable
	case KindPersistence:
		switch CodeOf(err) {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConstraintViolation:
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

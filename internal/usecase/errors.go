package usecase

import (
	"errors"
	"fmt"

	"chat-backend/internal/repository"
)

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorConflict         ErrorCode = "CONFLICT"
	ErrorRateLimited      ErrorCode = "RATE_LIMITED"
	ErrorUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrorStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// storeError classifies a repository failure. reason names the operation
// that failed, e.g. "dynamodb_list_sessions_error".
func storeError(reason string, err error) *Error {
	switch {
	case errors.Is(err, repository.ErrStoreUnavailable):
		return newError(ErrorStoreUnavailable, "store_unavailable", err)
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrorNotFound, "not_found", err)
	case errors.Is(err, repository.ErrSessionExists):
		return newError(ErrorConflict, "session_exists", err)
	case errors.Is(err, repository.ErrInvalidFeedback):
		return newError(ErrorInvalidInput, "invalid_feedback", err)
	case errors.Is(err, repository.ErrInvalidUserID):
		return newError(ErrorInvalidInput, "invalid_user_id", err)
	default:
		return newError(ErrorInternal, reason, err)
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code, so the
// package-level sentinels work with errors.Is after wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrPersistFailed  = &AppError{Code: "STORE_001", Message: "persistence failed"}
	ErrRecordNotFound = &AppError{Code: "STORE_002", Message: "record not found"}
	ErrPrefWrite      = &AppError{Code: "PREF_001", Message: "preference write failed"}

	ErrRemoteUnavailable = &AppError{Code: "REMOTE_001", Message: "remote service unavailable"}
	ErrRateLimited       = &AppError{Code: "REMOTE_002", Message: "rate limit exceeded"}
	ErrRemoteStatus      = &AppError{Code: "REMOTE_003", Message: "unexpected remote status"}
	ErrRemoteDecode      = &AppError{Code: "REMOTE_004", Message: "malformed remote response"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrNoSession    = &AppError{Code: "AUTH_002", Message: "no active session"}
	ErrNoUser       = &AppError{Code: "AUTH_003", Message: "no current user"}

	ErrNoContacts = &AppError{Code: "SOS_001", Message: "no emergency contacts configured"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithCause returns a copy of the sentinel carrying cause.
func (e *AppError) WithCause(cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Cause: cause}
}

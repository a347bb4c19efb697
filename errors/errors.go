package errors

import (
	"fmt"
	"os"
)

// Standard error codes
const (
	ErrInvalidRequest      = 400
	ErrUnauthorized        = 401
	ErrForbidden           = 403
	ErrNotFound            = 404
	ErrConflict            = 409
	ErrInternalServerError = 500
	ErrServiceUnavailable  = 503

	// Validation errors (1000+): rejected before any mutation
	ErrInvalidStake  = 1001
	ErrStakeMismatch = 1002
	ErrStakeTooSmall = 1003
	ErrInvalidAmount = 1004
	ErrUnknownMove   = 1005
	ErrUnknownAction = 1006

	// State errors (1100+): action illegal for the current session state
	ErrSessionNotFound     = 1101
	ErrSessionNotJoinable  = 1102
	ErrStateError          = 1103
	ErrSessionBusy         = 1104
	ErrNotParticipant      = 1105
	ErrSessionFull         = 1106
	ErrAlreadyJoined       = 1107
	ErrNoParticipants      = 1108
	ErrNothingToCall       = 1109
	ErrInsufficientBalance = 1110

	// Fairness errors (1200+): rejected without mutating session state
	ErrAlreadyCommitted    = 1201
	ErrInvalidReveal       = 1202
	ErrRevealWithoutCommit = 1203
	ErrAlreadyRevealed     = 1204

	// Infrastructure errors (1300+)
	ErrLedgerError     = 1301
	ErrRandomnessError = 1302
	ErrArchiveError    = 1303
	ErrKafkaError      = 1304
	ErrRedisError      = 1305
	ErrConfigError     = 1306
)

// AppError represents a custom application error
type AppError struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	DebugMessage string `json:"debug_message,omitempty"`
	Err          error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.DebugMessage != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.DebugMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s [%v]", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithDebug creates a new AppError with a debug message
func NewWithDebug(code int, message string, debugMessage string) *AppError {
	return &AppError{
		Code:         code,
		Message:      message,
		DebugMessage: debugMessage,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Response returns a map suitable for JSON response
func (e *AppError) Response() map[string]interface{} {
	response := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}

	// Include debug message in development environment
	env := os.Getenv("APP_ENV")
	if (env == "dev" || env == "development") && e.DebugMessage != "" {
		response["debug_message"] = e.DebugMessage
	}

	return response
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode extracts error code from an error
func GetCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternalServerError
}

// IsValidation reports whether the error rejects caller input before mutation.
func IsValidation(err error) bool {
	c := GetCode(err)
	return c == ErrInvalidRequest || (c >= 1000 && c < 1100)
}

// IsState reports whether the error means the action was illegal for the
// current session state.
func IsState(err error) bool {
	c := GetCode(err)
	return c >= 1100 && c < 1200
}

// IsFairness reports whether the error is a commit-reveal protocol violation.
func IsFairness(err error) bool {
	c := GetCode(err)
	return c >= 1200 && c < 1300
}

// HTTPStatusFromCode maps error codes to HTTP status codes
func HTTPStatusFromCode(code int) int {
	switch code {
	case ErrInvalidRequest:
		return 400
	case ErrUnauthorized:
		return 401
	case ErrForbidden:
		return 403
	case ErrNotFound, ErrSessionNotFound:
		return 404
	case ErrConflict, ErrSessionBusy, ErrAlreadyJoined, ErrAlreadyCommitted, ErrAlreadyRevealed:
		return 409
	case ErrInternalServerError:
		return 500
	case ErrServiceUnavailable:
		return 503
	case ErrLedgerError, ErrRandomnessError, ErrArchiveError:
		return 502
	default:
		if code >= 1000 && code < 1100 {
			return 400
		}
		if code >= 1100 && code < 1300 {
			return 409
		}
		return 500
	}
}

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountSuspended   ErrorCode = "ACCOUNT_SUSPENDED"
	ErrCodeDuplicateAccount   ErrorCode = "DUPLICATE_ACCOUNT"

	// Validation
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeProfileIncomplete ErrorCode = "PROFILE_INCOMPLETE"

	// Resource
	ErrCodeAccountNotFound        ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodePaymentRequestNotFound ErrorCode = "PAYMENT_REQUEST_NOT_FOUND"
	ErrCodePaymentAlreadyDecided  ErrorCode = "PAYMENT_ALREADY_DECIDED"
	ErrCodeConflict               ErrorCode = "CONFLICT"

	// Quota & Rate Limiting
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Completion service
	ErrCodeCompletionRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeNetwork               ErrorCode = "NETWORK_ERROR"
	ErrCodeContentBlocked        ErrorCode = "CONTENT_BLOCKED"
	ErrCodeConfigurationMissing  ErrorCode = "CONFIGURATION_MISSING"

	// Internal
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, "Invalid email or password")
}

func AccountSuspended() *AppError {
	return New(ErrCodeAccountSuspended, "Your account has been suspended by the administrator.")
}

func DuplicateAccount() *AppError {
	return New(ErrCodeDuplicateAccount, "User already exists")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("%s is required", field))
}

func ProfileIncomplete() *AppError {
	return New(ErrCodeProfileIncomplete, "Complete your profile to continue")
}

func AccountNotFound(id string) *AppError {
	return New(ErrCodeAccountNotFound, "Account not found").WithDetails(map[string]string{"accountId": id})
}

func PaymentRequestNotFound(id string) *AppError {
	return New(ErrCodePaymentRequestNotFound, "Payment request not found").WithDetails(map[string]string{"requestId": id})
}

func PaymentAlreadyDecided(id string) *AppError {
	return New(ErrCodePaymentAlreadyDecided, "Payment request was already decided").WithDetails(map[string]string{"requestId": id})
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func QuotaExceeded(limit int) *AppError {
	return New(ErrCodeQuotaExceeded, fmt.Sprintf("Daily limit of %d questions reached", limit))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func StorageUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStorageUnavailable, "Storage unavailable", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

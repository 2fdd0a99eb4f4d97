// Package apperror defines a centralized system for application-specific errors.
// Every error that crosses the HTTP boundary is (or is turned into) an *AppError,
// which knows its stable machine-readable code and the HTTP status it maps to.
// Handlers never build error bodies by hand; they hand the error to a writer
// that calls StatusCode and ToResponse.
package apperror

import (
	"errors"
	"fmt"
	// `net/http` is used for HTTP status codes.
	"net/http"
)

// ErrorType is an enumeration (using `iota`) for the categories of application errors.
type ErrorType int

const (
	// UnknownError is for unspecified errors
	UnknownError ErrorType = iota
	// ValidationError represents missing or malformed input fields
	ValidationError
	// DuplicateEmailError is returned by signup when the email is already registered
	DuplicateEmailError
	// InvalidCredentialsError is returned by login. It deliberately covers both
	// "no such email" and "wrong password".
	InvalidCredentialsError
	// UnauthenticatedError means no bearer token was presented
	UnauthenticatedError
	// InvalidTokenError means the bearer token has a bad signature or has expired
	InvalidTokenError
	// StoreUnavailableError represents an I/O failure of the backing store
	StoreUnavailableError
	// NotFoundError represents a resource not found error
	NotFoundError
	// ForbiddenError represents an authorization error (authenticated, but not allowed)
	ForbiddenError
	// ExternalServiceError represents an error from an external service (payments, storage, mail)
	ExternalServiceError
	// ConfigError represents an error related to application configuration
	ConfigError
	// MigrationError represents an error during database migrations
	MigrationError
	// InternalError represents a generic internal server error
	InternalError
	// PayloadTooLargeError means the request body exceeds the accepted size
	PayloadTooLargeError
	// TooManyRequestsError means the caller hit a rate limit
	TooManyRequestsError
)

// String returns the stable code sent to clients in the `code` field.
// These strings are part of the API contract and must not change.
func (t ErrorType) String() string {
	switch t {
	case ValidationError:
		return "ValidationError"
	case DuplicateEmailError:
		return "DuplicateEmail"
	case InvalidCredentialsError:
		return "InvalidCredentials"
	case UnauthenticatedError:
		return "Unauthenticated"
	case InvalidTokenError:
		return "InvalidToken"
	case StoreUnavailableError:
		return "StoreUnavailable"
	case NotFoundError:
		return "NotFound"
	case ForbiddenError:
		return "Forbidden"
	case ExternalServiceError:
		return "ExternalServiceError"
	case ConfigError:
		return "ConfigError"
	case MigrationError:
		return "MigrationError"
	case InternalError:
		return "InternalError"
	case PayloadTooLargeError:
		return "PayloadTooLarge"
	case TooManyRequestsError:
		return "TooManyRequests"
	default:
		return "UnknownError"
	}
}

// AppError is a custom error type for the application.
// It allows wrapping an underlying error (`Err`) for logging; only Message and
// the code derived from Type are ever shown to clients.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error // Underlying error
}

// Error returns the string representation of the error, satisfying the `error` interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error so `errors.Is` and `errors.As` can walk the chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Code returns the stable machine-readable code of the error.
func (e *AppError) Code() string {
	return e.Type.String()
}

// StatusCode returns the HTTP status code appropriate for the error type.
// Client-fixable problems (bad input, duplicate email, bad credentials,
// missing or invalid token) are 4xx; backend failures are 5xx.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case ValidationError, DuplicateEmailError, InvalidCredentialsError:
		return http.StatusBadRequest
	case UnauthenticatedError, InvalidTokenError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case PayloadTooLargeError:
		return http.StatusRequestEntityTooLarge
	case TooManyRequestsError:
		return http.StatusTooManyRequests
	case ExternalServiceError:
		return http.StatusBadGateway
	case StoreUnavailableError, ConfigError, MigrationError, InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new AppError. This is the generic constructor used by
// the typed helpers below.
func NewAppError(errType ErrorType, message string, underlyingError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     underlyingError,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string, underlyingError error) *AppError {
	return NewAppError(ValidationError, message, underlyingError)
}

// NewDuplicateEmailError creates a new DuplicateEmailError
func NewDuplicateEmailError(message string, underlyingError error) *AppError {
	return NewAppError(DuplicateEmailError, message, underlyingError)
}

// NewInvalidCredentialsError creates a new InvalidCredentialsError.
// Callers must use the same message for every failure reason.
func NewInvalidCredentialsError(message string, underlyingError error) *AppError {
	return NewAppError(InvalidCredentialsError, message, underlyingError)
}

// NewUnauthenticatedError creates a new UnauthenticatedError (no token presented)
func NewUnauthenticatedError(message string, underlyingError error) *AppError {
	return NewAppError(UnauthenticatedError, message, underlyingError)
}

// NewInvalidTokenError creates a new InvalidTokenError (bad signature or expired)
func NewInvalidTokenError(message string, underlyingError error) *AppError {
	return NewAppError(InvalidTokenError, message, underlyingError)
}

// NewStoreUnavailableError creates a new StoreUnavailableError
func NewStoreUnavailableError(message string, underlyingError error) *AppError {
	return NewAppError(StoreUnavailableError, message, underlyingError)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(message string, underlyingError error) *AppError {
	return NewAppError(NotFoundError, message, underlyingError)
}

// NewForbiddenError creates a new ForbiddenError
func NewForbiddenError(message string, underlyingError error) *AppError {
	return NewAppError(ForbiddenError, message, underlyingError)
}

// NewExternalServiceError creates a new ExternalServiceError
func NewExternalServiceError(message string, underlyingError error) *AppError {
	return NewAppError(ExternalServiceError, message, underlyingError)
}

// NewConfigError creates a new ConfigError
func NewConfigError(message string, underlyingError error) *AppError {
	return NewAppError(ConfigError, message, underlyingError)
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(message string, underlyingError error) *AppError {
	return NewAppError(MigrationError, message, underlyingError)
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, underlyingError error) *AppError {
	return NewAppError(InternalError, message, underlyingError)
}

// NewPayloadTooLargeError creates a new PayloadTooLargeError
func NewPayloadTooLargeError(message string, underlyingError error) *AppError {
	return NewAppError(PayloadTooLargeError, message, underlyingError)
}

// NewTooManyRequestsError creates a new TooManyRequestsError
func NewTooManyRequestsError(message string, underlyingError error) *AppError {
	return NewAppError(TooManyRequestsError, message, underlyingError)
}

// ErrorResponse represents the error payload sent to API clients.
type ErrorResponse struct {
	Error string `json:"error" example:"invalid email or password"`
	Code  string `json:"code" example:"InvalidCredentials"`
}

// ToResponse converts an AppError to an ErrorResponse suitable for API responses.
// Only the user-facing `Message` is included, never the underlying `Err`.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Code: e.Code()}
}

// FromError finds the first *AppError in err's chain.
// It returns the *AppError and true if found, otherwise nil and false.
func FromError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether any error in err's chain is an *AppError of the given type.
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	return Is(err, NotFoundError)
}

// IsValidationError checks if an error is a Validation error
func IsValidationError(err error) bool {
	return Is(err, ValidationError)
}

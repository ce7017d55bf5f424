package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Field      string            `json:"field,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	StatusCode int               `json:"-"`
	RetryAfter time.Duration     `json:"-"`
	Internal   error             `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so copies produced by WithInternal/WithField
// still satisfy errors.Is against the package sentinels.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithField returns a copy of the AppError bound to a request field.
func (e *AppError) WithField(field string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Field = field
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a different user-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthenticated = &AppError{
		Code:       "UNAUTHENTICATED",
		Message:    "Unauthenticated.",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidCredentials is shared by unknown-email and wrong-password failures.
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "These credentials do not match our records.",
		Field:      "email",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInvalidPassword = &AppError{
		Code:       "INVALID_PASSWORD",
		Message:    "The provided password is incorrect.",
		Field:      "password",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrThrottled = &AppError{
		Code:       "THROTTLED",
		Message:    "Too many login attempts.",
		Field:      "email",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInvalidResetToken = &AppError{
		Code:       "INVALID_RESET_TOKEN",
		Message:    "This password reset token is invalid.",
		Field:      "email",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "This action is unauthorized.",
		StatusCode: http.StatusForbidden,
	}

	ErrLinkExpired = &AppError{
		Code:       "LINK_EXPIRED",
		Message:    "This link has expired.",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidSignature = &AppError{
		Code:       "INVALID_SIGNATURE",
		Message:    "Invalid signature.",
		StatusCode: http.StatusForbidden,
	}

	ErrConfirmationRequired = &AppError{
		Code:       "CONFIRMATION_REQUIRED",
		Message:    "Password confirmation required.",
		StatusCode: http.StatusLocked,
	}

	ErrEmailUnverified = &AppError{
		Code:       "EMAIL_UNVERIFIED",
		Message:    "Your email address is not verified.",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "The given data was invalid.",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too Many Attempts.",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// NewValidation reports a single failing field.
func NewValidation(field, message string) *AppError {
	return &AppError{
		Code:       ErrValidation.Code,
		Message:    message,
		Field:      field,
		StatusCode: ErrValidation.StatusCode,
	}
}

// NewValidationFields reports several failing fields at once. Message is
// taken from the first field in fields' sorted order when present.
func NewValidationFields(fields map[string]string) *AppError {
	err := &AppError{
		Code:       ErrValidation.Code,
		Message:    ErrValidation.Message,
		StatusCode: ErrValidation.StatusCode,
		Fields:     make(map[string]string, len(fields)),
	}
	names := make([]string, 0, len(fields))
	for name, message := range fields {
		err.Fields[name] = message
		names = append(names, name)
	}
	if len(names) > 0 {
		sort.Strings(names)
		err.Field = names[0]
		err.Message = fields[names[0]]
	}
	return err
}

// FieldErrors returns every field-bound message carried by e.
func (e *AppError) FieldErrors() map[string]string {
	if e == nil || (e.Field == "" && len(e.Fields) == 0) {
		return nil
	}
	out := make(map[string]string, len(e.Fields)+1)
	for name, message := range e.Fields {
		out[name] = message
	}
	if e.Field != "" {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// NewThrottled builds the lockout error shown on the email field of login forms.
func NewThrottled(retryAfter time.Duration) *AppError {
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &AppError{
		Code:       ErrThrottled.Code,
		Message:    fmt.Sprintf("Too many login attempts. Please try again in %d seconds.", seconds),
		Field:      "email",
		StatusCode: ErrThrottled.StatusCode,
		RetryAfter: time.Duration(seconds) * time.Second,
	}
}

package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error codes carried in the error envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Status  int
	Details []FieldError
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Status:  fiber.StatusBadRequest,
		Message: message,
	}
}

// NewFieldValidationError builds a 400 carrying every failed field rule.
func NewFieldValidationError(details []FieldError) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Status:  fiber.StatusBadRequest,
		Message: "Validation failed",
		Details: details,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Status:  fiber.StatusUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Status:  fiber.StatusForbidden,
		Message: message,
	}
}

// NewConflictError reports a duplicate unique field. It maps to 400 like other input errors.
func NewConflictError(field string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Status:  fiber.StatusBadRequest,
		Message: fmt.Sprintf("%s already exists", field),
		Details: []FieldError{{Field: field, Message: fmt.Sprintf("%s already exists", field)}},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Status:  fiber.StatusTooManyRequests,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Status:  fiber.StatusInternalServerError,
		Message: "Internal server error",
		Err:     err,
	}
}

var (
	pgKeyDetail       = regexp.MustCompile(`Key \(([^)]+)\)=`)
	sqliteUniqueField = regexp.MustCompile(`UNIQUE constraint failed: [a-z_]+\.([a-z_]+)`)
)

// Translate maps storage, token and framework errors onto the application taxonomy.
// It is the single place where library-specific failures are interpreted.
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Status == 0 {
			appErr.Status = statusForCode(appErr.Code)
		}
		return appErr
	}

	if errors.Is(err, ErrInvalidRejectionReason) {
		return NewFieldValidationError([]FieldError{{Field: "reason", Message: err.Error()}})
	}

	if errors.Is(err, ErrInvalidTransition) {
		return &AppError{Code: CodeValidation, Status: fiber.StatusBadRequest, Message: err.Error(), Err: err}
	}

	if errors.Is(err, ErrStaleTransition) {
		return &AppError{Code: CodeConflict, Status: fiber.StatusConflict, Message: "Post was modified by another request", Err: err}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AppError{Code: CodeNotFound, Status: fiber.StatusNotFound, Message: "Resource not found", Err: err}
	}

	if field, ok := DuplicateKeyField(err); ok {
		conflict := NewConflictError(field)
		conflict.Err = err
		return conflict
	}

	if isTokenError(err) {
		return &AppError{Code: CodeUnauthorized, Status: fiber.StatusUnauthorized, Message: "Invalid or expired token", Err: err}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &AppError{Code: codeForStatus(fiberErr.Code), Status: fiberErr.Code, Message: fiberErr.Message}
	}

	return NewInternalError(err)
}

// DuplicateKeyField reports whether err is a unique-constraint violation and, if so, which column.
func DuplicateKeyField(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if m := pgKeyDetail.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return columnToField(m[1]), true
		}
		return "resource", true
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "resource", true
	}

	msg := err.Error()
	if m := sqliteUniqueField.FindStringSubmatch(msg); len(m) == 2 {
		return columnToField(m[1]), true
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "duplicate key") || strings.Contains(lower, "23505") {
		return "resource", true
	}
	return "", false
}

func columnToField(column string) string {
	parts := strings.Split(column, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenExpired,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenInvalidClaims,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation, CodeConflict:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return CodeValidation
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusConflict:
		return CodeConflict
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	default:
		if status >= 500 {
			return CodeInternal
		}
		return CodeValidation
	}
}

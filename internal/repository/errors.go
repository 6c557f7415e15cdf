package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// NotFoundError is an error type for when a resource is not found.
type NotFoundError struct {
	message string
}

// NewNotFoundError returns a NotFoundError carrying message.
func NewNotFoundError(message string) NotFoundError {
	return NotFoundError{message: message}
}

// Error returns the error message.
func (e NotFoundError) Error() string {
	if e.message == "" {
		return "not found"
	}
	return e.message
}

// DuplicateError is returned when a recipe with the same source URL is
// already stored.
type DuplicateError struct {
	SourceURL string
}

// Error returns the error message.
func (e DuplicateError) Error() string {
	return "recipe already stored for " + e.SourceURL
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

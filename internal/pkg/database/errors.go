package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is matched by every error that reports a missing entity
var ErrNotFound = errors.New("not found")

// NotFoundError is returned when a lookup or mutation refers to an id that does not exist
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError is returned when a write is rejected before anything is persisted.
// Field names the column or constraint that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IntegrityViolationError is returned when a defect write would leave a defect pointing at
// an inspection whose score can no longer be maintained
type IntegrityViolationError struct {
	InspectionID uint
	Err          error
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("integrity violation: unable to maintain score of inspection %d: %s", e.InspectionID, e.Err.Error())
}

func (e *IntegrityViolationError) Unwrap() error {
	return e.Err
}

func lookupError(err error, entity string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, id)
	}
	return err
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlerr defines the errors returned by sqlmodel. Every failure is a
// typed value that can be matched with errors.Is against the sentinels below
// and inspected with errors.As for structured context.
package sqlerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors. The typed errors in this package match one or more of
// these with errors.Is.
var (
	// ErrValidation is matched by malformed or over-long identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrStructure is matched by schema derivation failures and by values
	// read back from the database that do not fit their declared column.
	ErrStructure = errors.New("invalid structure")

	// ErrNoSQLType is returned when a composite type is asked for the SQL
	// type of a single column.
	ErrNoSQLType = errors.New("no sql type representation")

	// ErrMissingConverter is returned when no converter is registered for a
	// Go type.
	ErrMissingConverter = errors.New("missing converter")

	// ErrMissingTable is returned when a foreign key references a table
	// that is not known.
	ErrMissingTable = errors.New("missing referenced table")

	// ErrStoring is matched by values that cannot be turned into query
	// parameters.
	ErrStoring = errors.New("cannot store value")

	// ErrRestoring is matched by values that cannot be rebuilt from a
	// result row.
	ErrRestoring = errors.New("cannot restore value")

	// ErrCorruptNull is returned when a NULL is read from a column declared
	// NOT NULL.
	ErrCorruptNull = errors.New("corrupt null value")

	// ErrEntryNotFound is returned when a lookup by key finds no row.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrNotUpdated is returned when an update does not affect the expected
	// number of rows.
	ErrNotUpdated = errors.New("entry not updated")

	// ErrNotDeleted is returned when a delete does not affect the expected
	// number of rows.
	ErrNotDeleted = errors.New("entry not deleted")

	// ErrConstraint is matched by statements the database rejected for
	// violating a constraint.
	ErrConstraint = errors.New("constraint violation")

	// ErrInternal signals a defect in sqlmodel itself, such as a syntax
	// node without a rendering template.
	ErrInternal = errors.New("internal error")
)

// ValidationError is returned when an identifier cannot be constructed.
type ValidationError struct {
	// Kind is the identifier kind, e.g. "table" or "column".
	Kind string
	// Name is the offending text.
	Name string
	// Reason describes the violated rule.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s identifier %q: %s", e.Kind, e.Name, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StructureError is returned when a schema cannot be derived from a type.
type StructureError struct {
	// Type is the name of the Go type being derived.
	Type string
	// Field is the field path within Type, if any.
	Field string
	Err   error
}

func (e *StructureError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot derive schema for %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("cannot derive schema for %s field %q: %v", e.Type, e.Field, e.Err)
}

func (e *StructureError) Is(target error) bool {
	return target == ErrStructure
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

// Structuref returns a StructureError for typ and field wrapping cause with
// the formatted message.
func Structuref(typ, field string, cause error, format string, args ...any) error {
	if cause == nil {
		return &StructureError{Type: typ, Field: field, Err: errors.Errorf(format, args...)}
	}
	return &StructureError{Type: typ, Field: field, Err: errors.Wrapf(cause, format, args...)}
}

// StoringError is returned when a value cannot be collected as a query
// parameter. It aborts the whole row set.
type StoringError struct {
	Type  string
	Field string
	Value any
	Err   error
}

func (e *StoringError) Error() string {
	return fmt.Sprintf("cannot store %s field %q value %#v: %v", e.Type, e.Field, e.Value, e.Err)
}

func (e *StoringError) Is(target error) bool {
	return target == ErrStoring
}

func (e *StoringError) Unwrap() error {
	return e.Err
}

// RestoringError is returned when a result column cannot be turned back
// into a Go value.
type RestoringError struct {
	Type  string
	Field string
	// Column is the zero based position of the column in the row.
	Column int
	Value  any
	Err    error
}

func (e *RestoringError) Error() string {
	return fmt.Sprintf("cannot restore %s field %q from column %d (value %#v): %v", e.Type, e.Field, e.Column, e.Value, e.Err)
}

func (e *RestoringError) Is(target error) bool {
	return target == ErrRestoring
}

func (e *RestoringError) Unwrap() error {
	return e.Err
}

// RowCountError is returned when a statement affects a different number of
// rows than expected.
type RowCountError struct {
	// Op is one of "select", "update" or "delete".
	Op       string
	Table    string
	Expected int64
	Actual   int64
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("%s on %s: expected %d row(s), got %d", e.Op, e.Table, e.Expected, e.Actual)
}

func (e *RowCountError) Is(target error) bool {
	switch e.Op {
	case "select":
		return target == ErrEntryNotFound
	case "update":
		return target == ErrNotUpdated
	case "delete":
		return target == ErrNotDeleted
	}
	return false
}

// ConstraintError is returned when the database rejects a statement for
// violating a constraint.
type ConstraintError struct {
	// Constraint is the kind of constraint, e.g. "unique" or "foreign key".
	Constraint string
	Table      string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s constraint violated on %s: %v", e.Constraint, e.Table, e.Err)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Internalf returns an error matching ErrInternal.
func Internalf(format string, args ...any) error {
	return errors.Wrapf(ErrInternal, format, args...)
}

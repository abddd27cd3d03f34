// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package driverr classifies the errors returned by database drivers.
package driverr

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlmodel/sqlerr"
)

// Kind is the kind of constraint a statement violated.
type Kind int

const (
	// None is returned for errors that are not constraint violations.
	None Kind = iota
	Unique
	ForeignKey
	Check
	NotNull
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case ForeignKey:
		return "foreign key"
	case Check:
		return "check"
	case NotNull:
		return "not null"
	}
	return "none"
}

// PostgreSQL SQLSTATE codes of integrity constraint violations.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers of constraint violations.
const (
	mysqlBadNull          = 1048
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolated    = 3819
)

// SQLite extended result codes, shared by every SQLite driver.
const (
	sqliteConstraintCheck      = 275
	sqliteConstraintForeignKey = 787
	sqliteConstraintNotNull    = 1299
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// coder is implemented by modernc.org/sqlite errors.
type coder interface {
	Code() int
}

// Classify returns the kind of constraint err reports a violation of.
func Classify(err error) Kind {
	if err == nil {
		return None
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteKind(int(sqliteErr.ExtendedCode))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return postgresKind(string(pqErr.Code))
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlKind(mysqlErr.Number)
	}
	var c coder
	if errors.As(err, &c) {
		if k := sqliteKind(c.Code()); k != None {
			return k
		}
	}
	return fromMessage(err.Error())
}

func sqliteKind(code int) Kind {
	switch code {
	case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
		return Unique
	case sqliteConstraintForeignKey:
		return ForeignKey
	case sqliteConstraintCheck:
		return Check
	case sqliteConstraintNotNull:
		return NotNull
	}
	return None
}

func postgresKind(code string) Kind {
	switch code {
	case pgUniqueViolation:
		return Unique
	case pgForeignKeyViolation:
		return ForeignKey
	case pgCheckViolation:
		return Check
	case pgNotNullViolation:
		return NotNull
	}
	return None
}

func mysqlKind(number uint16) Kind {
	switch number {
	case mysqlDuplicateEntry:
		return Unique
	case mysqlForeignKeyParent, mysqlForeignKeyChild:
		return ForeignKey
	case mysqlCheckViolated:
		return Check
	case mysqlBadNull:
		return NotNull
	}
	return None
}

// fromMessage matches the messages of drivers whose errors carry no code,
// such as dqlite's.
func fromMessage(msg string) Kind {
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Duplicate entry"):
		return Unique
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "a foreign key constraint fails"):
		return ForeignKey
	case containsAny(msg, "CHECK constraint failed", "violates check constraint"):
		return Check
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint"):
		return NotNull
	}
	return None
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Wrap returns err as a *sqlerr.ConstraintError when it reports a constraint
// violation on table, and err unchanged otherwise.
func Wrap(err error, table string) error {
	k := Classify(err)
	if k == None {
		return err
	}
	return &sqlerr.ConstraintError{Constraint: k.String(), Table: table, Err: err}
}

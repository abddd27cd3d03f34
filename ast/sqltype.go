// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import "strconv"

// SQLType is the declared type of a column.
type SQLType int

const (
	Boolean SQLType = iota + 1
	TinyInt
	SmallInt
	Integer
	BigInt
	// Numeric holds integers of arbitrary precision.
	Numeric
	Real
	Double
	// Char holds exactly one character.
	Char
	// VarChar64 holds up to 64 characters.
	VarChar64
	Text
	// Binary128 holds up to 16 bytes.
	Binary128
	// Binary256 holds up to 32 bytes.
	Binary256
	Blob
)

var sqlTypeNames = map[SQLType]string{
	Boolean:   "BOOLEAN",
	TinyInt:   "TINYINT",
	SmallInt:  "SMALLINT",
	Integer:   "INT",
	BigInt:    "BIGINT",
	Numeric:   "NUMERIC",
	Real:      "REAL",
	Double:    "DOUBLE",
	Char:      "CHAR(1)",
	VarChar64: "VARCHAR(64)",
	Text:      "TEXT",
	Binary128: "BINARY(16)",
	Binary256: "BINARY(32)",
	Blob:      "BLOB",
}

// String returns the standard spelling of the type. Dialects may spell
// types differently.
func (t SQLType) String() string {
	if s, ok := sqlTypeNames[t]; ok {
		return s
	}
	return "SQLType(" + strconv.Itoa(int(t)) + ")"
}

// Domain returns the expression domain values of this type belong to.
func (t SQLType) Domain() Domain {
	switch t {
	case Boolean:
		return BooleanDomain
	case TinyInt, SmallInt, Integer, BigInt, Numeric, Real, Double:
		return NumberDomain
	}
	return StringDomain
}

// ByteLength returns the maximum length in bytes of a binary type, or -1
// when unbounded or not binary.
func (t SQLType) ByteLength() int {
	switch t {
	case Binary128:
		return 16
	case Binary256:
		return 32
	}
	return -1
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import (
	"regexp"
	"strconv"

	"github.com/canonical/sqlmodel/sqlerr"
)

const (
	// MaxIdentifierLength is the longest identifier accepted.
	MaxIdentifierLength = 63

	// MaxCombinedLength bounds len(prefix)+len(name) for prefixed
	// identifiers. The joining underscore keeps the result within
	// MaxIdentifierLength.
	MaxCombinedLength = 62
)

// IdentKind says what an Identifier names.
type IdentKind int

const (
	TableKind IdentKind = iota
	ColumnKind
	SchemaKind
	AliasKind
	PrefixKind
)

func (k IdentKind) String() string {
	switch k {
	case TableKind:
		return "table"
	case ColumnKind:
		return "column"
	case SchemaKind:
		return "schema"
	case AliasKind:
		return "alias"
	case PrefixKind:
		return "prefix"
	}
	return "IdentKind(" + strconv.Itoa(int(k)) + ")"
}

// This expression should be kept in line with the column names accepted in
// "db" struct tags.
var validIdentRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Identifier is a validated name of a table, column, schema, alias or
// prefix. The zero Identifier is empty and is only valid where an
// identifier is optional.
type Identifier struct {
	kind IdentKind
	text string
}

// NewIdentifier validates text and returns an identifier of the given kind.
func NewIdentifier(kind IdentKind, text string) (Identifier, error) {
	if err := validate(kind, text); err != nil {
		return Identifier{}, err
	}
	return Identifier{kind: kind, text: text}, nil
}

func validate(kind IdentKind, text string) error {
	switch {
	case text == "":
		return &sqlerr.ValidationError{Kind: kind.String(), Name: text, Reason: "empty name"}
	case len(text) > MaxIdentifierLength:
		return &sqlerr.ValidationError{
			Kind:   kind.String(),
			Name:   text,
			Reason: "longer than " + strconv.Itoa(MaxIdentifierLength) + " characters",
		}
	case !validIdentRx.MatchString(text):
		return &sqlerr.ValidationError{Kind: kind.String(), Name: text, Reason: "must match " + validIdentRx.String()}
	}
	return nil
}

// Table returns a table identifier.
func Table(name string) (Identifier, error) { return NewIdentifier(TableKind, name) }

// Column returns a column identifier.
func Column(name string) (Identifier, error) { return NewIdentifier(ColumnKind, name) }

// Schema returns a schema identifier.
func Schema(name string) (Identifier, error) { return NewIdentifier(SchemaKind, name) }

// Alias returns an alias identifier.
func Alias(name string) (Identifier, error) { return NewIdentifier(AliasKind, name) }

// Prefix returns a prefix identifier.
func Prefix(name string) (Identifier, error) { return NewIdentifier(PrefixKind, name) }

func must(id Identifier, err error) Identifier {
	if err != nil {
		panic(err)
	}
	return id
}

// MustTable is like Table but panics on error.
func MustTable(name string) Identifier { return must(Table(name)) }

// MustColumn is like Column but panics on error.
func MustColumn(name string) Identifier { return must(Column(name)) }

// MustSchema is like Schema but panics on error.
func MustSchema(name string) Identifier { return must(Schema(name)) }

// MustAlias is like Alias but panics on error.
func MustAlias(name string) Identifier { return must(Alias(name)) }

// MustPrefix is like Prefix but panics on error.
func MustPrefix(name string) Identifier { return must(Prefix(name)) }

// Prefixed joins prefix and name with an underscore. The result has the
// kind of name. len(prefix)+len(name) must not exceed MaxCombinedLength.
func Prefixed(prefix, name Identifier) (Identifier, error) {
	if prefix.IsZero() {
		return name, nil
	}
	if n := len(prefix.text) + len(name.text); n > MaxCombinedLength {
		return Identifier{}, &sqlerr.ValidationError{
			Kind:   name.kind.String(),
			Name:   prefix.text + "_" + name.text,
			Reason: "prefix and name are " + strconv.Itoa(n) + " characters, more than " + strconv.Itoa(MaxCombinedLength),
		}
	}
	return NewIdentifier(name.kind, prefix.text+"_"+name.text)
}

// As returns the identifier with the same text and a different kind.
func (id Identifier) As(kind IdentKind) Identifier {
	return Identifier{kind: kind, text: id.text}
}

// Kind returns what the identifier names.
func (id Identifier) Kind() IdentKind { return id.kind }

// Text returns the raw, unquoted name.
func (id Identifier) Text() string { return id.text }

// IsZero reports whether the identifier is empty.
func (id Identifier) IsZero() bool { return id.text == "" }

func (id Identifier) String() string { return id.text }

func (Identifier) node() {}

// QualifiedTable names a table, optionally within a schema. An implicit
// table takes its schema from the Unit it is rendered in.
type QualifiedTable struct {
	Schema   Identifier
	Table    Identifier
	Implicit bool
}

// QualifyTable returns a table explicitly qualified by schema. A zero
// schema leaves the table unqualified.
func QualifyTable(schema, table Identifier) QualifiedTable {
	return QualifiedTable{Schema: schema.As(SchemaKind), Table: table.As(TableKind)}
}

// ImplicitTable returns a table qualified by the unit it is rendered in.
func ImplicitTable(table Identifier) QualifiedTable {
	return QualifiedTable{Table: table.As(TableKind), Implicit: true}
}

// Resolve returns the schema the table belongs to within unit.
func (t QualifiedTable) Resolve(unit Unit) Identifier {
	if t.Implicit {
		return unit.Name
	}
	return t.Schema
}

func (t QualifiedTable) String() string {
	if t.Implicit {
		return "<unit>." + t.Table.text
	}
	if t.Schema.IsZero() {
		return t.Table.text
	}
	return t.Schema.text + "." + t.Table.text
}

func (QualifiedTable) node() {}

// QualifiedColumn names a column, optionally qualified by a table name or
// alias.
type QualifiedColumn struct {
	Table  Identifier
	Column Identifier
}

// QualifyColumn returns column qualified by table, which may be zero.
func QualifyColumn(table, column Identifier) QualifiedColumn {
	return QualifiedColumn{Table: table, Column: column.As(ColumnKind)}
}

func (c QualifiedColumn) String() string {
	if c.Table.IsZero() {
		return c.Column.text
	}
	return c.Table.text + "." + c.Column.text
}

func (QualifiedColumn) node() {}

// Unit is the schema-qualification context implicit tables resolve in.
type Unit struct {
	Name Identifier
}

// DefaultUnit is the unit used when a caller supplies none.
var DefaultUnit = Unit{Name: MustSchema("default")}

// NewUnit returns a unit named name.
func NewUnit(name string) (Unit, error) {
	id, err := Schema(name)
	if err != nil {
		return Unit{}, err
	}
	return Unit{Name: id}, nil
}

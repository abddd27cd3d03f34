// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
)

// Options are the words following the column name in a "db" tag.
type Options struct {
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	NotNull       bool
	Embed         bool

	// Size is the value of a "size=n" option, or zero.
	Size int

	// Default is the raw text of a "default=..." option.
	Default string

	// Ref is the raw text of a "ref=table" or "ref=table.column" option.
	Ref string

	// OnDelete and OnUpdate are the raw text of the referential action
	// options, e.g. "cascade" or "set_null".
	OnDelete string
	OnUpdate string
}

// Field represents a single tagged field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Index of this field in the structure.
	Index int

	// Column is the column name given in the tag.
	Column string

	Options Options
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Table is the default table name for the type.
	Table string

	// Fields lists the tagged fields in declaration order.
	Fields []Field

	// Relate tag names to fields.
	TagToField map[string]Field
}

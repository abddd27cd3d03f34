// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package schema derives tables from Go types and converts values to and from
rows.

A Registry holds one Converter per Go type. Scalars are built in; structs are
described either with a static field table,

	schema.Struct(
		schema.Field("id", func(u *User) *int64 { return &u.ID }, schema.AutoIncrement()),
		schema.Field("name", func(u *User) *string { return &u.Name }, schema.Size(64)),
	)

or from "db" struct tags with FromTags. Pointers to scalars are stored as
nullable columns. Structs marked Embedded are flattened into their owner's
table with prefixed column names. Slices are stored in dependent tables
named after the owner's table and the field.

Collect turns a value into a RowSet of parameter rows, one row per element
of a collection, and Recover reads a value back from a Cursor. Both visit
columns in declaration order, so the values of a row always line up with
the declared columns.

A Catalog names the table of each type and produces the statements to
create it: referenced tables first, then the table, then its dependent
tables.
*/
package schema

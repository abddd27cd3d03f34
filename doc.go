// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package sqlmodel stores Go structs in SQL databases through a schema
derived from their static field tables.

A struct is described once with schema.Struct, or with struct tags through
schema.Tagged, and registered in a schema.Registry. A schema.Catalog turns
registered types into tables: scalar fields become columns, embedded
structs are flattened under a prefix and slice fields are stored in
dependent tables keyed by the owner's primary key and the element position.

	type Person struct {
		ID   int64
		Name string
		Tags []string
	}

	var personDef = schema.Struct(
		schema.Field("id", func(p *Person) *int64 { return &p.ID }, schema.AutoIncrement()),
		schema.Field("name", func(p *Person) *string { return &p.Name }, schema.Size(64)),
		schema.Field("tags", func(p *Person) *[]string { return &p.Tags }),
	)

# Stores

A Store renders statements for one database in the dialect registered for
its driver and runs them through database/sql:

	reg := schema.NewRegistry()
	if err := reg.Register(personDef); err != nil {
		return err
	}
	catalog := schema.NewCatalog(reg)
	if _, err := schema.Define[Person](catalog, "people"); err != nil {
		return err
	}
	store, err := sqlmodel.Open("sqlite3", "file:test.db", sqlmodel.WithCatalog(catalog))
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.CreateTable(ctx, "people")
	...
	p := Person{Name: "Fred", Tags: []string{"a", "b"}}
	err = store.Insert(ctx, "people", &p, ast.ConflictNone)
	...
	var got Person
	err = store.Get(ctx, "people", &got, p.ID)

CreateTable creates the tables a table references before the table itself
and its dependent tables after it. Insert, Update and Delete on a table
with dependent tables run in a transaction. A zero auto-increment key is
assigned by the database and written back through the pointer passed to
Insert.

Statements are prepared on first use and cached for the lifetime of the
Store. Close releases them.

# Transactions

Store.Begin starts a transaction whose operations mirror those of the
Store. Store.WithTx runs a function in a transaction, committing it if the
function succeeds.

# Errors

Errors match the sentinels of package sqlerr with errors.Is. A lookup by
key that finds no row matches sqlerr.ErrEntryNotFound and a statement
rejected by a database constraint matches sqlerr.ErrConstraint.

# Properties

A Property is a named value persisted in the properties table of a Store.
In SingleWriter mode its value is cached after the first read.
*/
package sqlmodel

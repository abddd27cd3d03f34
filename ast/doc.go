// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package ast is the typed, immutable syntax tree of the SQL statements
sqlmodel issues.

The tree has three layers. Identifiers name tables, columns, schemas, aliases
and prefixes; they are validated when constructed and cannot be malformed
afterwards. Expressions are literals, columns, parameter placeholders and
operators, each belonging to one value domain (boolean, number or string);
operators check the domains of their operands. Statements compose identifiers
and expressions into SELECT, INSERT, UPDATE, DELETE, CREATE TABLE, CREATE
SCHEMA and DROP TABLE.

Nodes carry no rendering logic. Package dialect turns them into SQL text.

Every node type is a value; the tree can be shared between goroutines without
locking.
*/
package ast

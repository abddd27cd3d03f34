// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package dialect renders syntax trees from package ast as SQL text.

Base holds one template per node kind. Every other dialect is created with
New on top of a parent and supplies an Interceptor for the node kinds it
spells differently. Rendering a node asks each interceptor from the most
specific dialect outwards and falls back to the Base template:

	sql, err := dialect.SQLite.Unparse(stmt, ast.DefaultUnit)

Expressions are always fully parenthesised, so the text never depends on
operator precedence:

	("first_column") = (?)

Dialects are registered under their driver names. For picks one by name,
or by the registered database/sql drivers when the name is empty.
*/
package dialect

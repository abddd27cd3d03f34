// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import "github.com/canonical/sqlmodel/ast"

// SQLite renders booleans as integers and strings in single quotes. Schemas
// are attached in-memory databases, and foreign keys name their target
// table unqualified since SQLite only resolves them within one schema.
var SQLite = New("sqlite", Base,
	WithAltNames("sqlite3", "dqlite"),
	WithDefaultUnit("main"),
	WithInterceptor(sqliteIntercept),
	// NUMERIC affinity turns integers wider than 64 bits into REAL.
	WithTypeNames(map[ast.SQLType]string{ast.Numeric: "TEXT"}),
)

func sqliteIntercept(p *Printer, n ast.Node) (bool, error) {
	switch n := n.(type) {
	case ast.BoolLiteral:
		if n.Value {
			p.Write("1")
		} else {
			p.Write("0")
		}
		return true, nil
	case ast.StringLiteral:
		p.Write(QuoteSingle(n.Value))
		return true, nil
	case ast.ColumnDecl:
		typeName := p.TypeName(n.Type)
		if n.AutoIncrement {
			// Only INTEGER PRIMARY KEY aliases the rowid.
			typeName = "INTEGER"
		}
		return true, p.ColumnDecl(n, typeName, "AUTOINCREMENT")
	case ast.Reference:
		return true, p.Reference(n, n.Table.Table)
	case ast.CreateSchema:
		p.Write("ATTACH DATABASE ':memory:' AS ")
		return true, p.Node(n.Schema)
	}
	return false, nil
}

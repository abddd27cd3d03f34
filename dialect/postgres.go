// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"strconv"

	"github.com/lib/pq"

	"github.com/canonical/sqlmodel/ast"
)

// Postgres numbers its placeholders, stores binary values as BYTEA and
// expresses conflict policies with ON CONFLICT clauses.
var Postgres = New("postgres", Base,
	WithAltNames("postgresql", "pq", "pgx"),
	WithDefaultUnit("public"),
	WithReturning(),
	WithPlaceholder(func(n int) string { return "$" + strconv.Itoa(n) }),
	WithInterceptor(postgresIntercept),
	WithTypeNames(map[ast.SQLType]string{
		ast.TinyInt:   "SMALLINT",
		ast.Integer:   "INTEGER",
		ast.Double:    "DOUBLE PRECISION",
		ast.Binary128: "BYTEA",
		ast.Binary256: "BYTEA",
		ast.Blob:      "BYTEA",
	}),
)

func postgresIntercept(p *Printer, n ast.Node) (bool, error) {
	switch n := n.(type) {
	case ast.Identifier:
		p.Write(pq.QuoteIdentifier(n.Text()))
		return true, nil
	case ast.StringLiteral:
		p.Write(pq.QuoteLiteral(n.Value))
		return true, nil
	case ast.ColumnDecl:
		if !n.AutoIncrement {
			return false, nil
		}
		typeName := "BIGSERIAL"
		if n.Type == ast.Integer || n.Type == ast.SmallInt || n.Type == ast.TinyInt {
			typeName = "SERIAL"
		}
		return true, p.ColumnDecl(n, typeName, "")
	case ast.Insert:
		return true, postgresInsert(p, n)
	}
	return false, nil
}

func postgresInsert(p *Printer, n ast.Insert) error {
	if err := p.Insert(n, "INSERT INTO "); err != nil {
		return err
	}
	if err := postgresConflict(p, n); err != nil {
		return err
	}
	return p.Returning(n)
}

func postgresConflict(p *Printer, n ast.Insert) error {
	switch n.Conflict {
	case ast.ConflictIgnore:
		p.Write(" ON CONFLICT DO NOTHING")
	case ast.ConflictReplace:
		if len(n.ConflictTarget) == 0 {
			return invalidStatement("insert into %s replaces on conflict without a conflict target", n.Table)
		}
		p.Write(" ON CONFLICT ")
		if err := p.Idents(n.ConflictTarget); err != nil {
			return err
		}
		var set []ast.Identifier
		for _, c := range n.Columns {
			if !containsIdent(n.ConflictTarget, c) {
				set = append(set, c)
			}
		}
		if len(set) == 0 {
			p.Write(" DO NOTHING")
			return nil
		}
		p.Write(" DO UPDATE SET ")
		return p.List(len(set), func(i int) error {
			if err := p.Node(set[i]); err != nil {
				return err
			}
			p.Write(" = EXCLUDED.")
			return p.Node(set[i])
		})
	}
	return nil
}

func containsIdent(ids []ast.Identifier, id ast.Identifier) bool {
	for _, x := range ids {
		if x.Text() == id.Text() {
			return true
		}
	}
	return false
}

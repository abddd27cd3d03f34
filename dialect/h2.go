// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"strings"

	"github.com/canonical/sqlmodel/ast"
)

// H2 folds quoted identifiers to upper case, as H2 does for unquoted ones,
// and spells INSERT OR REPLACE as MERGE.
var H2 = New("h2", Base,
	WithDefaultUnit("PUBLIC"),
	WithInterceptor(h2Intercept),
	WithTypeNames(map[ast.SQLType]string{
		ast.Binary128: "BINARY(16)",
		ast.Binary256: "BINARY(32)",
		ast.Double:    "DOUBLE PRECISION",
	}),
)

func h2Intercept(p *Printer, n ast.Node) (bool, error) {
	switch n := n.(type) {
	case ast.Identifier:
		p.Write(QuoteDouble(strings.ToUpper(n.Text())))
		return true, nil
	case ast.StringLiteral:
		p.Write(QuoteSingle(n.Value))
		return true, nil
	case ast.Insert:
		if len(n.Returning) > 0 {
			return true, invalidStatement("insert into %s cannot return columns", n.Table)
		}
		if n.Conflict != ast.ConflictReplace {
			return false, nil
		}
		if n.Query != nil || len(n.ConflictTarget) == 0 {
			return true, p.Insert(n, "MERGE INTO ")
		}
		return true, h2MergeKey(p, n)
	}
	return false, nil
}

func h2MergeKey(p *Printer, n ast.Insert) error {
	if len(n.Rows) == 0 || len(n.Columns) == 0 {
		return invalidStatement("merge into %s has no rows", n.Table)
	}
	p.Write("MERGE INTO ")
	if err := p.Node(n.Table); err != nil {
		return err
	}
	p.Write(" ")
	if err := p.Idents(n.Columns); err != nil {
		return err
	}
	p.Write(" KEY ")
	if err := p.Idents(n.ConflictTarget); err != nil {
		return err
	}
	return p.Values(n)
}

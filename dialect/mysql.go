// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"strings"

	"github.com/canonical/sqlmodel/ast"
)

// MySQL quotes identifiers with backticks and has its own spellings for
// ignoring and replacing conflicting rows.
var MySQL = New("mysql", Base,
	WithAltNames("mariadb"),
	WithInterceptor(mysqlIntercept),
	WithTypeNames(map[ast.SQLType]string{
		ast.Numeric: "DECIMAL(65,0)",
		ast.Text:    "LONGTEXT",
		ast.Blob:    "LONGBLOB",
	}),
)

var mysqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`, "\x00", `\0`, "\n", `\n`, "\r", `\r`, "\x1a", `\Z`)

func mysqlIntercept(p *Printer, n ast.Node) (bool, error) {
	switch n := n.(type) {
	case ast.Identifier:
		p.Write("`" + strings.ReplaceAll(n.Text(), "`", "``") + "`")
		return true, nil
	case ast.StringLiteral:
		p.Write("'" + mysqlEscaper.Replace(n.Value) + "'")
		return true, nil
	case ast.ColumnDecl:
		return true, p.ColumnDecl(n, p.TypeName(n.Type), "AUTO_INCREMENT")
	case ast.Insert:
		if len(n.Returning) > 0 {
			return true, invalidStatement("insert into %s cannot return columns", n.Table)
		}
		switch n.Conflict {
		case ast.ConflictIgnore:
			return true, p.Insert(n, "INSERT IGNORE INTO ")
		case ast.ConflictReplace:
			return true, p.Insert(n, "REPLACE INTO ")
		}
		return true, p.Insert(n, "INSERT INTO ")
	}
	return false, nil
}

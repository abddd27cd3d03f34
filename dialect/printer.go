// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// Printer accumulates the SQL text of one rendering. Interceptors use it to
// write their own templates and to render child nodes, which are again
// offered to the interceptors first.
type Printer struct {
	d      *Dialect
	unit   ast.Unit
	buf    bytes.Buffer
	params int
}

// Unit returns the unit implicit tables resolve in.
func (p *Printer) Unit() ast.Unit {
	return p.unit
}

// Write writes raw SQL text.
func (p *Printer) Write(s string) {
	p.buf.WriteString(s)
}

// Node renders n through the dialect chain: every interceptor from the
// most specific dialect outwards is asked first, then the base template is
// used.
func (p *Printer) Node(n ast.Node) error {
	if n == nil {
		return sqlerr.Internalf("cannot render nil node")
	}
	for d := p.d; d != nil; d = d.parent {
		if d.intercept == nil {
			continue
		}
		handled, err := d.intercept(p, n)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return p.base(n)
}

// Placeholder writes the next parameter placeholder.
func (p *Printer) Placeholder() {
	p.params++
	for d := p.d; d != nil; d = d.parent {
		if d.placeholder != nil {
			p.Write(d.placeholder(p.params))
			return
		}
	}
	p.Write("?")
}

// TypeName returns the dialect spelling of t.
func (p *Printer) TypeName(t ast.SQLType) string {
	for d := p.d; d != nil; d = d.parent {
		if d.typeName == nil {
			continue
		}
		if s, ok := d.typeName(t); ok {
			return s
		}
	}
	return t.String()
}

// List renders n elements separated by commas.
func (p *Printer) List(n int, elem func(i int) error) error {
	for i := 0; i < n; i++ {
		if i != 0 {
			p.Write(", ")
		}
		if err := elem(i); err != nil {
			return err
		}
	}
	return nil
}

// Idents renders a parenthesised, comma separated list of identifiers.
func (p *Printer) Idents(ids []ast.Identifier) error {
	p.Write("(")
	err := p.List(len(ids), func(i int) error { return p.Node(ids[i]) })
	p.Write(")")
	return err
}

// Paren renders e in parentheses.
func (p *Printer) Paren(e ast.Expr) error {
	p.Write("(")
	err := p.Node(e)
	p.Write(")")
	return err
}

// QuoteDouble returns s in double quotes, doubling embedded quotes.
func QuoteDouble(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteSingle returns s in single quotes, doubling embedded quotes.
func QuoteSingle(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func (p *Printer) base(n ast.Node) error {
	switch n := n.(type) {
	case ast.Identifier:
		p.Write(QuoteDouble(n.Text()))
		return nil
	case ast.QualifiedTable:
		return p.qualifiedTable(n)
	case ast.QualifiedColumn:
		if !n.Table.IsZero() {
			if err := p.Node(n.Table); err != nil {
				return err
			}
			p.Write(".")
		}
		return p.Node(n.Column)

	case ast.BoolLiteral:
		if n.Value {
			p.Write("TRUE")
		} else {
			p.Write("FALSE")
		}
		return nil
	case ast.NumberLiteral:
		p.Write(n.Text)
		return nil
	case ast.StringLiteral:
		p.Write(QuoteDouble(n.Value))
		return nil
	case ast.NullLiteral:
		p.Write("NULL")
		return nil
	case ast.Param:
		p.Placeholder()
		return nil
	case ast.ColumnRef:
		return p.Node(n.Column)
	case ast.Unary:
		return p.unary(n)
	case ast.Binary:
		if err := p.Paren(n.Left); err != nil {
			return err
		}
		p.Write(" " + n.Op.String() + " ")
		return p.Paren(n.Right)
	case ast.Variadic:
		p.Write(n.Op.String() + "(")
		err := p.List(len(n.Args), func(i int) error { return p.Node(n.Args[i]) })
		p.Write(")")
		return err
	case ast.InList:
		if err := p.Paren(n.Expr); err != nil {
			return err
		}
		p.Write(" IN (")
		err := p.List(len(n.List), func(i int) error { return p.Node(n.List[i]) })
		p.Write(")")
		return err

	case ast.ResultColumn:
		if err := p.Node(n.Expr); err != nil {
			return err
		}
		return p.alias(n.Alias)
	case ast.TableSource:
		if err := p.Node(n.Table); err != nil {
			return err
		}
		return p.alias(n.Alias)
	case ast.JoinSource:
		return p.join(n)
	case ast.SubquerySource:
		p.Write("(")
		if err := p.Node(n.Query); err != nil {
			return err
		}
		p.Write(")")
		return p.alias(n.Alias)
	case ast.OrderTerm:
		if err := p.Node(n.Expr); err != nil {
			return err
		}
		if n.Descending {
			p.Write(" DESC")
		}
		return nil

	case ast.Select:
		return p.selectStmt(n)
	case ast.Compound:
		return p.compound(n)
	case ast.Insert:
		if err := p.insert(n, "INSERT"+conflictClause(n.Conflict)+" INTO "); err != nil {
			return err
		}
		return p.Returning(n)
	case ast.Assignment:
		if err := p.Node(n.Column); err != nil {
			return err
		}
		p.Write(" = ")
		return p.Node(n.Value)
	case ast.Update:
		return p.update(n)
	case ast.Delete:
		p.Write("DELETE FROM ")
		if err := p.Node(n.Table); err != nil {
			return err
		}
		return p.where(n.Where)

	case ast.CreateTable:
		return p.createTable(n)
	case ast.ColumnDecl:
		return p.ColumnDecl(n, p.TypeName(n.Type), "AUTOINCREMENT")
	case ast.PrimaryKeyConstraint:
		p.Write("PRIMARY KEY ")
		return p.Idents(n.Columns)
	case ast.UniqueConstraint:
		p.Write("UNIQUE ")
		return p.Idents(n.Columns)
	case ast.ForeignKeyConstraint:
		if !n.Name.IsZero() {
			p.Write("CONSTRAINT ")
			if err := p.Node(n.Name); err != nil {
				return err
			}
			p.Write(" ")
		}
		p.Write("FOREIGN KEY ")
		if err := p.Idents(n.Columns); err != nil {
			return err
		}
		p.Write(" ")
		return p.Node(n.Reference)
	case ast.Reference:
		return p.Reference(n, n.Table)
	case ast.CheckConstraint:
		if !n.Name.IsZero() {
			p.Write("CONSTRAINT ")
			if err := p.Node(n.Name); err != nil {
				return err
			}
			p.Write(" ")
		}
		p.Write("CHECK ")
		return p.Paren(n.Expr)
	case ast.CreateSchema:
		p.Write("CREATE SCHEMA ")
		if n.IfNotExists {
			p.Write("IF NOT EXISTS ")
		}
		return p.Node(n.Schema)
	case ast.DropTable:
		p.Write("DROP TABLE ")
		if n.IfExists {
			p.Write("IF EXISTS ")
		}
		return p.Node(n.Table)
	}
	return sqlerr.Internalf("no template for %T in dialect %s", n, p.d.name)
}

func (p *Printer) qualifiedTable(t ast.QualifiedTable) error {
	if schema := t.Resolve(p.unit); !schema.IsZero() {
		if err := p.Node(schema); err != nil {
			return err
		}
		p.Write(".")
	}
	return p.Node(t.Table)
}

func (p *Printer) alias(a ast.Identifier) error {
	if a.IsZero() {
		return nil
	}
	p.Write(" AS ")
	return p.Node(a)
}

func (p *Printer) unary(u ast.Unary) error {
	if u.Op.Postfix() {
		if err := p.Paren(u.Operand); err != nil {
			return err
		}
		p.Write(" " + u.Op.String())
		return nil
	}
	switch u.Op {
	case ast.OpNegate:
		p.Write("-")
	default:
		p.Write(u.Op.String() + " ")
	}
	return p.Paren(u.Operand)
}

func (p *Printer) join(j ast.JoinSource) error {
	if err := p.Node(j.Left); err != nil {
		return err
	}
	p.Write(" " + j.Kind.String() + " ")
	if err := p.Node(j.Right); err != nil {
		return err
	}
	if j.Kind == ast.CrossJoin || j.On == nil {
		return nil
	}
	p.Write(" ON ")
	return p.Node(j.On)
}

func (p *Printer) where(e ast.Expr) error {
	if e == nil {
		return nil
	}
	p.Write(" WHERE ")
	return p.Node(e)
}

func (p *Printer) selectStmt(s ast.Select) error {
	p.Write("SELECT ")
	if s.Distinct {
		p.Write("DISTINCT ")
	}
	if s.Columns == nil {
		p.Write("*")
	} else if err := p.List(len(s.Columns), func(i int) error { return p.Node(s.Columns[i]) }); err != nil {
		return err
	}
	if len(s.From) > 0 {
		p.Write(" FROM ")
		if err := p.List(len(s.From), func(i int) error { return p.Node(s.From[i]) }); err != nil {
			return err
		}
	}
	if err := p.where(s.Where); err != nil {
		return err
	}
	if len(s.GroupBy) > 0 {
		p.Write(" GROUP BY ")
		if err := p.List(len(s.GroupBy), func(i int) error { return p.Node(s.GroupBy[i]) }); err != nil {
			return err
		}
		if s.Having != nil {
			p.Write(" HAVING ")
			if err := p.Node(s.Having); err != nil {
				return err
			}
		}
	}
	return p.orderLimit(s.OrderBy, s.Limit, s.Offset)
}

func (p *Printer) compound(c ast.Compound) error {
	if c.Left == nil || c.Right == nil {
		return invalidStatement("compound query needs two operands")
	}
	if err := p.Node(c.Left); err != nil {
		return err
	}
	p.Write(" " + c.Op.String() + " ")
	if err := p.Node(c.Right); err != nil {
		return err
	}
	return p.orderLimit(c.OrderBy, c.Limit, c.Offset)
}

func (p *Printer) orderLimit(order []ast.OrderTerm, limit, offset *int64) error {
	if len(order) > 0 {
		p.Write(" ORDER BY ")
		if err := p.List(len(order), func(i int) error { return p.Node(order[i]) }); err != nil {
			return err
		}
	}
	if limit != nil {
		p.Write(" LIMIT " + strconv.FormatInt(*limit, 10))
		if offset != nil {
			p.Write(" OFFSET " + strconv.FormatInt(*offset, 10))
		}
	}
	return nil
}

func conflictClause(c ast.ConflictPolicy) string {
	if c == ast.ConflictNone {
		return ""
	}
	return " OR " + c.String()
}

// Insert renders an INSERT using verb as everything up to the table name,
// e.g. "INSERT OR REPLACE INTO ".
func (p *Printer) Insert(s ast.Insert, verb string) error {
	return p.insert(s, verb)
}

func (p *Printer) insert(s ast.Insert, verb string) error {
	p.Write(verb)
	if err := p.Node(s.Table); err != nil {
		return err
	}
	if s.Query != nil {
		if len(s.Rows) > 0 {
			return invalidStatement("insert into %s has both rows and a query", s.Table)
		}
		if len(s.Columns) > 0 {
			p.Write(" ")
			if err := p.Idents(s.Columns); err != nil {
				return err
			}
		}
		p.Write(" ")
		return p.Node(s.Query)
	}
	if len(s.Rows) == 0 {
		return invalidStatement("insert into %s has no rows", s.Table)
	}
	if len(s.Columns) == 0 {
		for _, row := range s.Rows {
			if len(row) != 0 {
				return invalidStatement("insert into %s has values but no columns", s.Table)
			}
		}
		if len(s.Rows) != 1 {
			return invalidStatement("insert into %s of default values must have one row", s.Table)
		}
		p.Write(" DEFAULT VALUES")
		return nil
	}
	p.Write(" ")
	if err := p.Idents(s.Columns); err != nil {
		return err
	}
	return p.Values(s)
}

// Returning renders the RETURNING clause of s, if any.
func (p *Printer) Returning(s ast.Insert) error {
	if len(s.Returning) == 0 {
		return nil
	}
	p.Write(" RETURNING ")
	return p.List(len(s.Returning), func(i int) error { return p.Node(s.Returning[i]) })
}

// Values renders the VALUES clause of s.
func (p *Printer) Values(s ast.Insert) error {
	p.Write(" VALUES ")
	return p.List(len(s.Rows), func(i int) error {
		row := s.Rows[i]
		if len(row) != len(s.Columns) {
			return invalidStatement("insert into %s: row %d has %d values for %d columns", s.Table, i, len(row), len(s.Columns))
		}
		p.Write("(")
		err := p.List(len(row), func(j int) error { return p.Node(row[j]) })
		p.Write(")")
		return err
	})
}

func (p *Printer) update(s ast.Update) error {
	if len(s.Set) == 0 {
		return invalidStatement("update of %s sets no columns", s.Table)
	}
	p.Write("UPDATE ")
	if err := p.Node(s.Table); err != nil {
		return err
	}
	p.Write(" SET ")
	if err := p.List(len(s.Set), func(i int) error { return p.Node(s.Set[i]) }); err != nil {
		return err
	}
	return p.where(s.Where)
}

func (p *Printer) createTable(s ast.CreateTable) error {
	if len(s.Columns) == 0 {
		return invalidStatement("table %s has no columns", s.Table)
	}
	p.Write("CREATE TABLE ")
	if s.IfNotExists {
		p.Write("IF NOT EXISTS ")
	}
	if err := p.Node(s.Table); err != nil {
		return err
	}
	p.Write(" (")
	if err := p.List(len(s.Columns), func(i int) error { return p.Node(s.Columns[i]) }); err != nil {
		return err
	}
	for _, c := range s.Constraints {
		p.Write(", ")
		if err := p.Node(c); err != nil {
			return err
		}
	}
	p.Write(")")
	return nil
}

// ColumnDecl renders a column declaration with the given type name and
// auto-increment keyword.
func (p *Printer) ColumnDecl(c ast.ColumnDecl, typeName, autoIncrement string) error {
	if err := p.Node(c.Name); err != nil {
		return err
	}
	p.Write(" " + typeName)
	if c.NotNull || c.PrimaryKey {
		p.Write(" NOT NULL")
	}
	if c.PrimaryKey {
		p.Write(" PRIMARY KEY")
	}
	if c.AutoIncrement && autoIncrement != "" {
		p.Write(" " + autoIncrement)
	}
	if c.Unique {
		p.Write(" UNIQUE")
	}
	if c.Default != nil {
		p.Write(" DEFAULT ")
		if err := p.Paren(c.Default); err != nil {
			return err
		}
	}
	if c.Check != nil {
		p.Write(" CHECK ")
		if err := p.Paren(c.Check); err != nil {
			return err
		}
	}
	return nil
}

// Reference renders a REFERENCES clause naming table as the target.
func (p *Printer) Reference(r ast.Reference, table ast.Node) error {
	p.Write("REFERENCES ")
	if err := p.Node(table); err != nil {
		return err
	}
	if len(r.Columns) > 0 {
		p.Write(" ")
		if err := p.Idents(r.Columns); err != nil {
			return err
		}
	}
	if r.OnDelete != ast.ActionDefault {
		p.Write(" ON DELETE " + r.OnDelete.String())
	}
	if r.OnUpdate != ast.ActionDefault {
		p.Write(" ON UPDATE " + r.OnUpdate.String())
	}
	return nil
}

func invalidStatement(format string, args ...any) error {
	return errors.Wrapf(sqlerr.ErrValidation, format, args...)
}

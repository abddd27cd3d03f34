// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema_test

import (
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

type TagsSuite struct{}

var _ = Suite(&TagsSuite{})

type Account struct {
	ID     int64  `db:"id,autoincr"`
	Email  string `db:"email,unique,size=64"`
	Grade  string `db:"grade,size=1,default='A'"`
	Active bool   `db:"active,default=true"`
	Team   *int64 `db:"team_id,ref=teams.id,ondelete=set_null"`
	Note   string
}

type BadAction struct {
	ID int64 `db:"id,pk,ondelete=cascade"`
}

func (s *TagsSuite) TestFromTags(c *C) {
	def, err := schema.FromTags[Account]()
	c.Assert(err, IsNil)
	reg := schema.NewRegistry()
	c.Assert(reg.Register(def), IsNil)
	conv, err := schema.LookupFor[Account](reg)
	c.Assert(err, IsNil)

	t, err := schema.NewTable(schema.TableName[Account](), conv)
	c.Assert(err, IsNil)
	c.Check(t.Name().Text(), Equals, "accounts")
	c.Check(names(t.Columns()), DeepEquals, []string{"id", "email", "grade", "active", "team_id"})

	decls := t.Declarations()
	c.Check(decls[0].AutoIncrement, Equals, true)
	c.Check(decls[1].Unique, Equals, true)
	c.Check(decls[1].Type, Equals, ast.VarChar64)
	c.Check(decls[2].Type, Equals, ast.Char)
	c.Check(decls[2].Default, Equals, ast.Expr(ast.String("A")))
	c.Check(decls[3].Default, Equals, ast.Expr(ast.Bool(true)))
	c.Check(decls[4].NotNull, Equals, false)

	a := Account{ID: 2, Email: "a@example.com", Grade: "B", Active: true, Team: int64p(7), Note: "ignored"}
	row, err := t.Row(a)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, schema.Row{int64(2), "a@example.com", "B", true, int64(7)})

	sp, err := t.Recover(schema.NewRowCursor(row))
	c.Assert(err, IsNil)
	got := t.Deref(sp).(Account)
	a.Note = ""
	c.Check(got, DeepEquals, a)
}

func (s *TagsSuite) TestTaggedReference(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(schema.Tagged[Account](), teamDef()), IsNil)
	cat := schema.NewCatalog(reg)
	accounts, err := schema.Define[Account](cat, "")
	c.Assert(err, IsNil)
	_, err = schema.Define[Team](cat, "")
	c.Assert(err, IsNil)

	stmts, err := cat.CreateStatements(accounts)
	c.Assert(err, IsNil)
	c.Assert(tableNames(stmts), DeepEquals, []string{"teams", "accounts"})
	c.Assert(stmts[1].Constraints, HasLen, 1)
	fk := stmts[1].Constraints[0].(ast.ForeignKeyConstraint)
	c.Check(fk.Reference.OnDelete, Equals, ast.SetNull)
	c.Check(names(fk.Reference.Columns), DeepEquals, []string{"id"})
}

func (s *TagsSuite) TestBadTags(c *C) {
	_, err := schema.FromTags[BadAction]()
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	_, err = schema.FromTags[Settings]()
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = schema.NewRegistry().Register(schema.Tagged[BadAction]())
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

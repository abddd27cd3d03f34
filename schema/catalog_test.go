// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema_test

import (
	"errors"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/dialect"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

type CatalogSuite struct{}

var _ = Suite(&CatalogSuite{})

func (s *CatalogSuite) catalog(c *C) *schema.Catalog {
	cat := schema.NewCatalog(newRegistry(c))
	_, err := schema.Define[Member](cat, "")
	c.Assert(err, IsNil)
	_, err = schema.Define[Team](cat, "")
	c.Assert(err, IsNil)
	_, err = schema.Define[Person](cat, "people")
	c.Assert(err, IsNil)
	return cat
}

func tableNames(stmts []ast.CreateTable) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.Table.Table.Text()
	}
	return out
}

func (s *CatalogSuite) TestDefine(c *C) {
	cat := s.catalog(c)
	var got []string
	for _, t := range cat.Tables() {
		got = append(got, t.Name().Text())
	}
	c.Check(got, DeepEquals, []string{"members", "teams", "people"})

	t, ok := cat.Table("teams")
	c.Assert(ok, Equals, true)
	c.Check(t.Type().Name(), Equals, "Team")

	t, ok = cat.TableOf(t.Type())
	c.Assert(ok, Equals, true)
	c.Check(t.Name().Text(), Equals, "teams")

	_, ok = cat.Table("missing")
	c.Check(ok, Equals, false)
}

func (s *CatalogSuite) TestDefineTwice(c *C) {
	cat := s.catalog(c)
	_, err := schema.Define[Team](cat, "teams")
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	// The dependent table name is taken too.
	_, err = schema.Define[Team](cat, "people_tags")
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

func (s *CatalogSuite) TestRequiredTables(c *C) {
	cat := s.catalog(c)
	members, _ := cat.Table("members")
	required, err := cat.RequiredTables(members)
	c.Assert(err, IsNil)
	c.Assert(required, HasLen, 1)
	c.Check(required[0].Name().Text(), Equals, "teams")

	teams, _ := cat.Table("teams")
	required, err = cat.RequiredTables(teams)
	c.Assert(err, IsNil)
	c.Check(required, HasLen, 0)
}

func (s *CatalogSuite) TestCreateStatements(c *C) {
	cat := s.catalog(c)
	members, _ := cat.Table("members")
	stmts, err := cat.CreateStatements(members)
	c.Assert(err, IsNil)
	c.Check(tableNames(stmts), DeepEquals, []string{"teams", "members"})

	sql, err := dialect.Base.Unparse(stmts[1], ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `CREATE TABLE IF NOT EXISTS "default"."members" (`+
		`"id" BIGINT NOT NULL PRIMARY KEY, `+
		`"team_id" BIGINT NOT NULL, `+
		`"mentor" BIGINT, `+
		`CONSTRAINT "fk_members_team_id" FOREIGN KEY ("team_id") REFERENCES "default"."teams" ("id") ON DELETE CASCADE, `+
		`CONSTRAINT "fk_members_mentor" FOREIGN KEY ("mentor") REFERENCES "default"."members" ("id") ON DELETE SET NULL)`)
}

func (s *CatalogSuite) TestCreateStatementsWithDependents(c *C) {
	cat := s.catalog(c)
	people, _ := cat.Table("people")
	stmts, err := cat.CreateStatements(people)
	c.Assert(err, IsNil)
	c.Check(tableNames(stmts), DeepEquals, []string{"people", "people_tags"})

	sql, err := dialect.Base.Unparse(stmts[1], ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `CREATE TABLE IF NOT EXISTS "default"."people_tags" (`+
		`"owner_id" BIGINT NOT NULL, `+
		`"ordinal" INT NOT NULL, `+
		`"tags" TEXT NOT NULL, `+
		`PRIMARY KEY ("owner_id", "ordinal"), `+
		`CONSTRAINT "fk_people_tags_owner_id" FOREIGN KEY ("owner_id") REFERENCES "default"."people" ("id") ON DELETE CASCADE)`)

	drops := cat.DropStatements(people)
	c.Assert(drops, HasLen, 2)
	c.Check(drops[0].Table.Table.Text(), Equals, "people_tags")
	c.Check(drops[1].Table.Table.Text(), Equals, "people")
}

func (s *CatalogSuite) TestMissingTable(c *C) {
	cat := schema.NewCatalog(newRegistry(c))
	members, err := schema.Define[Member](cat, "")
	c.Assert(err, IsNil)

	_, err = cat.CreateStatements(members)
	c.Check(errors.Is(err, sqlerr.ErrMissingTable), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	var se *sqlerr.StructureError
	c.Assert(errors.As(err, &se), Equals, true)
	c.Check(se.Field, Equals, "team_id")
}

type Left struct {
	ID    int64
	Right int64
}

type Right struct {
	ID   int64
	Left int64
}

func (s *CatalogSuite) TestReferenceCycle(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(
		schema.Struct(
			schema.Field("id", func(l *Left) *int64 { return &l.ID }, schema.PrimaryKey()),
			schema.Field("right_id", func(l *Left) *int64 { return &l.Right }, schema.References("rights")),
		),
		schema.Struct(
			schema.Field("id", func(r *Right) *int64 { return &r.ID }, schema.PrimaryKey()),
			schema.Field("left_id", func(r *Right) *int64 { return &r.Left }, schema.References("lefts")),
		),
	), IsNil)
	cat := schema.NewCatalog(reg)
	left, err := schema.Define[Left](cat, "")
	c.Assert(err, IsNil)
	_, err = schema.Define[Right](cat, "")
	c.Assert(err, IsNil)

	_, err = cat.RequiredTables(left)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
	c.Check(err, ErrorMatches, `.*reference cycle.*`)
}

func (s *CatalogSuite) TestReferenceColumnCount(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(
		schema.Struct(
			schema.Field("a", func(p *Pair) *int64 { return &p.A }, schema.PrimaryKey()),
			schema.Field("b", func(p *Pair) *int64 { return &p.B }, schema.PrimaryKey()),
		),
		schema.Struct(
			schema.Field("id", func(l *Left) *int64 { return &l.ID }, schema.PrimaryKey()),
			schema.Field("right_id", func(l *Left) *int64 { return &l.Right }, schema.References("pairs")),
		),
	), IsNil)
	cat := schema.NewCatalog(reg)
	_, err := schema.Define[Pair](cat, "")
	c.Assert(err, IsNil)
	left, err := schema.Define[Left](cat, "")
	c.Assert(err, IsNil)

	_, err = cat.CreateStatements(left)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema_test

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/dialect"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

type TableSuite struct{}

var _ = Suite(&TableSuite{})

func names(ids []ast.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Text()
	}
	return out
}

func (s *TableSuite) peopleTable(c *C) *schema.Table {
	conv, err := schema.LookupFor[Person](newRegistry(c))
	c.Assert(err, IsNil)
	t, err := schema.NewTable("people", conv)
	c.Assert(err, IsNil)
	return t
}

func (s *TableSuite) TestDeclarations(c *C) {
	t := s.peopleTable(c)
	c.Check(names(t.Columns()), DeepEquals, []string{"id", "name", "age", "home_street", "home_city"})
	c.Check(names(t.PrimaryKey()), DeepEquals, []string{"id"})
	col, ok := t.AutoIncrement()
	c.Check(ok, Equals, true)
	c.Check(col.Text(), Equals, "id")

	decls := t.Declarations()
	c.Check(decls[0].Type, Equals, ast.BigInt)
	c.Check(decls[0].AutoIncrement, Equals, true)
	c.Check(decls[1].Type, Equals, ast.VarChar64)
	c.Check(decls[2].Type, Equals, ast.Integer)
	c.Check(decls[2].NotNull, Equals, false)
	c.Check(decls[3].Type, Equals, ast.Text)
	c.Check(decls[4].Type, Equals, ast.VarChar64)
	for _, i := range []int{0, 1, 3, 4} {
		c.Check(decls[i].NotNull, Equals, true)
	}
}

func (s *TableSuite) TestRowAndInsert(c *C) {
	t := s.peopleTable(c)
	p := Person{Name: "ann", Home: Address{Street: "1 Main St", City: "Leeds"}, Tags: []string{"a", "b"}}
	row, err := t.Row(p)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, schema.Row{int64(0), "ann", nil, "1 Main St", "Leeds"})
	c.Check(t.OmitsAutoIncrement(row), Equals, true)

	stmt := t.Insert(ast.ConflictNone, true)
	args := t.InsertArgs(row, true)
	c.Check(names(stmt.Columns), DeepEquals, []string{"name", "age", "home_street", "home_city"})
	c.Check(args, HasLen, len(stmt.Columns))
	c.Check(args, DeepEquals, []any{"ann", nil, "1 Main St", "Leeds"})

	p.ID = 9
	row, err = t.Row(&p)
	c.Assert(err, IsNil)
	c.Check(t.OmitsAutoIncrement(row), Equals, false)
	stmt = t.Insert(ast.ConflictReplace, false)
	c.Check(t.InsertArgs(row, false), HasLen, len(stmt.Columns))
	c.Check(names(stmt.ConflictTarget), DeepEquals, []string{"id"})
}

func (s *TableSuite) TestSetAutoIncrement(c *C) {
	t := s.peopleTable(c)
	p := Person{Name: "ann"}
	c.Assert(t.SetAutoIncrement(&p, 12), IsNil)
	c.Check(p.ID, Equals, int64(12))

	err := t.SetAutoIncrement(p, 13)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)
}

func (s *TableSuite) TestUpdateArgsOrder(c *C) {
	t := s.peopleTable(c)
	stmt, err := t.Update()
	c.Assert(err, IsNil)
	c.Check(stmt.Set, HasLen, 4)

	args, err := t.UpdateArgs(Person{ID: 3, Name: "bob", Age: int32p(30)})
	c.Assert(err, IsNil)
	c.Check(args, DeepEquals, []any{"bob", int64(30), "", "", int64(3)})

	sql, n, err := dialect.Base.Render(stmt, ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(n, Equals, len(args))
	c.Check(sql, Equals, `UPDATE "default"."people" SET "name" = ?, "age" = ?, "home_street" = ?, "home_city" = ? WHERE ("id") = (?)`)
}

func (s *TableSuite) TestRecover(c *C) {
	t := s.peopleTable(c)
	sp, err := t.Recover(schema.NewCursor([]any{int64(1), "ann", int64(42), "1 Main St", "Leeds"}))
	c.Assert(err, IsNil)
	p := t.Deref(sp).(Person)
	c.Check(p.ID, Equals, int64(1))
	c.Check(p.Name, Equals, "ann")
	c.Assert(p.Age, NotNil)
	c.Check(*p.Age, Equals, int32(42))
	c.Check(p.Home, Equals, Address{Street: "1 Main St", City: "Leeds"})
	c.Check(p.Tags, IsNil)
}

func (s *TableSuite) TestRecoverCorruptNull(c *C) {
	t := s.peopleTable(c)
	_, err := t.Recover(schema.NewCursor([]any{int64(1), nil, nil, "1 Main St", "Leeds"}))
	c.Check(errors.Is(err, sqlerr.ErrCorruptNull), Equals, true)

	var re *sqlerr.RestoringError
	c.Assert(errors.As(err, &re), Equals, true)
	c.Check(re.Field, Equals, "name")
	c.Check(re.Type, Equals, "schema_test.Person")
}

func (s *TableSuite) TestDependentTable(c *C) {
	t := s.peopleTable(c)
	deps := t.Dependents()
	c.Assert(deps, HasLen, 1)
	d := deps[0]
	c.Check(d.Name().Text(), Equals, "people_tags")
	c.Check(d.Parent(), Equals, t)
	c.Check(names(d.Columns()), DeepEquals, []string{"owner_id", "ordinal", "tags"})
	c.Check(names(d.OwnerColumns()), DeepEquals, []string{"owner_id"})

	p := Person{ID: 4, Tags: []string{"x", "y", "z"}}
	rows, err := d.Rows(&p, []any{int64(4)})
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, schema.RowSet{
		{int64(4), int64(0), "x"},
		{int64(4), int64(1), "y"},
		{int64(4), int64(2), "z"},
	})
	c.Check(rows.Width(), Equals, len(d.Insert().Columns))

	p.Tags = nil
	rows, err = d.Rows(&p, []any{int64(4)})
	c.Assert(err, IsNil)
	c.Check(rows, HasLen, 0)
}

func (s *TableSuite) TestDependentRecover(c *C) {
	t := s.peopleTable(c)
	d := t.Dependents()[0]
	var elems []any
	for i, tag := range []string{"x", "y"} {
		v, err := d.RecoverElement(schema.NewCursor([]any{int64(i), tag}))
		c.Assert(err, IsNil)
		elems = append(elems, v)
	}
	var p Person
	d.Assign(&p, elems)
	c.Check(p.Tags, DeepEquals, []string{"x", "y"})

	d.Assign(&p, nil)
	c.Check(p.Tags, IsNil)
}

func (s *TableSuite) TestDependentStatements(c *C) {
	t := s.peopleTable(c)
	d := t.Dependents()[0]

	sql, err := dialect.Base.Unparse(d.SelectByOwner(), ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `SELECT "ordinal", "tags" FROM "default"."people_tags" WHERE ("owner_id") = (?) ORDER BY "ordinal"`)

	sql, err = dialect.Base.Unparse(d.DeleteByOwner(), ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(sql, Equals, `DELETE FROM "default"."people_tags" WHERE ("owner_id") = (?)`)
}

type Pair struct {
	A, B int64
}

type Keyless struct {
	Name  string
	Notes []string
}

func (s *TableSuite) TestInvalidTables(c *C) {
	reg := schema.NewRegistry()

	err := reg.Register(schema.Struct(
		schema.Field("a", func(p *Pair) *int64 { return &p.A }, schema.AutoIncrement()),
		schema.Field("b", func(p *Pair) *int64 { return &p.B }, schema.PrimaryKey()),
	))
	c.Assert(err, IsNil)
	conv, err := schema.LookupFor[Pair](reg)
	c.Assert(err, IsNil)
	_, err = schema.NewTable("pairs", conv)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = reg.Register(schema.Struct(
		schema.Field("name", func(k *Keyless) *string { return &k.Name }),
		schema.Field("notes", func(k *Keyless) *[]string { return &k.Notes }),
	))
	c.Assert(err, IsNil)
	conv, err = schema.LookupFor[Keyless](reg)
	c.Assert(err, IsNil)
	_, err = schema.NewTable("keyless", conv)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	conv, err = schema.LookupFor[int64](reg)
	c.Assert(err, IsNil)
	_, err = schema.NewTable("numbers", conv)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	_, err = schema.NewTable("bad name", conv)
	c.Check(errors.Is(err, sqlerr.ErrValidation), Equals, true)
}

func (s *TableSuite) TestInvalidFields(c *C) {
	reg := schema.NewRegistry()

	err := reg.Register(schema.Struct(
		schema.Field("a", func(p *Pair) *int64 { return &p.A }),
		schema.Field("a", func(p *Pair) *int64 { return &p.B }),
	))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = reg.Register(schema.Struct(
		schema.Field("name", func(k *Keyless) *string { return &k.Name }, schema.AutoIncrement()),
	))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = reg.Register(schema.Struct(
		schema.Field("notes", func(k *Keyless) *[]string { return &k.Notes }, schema.PrimaryKey()),
	))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = reg.Register(schema.Struct(
		schema.Field("name", func(k *Keyless) *string { return &k.Name }, schema.Size(0)),
	))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	err = reg.Register(schema.Struct(
		schema.Field("name", func(k *Keyless) *string { return &k.Name }, schema.Default(ast.Int(1))),
	))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

type Inner struct {
	Value int64
}

type Outer struct {
	ID    int64
	Inner Inner
}

func (s *TableSuite) TestPrefixLength(c *C) {
	inner := schema.Struct(
		schema.Field(strings.Repeat("b", 32), func(i *Inner) *int64 { return &i.Value }),
	)
	outer := func(prefix string) *schema.StructDef[Outer] {
		return schema.Struct(
			schema.Field("id", func(o *Outer) *int64 { return &o.ID }, schema.PrimaryKey()),
			schema.Field(prefix, func(o *Outer) *Inner { return &o.Inner }, schema.Embedded()),
		)
	}

	reg := schema.NewRegistry()
	c.Assert(reg.Register(inner, outer(strings.Repeat("a", 30))), IsNil)
	conv, err := schema.LookupFor[Outer](reg)
	c.Assert(err, IsNil)
	decls, err := conv.Declarations(ast.Identifier{}, schema.Hints{})
	c.Assert(err, IsNil)
	c.Check(decls[1].Name.Text(), HasLen, ast.MaxIdentifierLength)

	reg = schema.NewRegistry()
	err = reg.Register(inner, outer(strings.Repeat("a", 31)))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrValidation), Equals, true)
}

func (s *TableSuite) TestCompositeKey(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(schema.Struct(
		schema.Field("a", func(p *Pair) *int64 { return &p.A }, schema.PrimaryKey()),
		schema.Field("b", func(p *Pair) *int64 { return &p.B }, schema.PrimaryKey()),
	)), IsNil)
	conv, err := schema.LookupFor[Pair](reg)
	c.Assert(err, IsNil)
	t, err := schema.NewTable("pairs", conv)
	c.Assert(err, IsNil)

	stmt, err := t.SelectByKey()
	c.Assert(err, IsNil)
	sql, n, err := dialect.Base.Render(stmt, ast.DefaultUnit)
	c.Assert(err, IsNil)
	c.Check(n, Equals, 2)
	c.Check(sql, Equals, `SELECT "a", "b" FROM "default"."pairs" WHERE (("a") = (?)) AND (("b") = (?))`)

	args, err := t.KeyArgs(Pair{A: 1, B: 2})
	c.Assert(err, IsNil)
	c.Check(args, DeepEquals, []any{int64(1), int64(2)})

	_, err = t.Update()
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

type Token struct {
	ID    uuid.UUID
	Owner Pair
	Label string
}

func (s *TableSuite) TestKeyValues(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(
		schema.Struct(
			schema.Field("a", func(p *Pair) *int64 { return &p.A }),
			schema.Field("b", func(p *Pair) *int64 { return &p.B }, schema.PrimaryKey()),
		),
		schema.Struct(
			schema.Field("id", func(t *Token) *uuid.UUID { return &t.ID }, schema.PrimaryKey()),
			schema.Field("owner", func(t *Token) *Pair { return &t.Owner }, schema.Embedded()),
			schema.Field("label", func(t *Token) *string { return &t.Label }, schema.Size(8)),
		),
	), IsNil)
	conv, err := schema.LookupFor[Token](reg)
	c.Assert(err, IsNil)
	t, err := schema.NewTable("tokens", conv)
	c.Assert(err, IsNil)
	c.Check(names(t.PrimaryKey()), DeepEquals, []string{"id", "owner_b"})

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	args, err := t.KeyValues(id, 7)
	c.Assert(err, IsNil)
	c.Check(args, DeepEquals, []any{id[:], int64(7)})

	// The parameters are those of the stored row.
	row, err := t.Row(Token{ID: id, Owner: Pair{A: 1, B: 7}})
	c.Assert(err, IsNil)
	keys, err := t.KeyArgs(Token{ID: id, Owner: Pair{A: 1, B: 7}})
	c.Assert(err, IsNil)
	c.Check(args, DeepEquals, keys)
	c.Check(row[0], DeepEquals, id[:])

	_, err = t.KeyValues(id)
	c.Check(err, ErrorMatches, `table tokens has 2 key fields, got 1 values`)
	_, err = t.KeyValues(id.String(), 7)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)
	_, err = t.KeyValues(id, uint64(1)<<63)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)
}

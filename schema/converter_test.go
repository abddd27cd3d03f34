// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema_test

import (
	"errors"
	"math/big"
	"reflect"
	"strings"

	"github.com/google/uuid"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

type ConverterSuite struct{}

var _ = Suite(&ConverterSuite{})

type Colour int

type Settings struct {
	Theme  string
	Limits map[string]int
}

// roundTrip collects v and recovers it from the collected row.
func roundTrip(c *C, conv schema.Converter, h schema.Hints, v any) any {
	rows, err := conv.Collect(v, h, nil)
	c.Assert(err, IsNil)
	c.Assert(rows, HasLen, 1)
	cur := schema.NewRowCursor(rows[0])
	out, err := conv.Recover(h, cur)
	c.Assert(err, IsNil)
	c.Check(cur.Remaining(), Equals, 0)
	return out
}

func (s *ConverterSuite) TestScalarRoundTrip(c *C) {
	reg := schema.NewRegistry()
	id := uuid.New()
	for _, v := range []any{
		true,
		int8(-3),
		int16(300),
		int32(-70000),
		int64(1) << 40,
		int(42),
		uint8(255),
		uint16(65535),
		uint32(4294967295),
		float32(1.5),
		float64(-2.25),
		"hello",
		[]byte{1, 2, 3},
		[16]byte{1, 2, 3},
		[32]byte{4, 5, 6},
		id,
	} {
		conv, err := reg.Lookup(reflect.TypeOf(v))
		c.Assert(err, IsNil)
		c.Check(conv.Kind(), Equals, schema.Scalar)
		c.Check(roundTrip(c, conv, schema.Hints{}, v), DeepEquals, v)
	}
}

func (s *ConverterSuite) TestBigIntRoundTrip(c *C) {
	conv, err := schema.LookupFor[*big.Int](schema.NewRegistry())
	c.Assert(err, IsNil)
	t, err := conv.SQLType(schema.Hints{})
	c.Assert(err, IsNil)
	c.Check(t, Equals, ast.Numeric)

	n, _ := new(big.Int).SetString("-98765432109876543210", 10)
	out := roundTrip(c, conv, schema.Hints{}, n)
	c.Check(out.(*big.Int).Cmp(n), Equals, 0)

	_, err = conv.Collect((*big.Int)(nil), schema.Hints{}, nil)
	c.Check(errors.Is(err, sqlerr.ErrCorruptNull), Equals, true)
}

func (s *ConverterSuite) TestStringTypes(c *C) {
	conv, err := schema.LookupFor[string](schema.NewRegistry())
	c.Assert(err, IsNil)
	for _, t := range []struct {
		size int
		want ast.SQLType
	}{
		{0, ast.Text},
		{1, ast.Char},
		{2, ast.VarChar64},
		{64, ast.VarChar64},
		{65, ast.Text},
	} {
		got, err := conv.SQLType(schema.NewHints(sizeHint(t.size)...))
		c.Assert(err, IsNil)
		c.Check(got, Equals, t.want, Commentf("size %d", t.size))
	}
}

func sizeHint(n int) []schema.Hint {
	if n == 0 {
		return nil
	}
	return []schema.Hint{schema.Size(n)}
}

func (s *ConverterSuite) TestStringSizeOnStore(c *C) {
	conv, err := schema.LookupFor[string](schema.NewRegistry())
	c.Assert(err, IsNil)

	_, err = conv.Collect("ab", schema.NewHints(schema.Size(1)), nil)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)

	_, err = conv.Collect(strings.Repeat("x", 11), schema.NewHints(schema.Size(10)), nil)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)

	rows, err := conv.Collect("x", schema.NewHints(schema.Size(1)), nil)
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, schema.RowSet{{"x"}})
}

func (s *ConverterSuite) TestRecoverWidth(c *C) {
	reg := schema.NewRegistry()

	conv, err := schema.LookupFor[int8](reg)
	c.Assert(err, IsNil)
	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{int64(300)}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	conv, err = schema.LookupFor[uint8](reg)
	c.Assert(err, IsNil)
	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{int64(256)}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{int64(-1)}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	conv, err = schema.LookupFor[[16]byte](reg)
	c.Assert(err, IsNil)
	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{[]byte{1, 2}}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	conv, err = schema.LookupFor[string](reg)
	c.Assert(err, IsNil)
	_, err = conv.Recover(schema.NewHints(schema.Size(1)), schema.NewCursor([]any{"ab"}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

func (s *ConverterSuite) TestStringSizeOnRecover(c *C) {
	conv, err := schema.LookupFor[string](schema.NewRegistry())
	c.Assert(err, IsNil)

	_, err = conv.Recover(schema.NewHints(schema.Size(8)), schema.NewCursor([]any{"ninechars"}))
	c.Check(err, ErrorMatches, `.*string of 9 characters longer than 8.*`)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrRestoring), Equals, true)

	_, err = conv.Recover(schema.NewHints(schema.Size(100)), schema.NewCursor([]any{strings.Repeat("é", 101)}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)

	out, err := conv.Recover(schema.NewHints(schema.Size(8)), schema.NewCursor([]any{"éééééééé"}))
	c.Assert(err, IsNil)
	c.Check(out, Equals, "éééééééé")
}

func (s *ConverterSuite) TestNilBytesRoundTrip(c *C) {
	conv, err := schema.LookupFor[[]byte](schema.NewRegistry())
	c.Assert(err, IsNil)
	c.Check(roundTrip(c, conv, schema.Hints{}, []byte(nil)), DeepEquals, []byte(nil))
	c.Check(roundTrip(c, conv, schema.Hints{}, []byte{}), DeepEquals, []byte(nil))
	c.Check(roundTrip(c, conv, schema.Hints{}, []byte{0}), DeepEquals, []byte{0})
}

func (s *ConverterSuite) TestCorruptNull(c *C) {
	conv, err := schema.LookupFor[int64](schema.NewRegistry())
	c.Assert(err, IsNil)
	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{nil}))
	c.Check(errors.Is(err, sqlerr.ErrCorruptNull), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrRestoring), Equals, true)
}

func (s *ConverterSuite) TestNullable(c *C) {
	conv, err := schema.LookupFor[*int32](schema.NewRegistry())
	c.Assert(err, IsNil)

	decls, err := conv.Declarations(ast.MustColumn("age"), schema.Hints{})
	c.Assert(err, IsNil)
	c.Assert(decls, HasLen, 1)
	c.Check(decls[0].NotNull, Equals, false)
	c.Check(decls[0].Type, Equals, ast.Integer)

	rows, err := conv.Collect((*int32)(nil), schema.Hints{}, nil)
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, schema.RowSet{{nil}})
	out, err := conv.Recover(schema.Hints{}, schema.NewRowCursor(rows[0]))
	c.Assert(err, IsNil)
	c.Check(out, Equals, (*int32)(nil))

	out = roundTrip(c, conv, schema.Hints{}, int32p(7))
	c.Check(*out.(*int32), Equals, int32(7))

	notNull := schema.NewHints(schema.NotNull())
	_, err = conv.Collect((*int32)(nil), notNull, nil)
	c.Check(errors.Is(err, sqlerr.ErrCorruptNull), Equals, true)
	_, err = conv.Recover(notNull, schema.NewCursor([]any{nil}))
	c.Check(errors.Is(err, sqlerr.ErrCorruptNull), Equals, true)
}

func (s *ConverterSuite) TestNamedBasicType(c *C) {
	conv, err := schema.LookupFor[Colour](schema.NewRegistry())
	c.Assert(err, IsNil)
	rows, err := conv.Collect(Colour(3), schema.Hints{}, nil)
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, schema.RowSet{{int64(3)}})
	out, err := conv.Recover(schema.Hints{}, schema.NewRowCursor(rows[0]))
	c.Assert(err, IsNil)
	c.Check(out, Equals, Colour(3))
}

func (s *ConverterSuite) TestMismatchedValue(c *C) {
	conv, err := schema.LookupFor[int64](schema.NewRegistry())
	c.Assert(err, IsNil)
	_, err = conv.Collect("one", schema.Hints{}, nil)
	c.Check(errors.Is(err, sqlerr.ErrStoring), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrInternal), Equals, true)
}

func (s *ConverterSuite) TestMissingConverter(c *C) {
	_, err := schema.LookupFor[Settings](schema.NewRegistry())
	c.Check(errors.Is(err, sqlerr.ErrMissingConverter), Equals, true)
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

func (s *ConverterSuite) TestRegisterUnresolvable(c *C) {
	reg := schema.NewRegistry()
	err := reg.Register(personDef())
	c.Check(errors.Is(err, sqlerr.ErrMissingConverter), Equals, true)
}

func (s *ConverterSuite) TestOpaque(c *C) {
	reg := schema.NewRegistry()
	c.Assert(reg.Register(schema.Opaque[Settings]()), IsNil)
	conv, err := schema.LookupFor[Settings](reg)
	c.Assert(err, IsNil)
	t, err := conv.SQLType(schema.Hints{})
	c.Assert(err, IsNil)
	c.Check(t, Equals, ast.Blob)

	v := Settings{Theme: "dark", Limits: map[string]int{"rows": 10}}
	rows, err := conv.Collect(v, schema.Hints{}, nil)
	c.Assert(err, IsNil)
	c.Assert(rows, HasLen, 1)
	_, ok := rows[0][0].([]byte)
	c.Check(ok, Equals, true)
	c.Check(roundTrip(c, conv, schema.Hints{}, v), DeepEquals, v)

	_, err = conv.Recover(schema.Hints{}, schema.NewCursor([]any{[]byte{0xc1}}))
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

func (s *ConverterSuite) TestCompositeRoundTrip(c *C) {
	reg := newRegistry(c)
	conv, err := schema.LookupFor[Address](reg)
	c.Assert(err, IsNil)
	c.Check(conv.Kind(), Equals, schema.Composite)
	_, err = conv.SQLType(schema.Hints{})
	c.Check(errors.Is(err, sqlerr.ErrNoSQLType), Equals, true)

	v := Address{Street: "1 Main St", City: "Leeds"}
	c.Check(roundTrip(c, conv, schema.Hints{}, v), DeepEquals, v)
	c.Check(roundTrip(c, conv, schema.Hints{}, &v), DeepEquals, v)
}

func (s *ConverterSuite) TestCompositeColumnsMatchDeclarations(c *C) {
	reg := newRegistry(c)
	conv, err := schema.LookupFor[Person](reg)
	c.Assert(err, IsNil)

	cols, err := conv.Columns(ast.Identifier{}, ast.MustAlias("p"))
	c.Assert(err, IsNil)
	decls, err := conv.Declarations(ast.Identifier{}, schema.Hints{})
	c.Assert(err, IsNil)
	c.Assert(cols, HasLen, len(decls))
	for i := range cols {
		c.Check(cols[i].Column.Text(), Equals, decls[i].Name.Text())
		c.Check(cols[i].Table.Text(), Equals, "p")
	}

	rows, err := conv.Collect(Person{Name: "ann", Tags: []string{"a"}}, schema.Hints{}, nil)
	c.Assert(err, IsNil)
	c.Check(rows.Width(), Equals, len(decls))
}

func (s *ConverterSuite) TestCollectionMultipliesRows(c *C) {
	conv, err := schema.LookupFor[[]int64](schema.NewRegistry())
	c.Assert(err, IsNil)
	c.Check(conv.Kind(), Equals, schema.Collection)

	rows, err := conv.Collect([]int64{7, 8}, schema.Hints{}, schema.RowSet{{"a"}, {"b"}})
	c.Assert(err, IsNil)
	c.Check(rows, DeepEquals, schema.RowSet{
		{"a", int64(0), int64(7)},
		{"b", int64(0), int64(7)},
		{"a", int64(1), int64(8)},
		{"b", int64(1), int64(8)},
	})
}

func (s *ConverterSuite) TestEmptyCollection(c *C) {
	conv, err := schema.LookupFor[[]int64](schema.NewRegistry())
	c.Assert(err, IsNil)
	for _, v := range [][]int64{nil, {}} {
		rows, err := conv.Collect(v, schema.Hints{}, schema.RowSet{{"a"}})
		c.Assert(err, IsNil)
		c.Check(rows, NotNil)
		c.Check(rows, HasLen, 0)
	}
}

func (s *ConverterSuite) TestCollectionDeclarations(c *C) {
	conv, err := schema.LookupFor[[]string](schema.NewRegistry())
	c.Assert(err, IsNil)
	decls, err := conv.Declarations(ast.MustColumn("tags"), schema.Hints{})
	c.Assert(err, IsNil)
	c.Assert(decls, HasLen, 2)
	c.Check(decls[0].Name.Text(), Equals, "ordinal")
	c.Check(decls[0].NotNull, Equals, true)
	c.Check(decls[1].Name.Text(), Equals, "tags")
}

func (s *ConverterSuite) TestNestedCollection(c *C) {
	_, err := schema.LookupFor[[][]int64](schema.NewRegistry())
	c.Check(errors.Is(err, sqlerr.ErrStructure), Equals, true)
}

func (s *ConverterSuite) TestConcurrentLookup(c *C) {
	reg := schema.NewRegistry()
	done := make(chan schema.Converter)
	for i := 0; i < 8; i++ {
		go func() {
			conv, _ := schema.LookupFor[[]Colour](reg)
			done <- conv
		}()
	}
	first := <-done
	c.Assert(first, NotNil)
	for i := 1; i < 8; i++ {
		c.Check(<-done, Equals, first)
	}
}

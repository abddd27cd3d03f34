// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast_test

import (
	"github.com/pkg/errors"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

type exprSuite struct{}

var _ = Suite(&exprSuite{})

func (s *exprSuite) TestNumberLiterals(c *C) {
	c.Check(ast.Float(8).Text, Equals, "8.0")
	c.Check(ast.Float(-0.5).Text, Equals, "-0.5")
	c.Check(ast.Int(8).Text, Equals, "8")
	c.Check(func() { ast.Float(0 / zero()) }, PanicMatches, "cannot represent NaN as a literal")
}

func zero() float64 { return 0 }

func (s *exprSuite) TestDomains(c *C) {
	num := ast.Col(ast.MustColumn("n"), ast.NumberDomain)
	str := ast.Col(ast.MustColumn("s"), ast.StringDomain)
	tests := []struct {
		expr   ast.Expr
		domain ast.Domain
	}{
		{ast.Bool(true), ast.BooleanDomain},
		{ast.Null(ast.StringDomain), ast.StringDomain},
		{ast.P(ast.NumberDomain), ast.NumberDomain},
		{ast.Eq(str, ast.String("x")), ast.BooleanDomain},
		{ast.Add(num, ast.Int(1)), ast.NumberDomain},
		{ast.Concat(str, str), ast.StringDomain},
		{ast.Like(str, ast.String("a%")), ast.BooleanDomain},
		{ast.IsNull(num), ast.BooleanDomain},
		{ast.Neg(num), ast.NumberDomain},
		{ast.Count(str), ast.NumberDomain},
		{ast.Max(str), ast.StringDomain},
		{ast.Coalesce(num, ast.Int(0)), ast.NumberDomain},
		{ast.In(num, ast.Int(1), ast.Int(2)), ast.BooleanDomain},
	}
	for i, t := range tests {
		c.Check(t.expr.Domain(), Equals, t.domain, Commentf("test %d", i))
	}
}

func (s *exprSuite) TestDomainMismatch(c *C) {
	num := ast.Col(ast.MustColumn("n"), ast.NumberDomain)
	str := ast.Col(ast.MustColumn("s"), ast.StringDomain)

	_, err := ast.NewUnary(ast.OpNot, str)
	c.Check(err, ErrorMatches, `invalid operator identifier "NOT": need boolean operand, got string`)
	c.Check(errors.Is(err, sqlerr.ErrValidation), Equals, true)

	_, err = ast.NewBinary(ast.OpEqual, num, str)
	c.Check(err, ErrorMatches, `invalid operator identifier "=": need number operands, got number and string`)

	_, err = ast.NewBinary(ast.OpAdd, str, str)
	c.Check(err, ErrorMatches, `invalid operator identifier "\+": need number operands, got string and string`)

	_, err = ast.NewVariadic(ast.OpCoalesce, num, str)
	c.Check(err, ErrorMatches, `invalid operator identifier "COALESCE": operands of mixed domains number and string`)

	_, err = ast.NewVariadic(ast.OpSum, str)
	c.Check(err, ErrorMatches, `invalid operator identifier "SUM": unsupported operand domain string`)

	_, err = ast.NewVariadic(ast.OpAbs)
	c.Check(err, ErrorMatches, `invalid operator identifier "ABS": wrong number of operands: 0`)

	_, err = ast.NewIn(num)
	c.Check(err, ErrorMatches, `invalid operator identifier "IN": need an expression and a non-empty list`)

	c.Check(func() { ast.Not(num) }, PanicMatches, `invalid operator identifier "NOT": .*`)
}

func (s *exprSuite) TestAndOr(c *C) {
	a := ast.Eq(ast.Col(ast.MustColumn("a"), ast.NumberDomain), ast.P(ast.NumberDomain))
	b := ast.Eq(ast.Col(ast.MustColumn("b"), ast.NumberDomain), ast.P(ast.NumberDomain))

	c.Check(ast.And(a), DeepEquals, ast.Expr(a))
	and, ok := ast.And(a, b).(ast.Binary)
	c.Assert(ok, Equals, true)
	c.Check(and.Op, Equals, ast.OpAnd)
	c.Check(and.Left, DeepEquals, ast.Expr(a))

	or := ast.Or(a, b, a).(ast.Binary)
	c.Check(or.Op, Equals, ast.OpOr)
	c.Check(or.Left.(ast.Binary).Op, Equals, ast.OpOr)

	c.Check(func() { ast.And(ast.Int(1)) }, PanicMatches, `invalid operator identifier "AND": need boolean operand`)
}

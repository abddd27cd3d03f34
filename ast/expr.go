// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/canonical/sqlmodel/sqlerr"
)

// Node is any syntax tree value that can be rendered by a dialect.
type Node interface {
	node()
}

// Domain is the value domain of an expression.
type Domain int

const (
	BooleanDomain Domain = iota
	NumberDomain
	// StringDomain also covers binary values, which compare like strings.
	StringDomain
)

func (d Domain) String() string {
	switch d {
	case BooleanDomain:
		return "boolean"
	case NumberDomain:
		return "number"
	case StringDomain:
		return "string"
	}
	return "Domain(" + strconv.Itoa(int(d)) + ")"
}

// Expr is a value expression. Every expression belongs to exactly one
// domain.
type Expr interface {
	Node
	Domain() Domain
	expr()
}

// BoolLiteral is TRUE or FALSE.
type BoolLiteral struct {
	Value bool
}

// Bool returns a boolean literal.
func Bool(v bool) BoolLiteral { return BoolLiteral{Value: v} }

func (BoolLiteral) Domain() Domain { return BooleanDomain }

// NumberLiteral is a numeric literal kept in its rendered form.
type NumberLiteral struct {
	Text string
}

// Float returns a number literal for v. Integral values keep a trailing
// ".0" so that the literal reads back as a floating point value.
func Float(v float64) NumberLiteral {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		panic(fmt.Sprintf("cannot represent %v as a literal", v))
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return NumberLiteral{Text: s}
}

// Int returns an integer number literal.
func Int(v int64) NumberLiteral { return NumberLiteral{Text: strconv.FormatInt(v, 10)} }

func (NumberLiteral) Domain() Domain { return NumberDomain }

// StringLiteral is a character string literal.
type StringLiteral struct {
	Value string
}

// String returns a string literal.
func String(v string) StringLiteral { return StringLiteral{Value: v} }

func (StringLiteral) Domain() Domain { return StringDomain }

// NullLiteral is a NULL of a given domain.
type NullLiteral struct {
	Of Domain
}

// Null returns a NULL literal in domain d.
func Null(d Domain) NullLiteral { return NullLiteral{Of: d} }

func (n NullLiteral) Domain() Domain { return n.Of }

// Param is a positional parameter placeholder. Values are supplied
// separately, one per placeholder, in textual order.
type Param struct {
	Of Domain
}

// P returns a parameter placeholder in domain d.
func P(d Domain) Param { return Param{Of: d} }

func (p Param) Domain() Domain { return p.Of }

// ColumnRef refers to a column in an expression.
type ColumnRef struct {
	Column QualifiedColumn
	Of     Domain
}

// Col returns a reference to an unqualified column.
func Col(name Identifier, d Domain) ColumnRef {
	return ColumnRef{Column: QualifyColumn(Identifier{}, name), Of: d}
}

// QCol returns a reference to a qualified column.
func QCol(c QualifiedColumn, d Domain) ColumnRef {
	return ColumnRef{Column: c, Of: d}
}

func (c ColumnRef) Domain() Domain { return c.Of }

// UnaryOp is an operator taking one operand.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpIsNull
	OpIsNotNull
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "NOT"
	case OpNegate:
		return "-"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	}
	return "UnaryOp(" + strconv.Itoa(int(op)) + ")"
}

// Postfix reports whether the operator is written after its operand.
func (op UnaryOp) Postfix() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// Unary is an operator applied to one expression.
type Unary struct {
	Op      UnaryOp
	Operand Expr
	result  Domain
}

// NewUnary checks the operand domain and returns the expression.
func NewUnary(op UnaryOp, operand Expr) (Unary, error) {
	if operand == nil {
		return Unary{}, domainError(op.String(), "missing operand")
	}
	var result Domain
	switch op {
	case OpNot:
		if operand.Domain() != BooleanDomain {
			return Unary{}, domainError(op.String(), "need boolean operand, got %s", operand.Domain())
		}
		result = BooleanDomain
	case OpNegate:
		if operand.Domain() != NumberDomain {
			return Unary{}, domainError(op.String(), "need number operand, got %s", operand.Domain())
		}
		result = NumberDomain
	case OpIsNull, OpIsNotNull:
		result = BooleanDomain
	default:
		return Unary{}, domainError(op.String(), "unknown operator")
	}
	return Unary{Op: op, Operand: operand, result: result}, nil
}

func (u Unary) Domain() Domain { return u.result }

// BinaryOp is an operator taking two operands.
type BinaryOp int

const (
	OpEqual BinaryOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAnd
	OpOr
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpConcat
	OpLike
)

var binaryOpText = map[BinaryOp]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpAnd:          "AND",
	OpOr:           "OR",
	OpAdd:          "+",
	OpSubtract:     "-",
	OpMultiply:     "*",
	OpDivide:       "/",
	OpModulo:       "%",
	OpConcat:       "||",
	OpLike:         "LIKE",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpText[op]; ok {
		return s
	}
	return "BinaryOp(" + strconv.Itoa(int(op)) + ")"
}

// Binary is an operator applied to two expressions.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
	result      Domain
}

// NewBinary checks the operand domains and returns the expression.
func NewBinary(op BinaryOp, left, right Expr) (Binary, error) {
	if left == nil || right == nil {
		return Binary{}, domainError(op.String(), "missing operand")
	}
	ld, rd := left.Domain(), right.Domain()
	var operand, result Domain
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		operand, result = ld, BooleanDomain
	case OpAnd, OpOr:
		operand, result = BooleanDomain, BooleanDomain
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo:
		operand, result = NumberDomain, NumberDomain
	case OpConcat:
		operand, result = StringDomain, StringDomain
	case OpLike:
		operand, result = StringDomain, BooleanDomain
	default:
		return Binary{}, domainError(op.String(), "unknown operator")
	}
	if ld != operand || rd != operand {
		return Binary{}, domainError(op.String(), "need %s operands, got %s and %s", operand, ld, rd)
	}
	return Binary{Op: op, Left: left, Right: right, result: result}, nil
}

func (b Binary) Domain() Domain { return b.result }

// VariadicOp is a function-style operator taking a list of operands.
type VariadicOp int

const (
	OpCoalesce VariadicOp = iota
	OpMin
	OpMax
	OpCount
	OpSum
	OpAvg
	OpAbs
	OpLower
	OpUpper
	OpLength
)

type variadicSig struct {
	name     string
	min, max int // max < 0 means unbounded
	// operands lists the accepted operand domains; nil accepts any domain
	// as long as all operands share it.
	operands []Domain
	// result is the result domain; a negative value means the operand
	// domain.
	result Domain
}

const sameDomain Domain = -1

var variadicSigs = map[VariadicOp]variadicSig{
	OpCoalesce: {"COALESCE", 1, -1, nil, sameDomain},
	OpMin:      {"MIN", 1, 1, []Domain{NumberDomain, StringDomain}, sameDomain},
	OpMax:      {"MAX", 1, 1, []Domain{NumberDomain, StringDomain}, sameDomain},
	OpCount:    {"COUNT", 1, 1, nil, NumberDomain},
	OpSum:      {"SUM", 1, 1, []Domain{NumberDomain}, NumberDomain},
	OpAvg:      {"AVG", 1, 1, []Domain{NumberDomain}, NumberDomain},
	OpAbs:      {"ABS", 1, 1, []Domain{NumberDomain}, NumberDomain},
	OpLower:    {"LOWER", 1, 1, []Domain{StringDomain}, StringDomain},
	OpUpper:    {"UPPER", 1, 1, []Domain{StringDomain}, StringDomain},
	OpLength:   {"LENGTH", 1, 1, []Domain{StringDomain}, NumberDomain},
}

func (op VariadicOp) String() string {
	if sig, ok := variadicSigs[op]; ok {
		return sig.name
	}
	return "VariadicOp(" + strconv.Itoa(int(op)) + ")"
}

// Variadic is a function-style operator applied to a list of expressions.
type Variadic struct {
	Op     VariadicOp
	Args   []Expr
	result Domain
}

// NewVariadic checks the operand count and domains and returns the
// expression.
func NewVariadic(op VariadicOp, args ...Expr) (Variadic, error) {
	sig, ok := variadicSigs[op]
	if !ok {
		return Variadic{}, domainError(op.String(), "unknown operator")
	}
	if len(args) < sig.min || (sig.max >= 0 && len(args) > sig.max) {
		return Variadic{}, domainError(sig.name, "wrong number of operands: %d", len(args))
	}
	for _, a := range args {
		if a == nil {
			return Variadic{}, domainError(sig.name, "missing operand")
		}
	}
	d := args[0].Domain()
	for _, a := range args[1:] {
		if a.Domain() != d {
			return Variadic{}, domainError(sig.name, "operands of mixed domains %s and %s", d, a.Domain())
		}
	}
	if sig.operands != nil && !containsDomain(sig.operands, d) {
		return Variadic{}, domainError(sig.name, "unsupported operand domain %s", d)
	}
	result := sig.result
	if result == sameDomain {
		result = d
	}
	return Variadic{Op: op, Args: append([]Expr(nil), args...), result: result}, nil
}

func (v Variadic) Domain() Domain { return v.result }

// InList tests membership of an expression in a list.
type InList struct {
	Expr Expr
	List []Expr
}

// NewIn returns "(e) IN (list...)". All expressions must share a domain.
func NewIn(e Expr, list ...Expr) (InList, error) {
	if e == nil || len(list) == 0 {
		return InList{}, domainError("IN", "need an expression and a non-empty list")
	}
	for _, l := range list {
		if l == nil || l.Domain() != e.Domain() {
			return InList{}, domainError("IN", "list elements must be %s", e.Domain())
		}
	}
	return InList{Expr: e, List: append([]Expr(nil), list...)}, nil
}

func (InList) Domain() Domain { return BooleanDomain }

func containsDomain(ds []Domain, d Domain) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

func domainError(op string, format string, args ...any) error {
	return &sqlerr.ValidationError{Kind: "operator", Name: op, Reason: fmt.Sprintf(format, args...)}
}

func mustExpr[E Expr](e E, err error) E {
	if err != nil {
		panic(err)
	}
	return e
}

// Not returns NOT (e).
func Not(e Expr) Unary { return mustExpr(NewUnary(OpNot, e)) }

// Neg returns -(e).
func Neg(e Expr) Unary { return mustExpr(NewUnary(OpNegate, e)) }

// IsNull returns (e) IS NULL.
func IsNull(e Expr) Unary { return mustExpr(NewUnary(OpIsNull, e)) }

// IsNotNull returns (e) IS NOT NULL.
func IsNotNull(e Expr) Unary { return mustExpr(NewUnary(OpIsNotNull, e)) }

// Eq returns (l) = (r).
func Eq(l, r Expr) Binary { return mustExpr(NewBinary(OpEqual, l, r)) }

// Ne returns (l) <> (r).
func Ne(l, r Expr) Binary { return mustExpr(NewBinary(OpNotEqual, l, r)) }

// Lt returns (l) < (r).
func Lt(l, r Expr) Binary { return mustExpr(NewBinary(OpLess, l, r)) }

// Le returns (l) <= (r).
func Le(l, r Expr) Binary { return mustExpr(NewBinary(OpLessEqual, l, r)) }

// Gt returns (l) > (r).
func Gt(l, r Expr) Binary { return mustExpr(NewBinary(OpGreater, l, r)) }

// Ge returns (l) >= (r).
func Ge(l, r Expr) Binary { return mustExpr(NewBinary(OpGreaterEqual, l, r)) }

// Add returns (l) + (r).
func Add(l, r Expr) Binary { return mustExpr(NewBinary(OpAdd, l, r)) }

// Concat returns (l) || (r).
func Concat(l, r Expr) Binary { return mustExpr(NewBinary(OpConcat, l, r)) }

// Like returns (l) LIKE (r).
func Like(l, r Expr) Binary { return mustExpr(NewBinary(OpLike, l, r)) }

// And joins the operands with AND, left to right. A single operand is
// returned unchanged.
func And(first Expr, rest ...Expr) Expr {
	return fold(OpAnd, first, rest)
}

// Or joins the operands with OR, left to right.
func Or(first Expr, rest ...Expr) Expr {
	return fold(OpOr, first, rest)
}

func fold(op BinaryOp, first Expr, rest []Expr) Expr {
	e := first
	for _, r := range rest {
		e = mustExpr(NewBinary(op, e, r))
	}
	if len(rest) == 0 && (e == nil || e.Domain() != BooleanDomain) {
		panic(domainError(op.String(), "need boolean operand"))
	}
	return e
}

// Coalesce returns COALESCE(args...).
func Coalesce(args ...Expr) Variadic { return mustExpr(NewVariadic(OpCoalesce, args...)) }

// Count returns COUNT(e).
func Count(e Expr) Variadic { return mustExpr(NewVariadic(OpCount, e)) }

// Max returns MAX(e).
func Max(e Expr) Variadic { return mustExpr(NewVariadic(OpMax, e)) }

// Min returns MIN(e).
func Min(e Expr) Variadic { return mustExpr(NewVariadic(OpMin, e)) }

// In returns (e) IN (list...).
func In(e Expr, list ...Expr) InList { return mustExpr(NewIn(e, list...)) }

func (BoolLiteral) node()   {}
func (NumberLiteral) node() {}
func (StringLiteral) node() {}
func (NullLiteral) node()   {}
func (Param) node()         {}
func (ColumnRef) node()     {}
func (Unary) node()         {}
func (Binary) node()        {}
func (Variadic) node()      {}
func (InList) node()        {}

func (BoolLiteral) expr()   {}
func (NumberLiteral) expr() {}
func (StringLiteral) expr() {}
func (NullLiteral) expr()   {}
func (Param) expr()         {}
func (ColumnRef) expr()     {}
func (Unary) expr()         {}
func (Binary) expr()        {}
func (Variadic) expr()      {}
func (InList) expr()        {}

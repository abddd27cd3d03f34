// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// OrdinalColumn holds the position of an element within its collection.
var OrdinalColumn = ast.MustColumn("ordinal")

// collection stores a slice as one row per element in a dependent table.
// Each row carries the element's position followed by its columns.
type collection struct {
	typ  reflect.Type
	elem Converter
}

func newCollection(t reflect.Type, elem Converter) (*collection, error) {
	if c, ok := elem.(*composite); ok {
		colls, err := c.collections(ast.Identifier{})
		if err != nil {
			return nil, err
		}
		if len(colls) > 0 {
			return nil, sqlerr.Structuref(t.String(), colls[0].column.Text(), nil, "cannot store nested collections")
		}
	}
	return &collection{typ: t, elem: elem}, nil
}

func (c *collection) GoType() reflect.Type { return c.typ }
func (c *collection) Kind() Kind           { return Collection }

// Elem returns the converter of the elements.
func (c *collection) Elem() Converter { return c.elem }

func (c *collection) SQLType(Hints) (ast.SQLType, error) {
	return 0, &sqlerr.StructureError{Type: c.typ.String(), Err: sqlerr.ErrNoSQLType}
}

// elemBase returns the name element columns are stored under. Struct
// elements use their own field names.
func (c *collection) elemBase(base ast.Identifier) ast.Identifier {
	if c.elem.Kind() == Composite {
		return ast.Identifier{}
	}
	return base
}

func (c *collection) Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error) {
	cols, err := c.elem.Columns(c.elemBase(base), table)
	if err != nil {
		return nil, err
	}
	return append([]ast.QualifiedColumn{ast.QualifyColumn(table, OrdinalColumn)}, cols...), nil
}

func (c *collection) Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error) {
	decls, err := c.elem.Declarations(c.elemBase(base), h)
	if err != nil {
		return nil, err
	}
	ordinal := ast.ColumnDecl{Name: OrdinalColumn, Type: ast.Integer, NotNull: true}
	return append([]ast.ColumnDecl{ordinal}, decls...), nil
}

// Collect returns one row per element for every row of rows: the rows are
// multiplied by the collection size and each copy receives one element. A
// nil or empty collection yields no rows.
func (c *collection) Collect(v any, h Hints, rows RowSet) (RowSet, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != c.typ {
		return nil, mismatch(c.typ, v)
	}
	k := rv.Len()
	if k == 0 {
		return RowSet{}, nil
	}
	rows = started(rows)
	n := len(rows)
	multiplied := Multiply(rows, k)
	out := make(RowSet, 0, len(multiplied))
	for i := 0; i < k; i++ {
		block := AppendAll(multiplied[i*n:(i+1)*n], int64(i))
		block, err := c.elem.Collect(rv.Index(i).Interface(), h, block)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// Recover reads one dependent row and returns its element. Fold assembles
// the elements of all rows.
func (c *collection) Recover(h Hints, cur Cursor) (any, error) {
	if err := cur.Skip(); err != nil {
		return nil, err
	}
	return c.elem.Recover(h, cur)
}

// Fold returns a slice of the collection type holding elems in order. No
// elements fold to a nil slice.
func (c *collection) Fold(elems []any) any {
	if len(elems) == 0 {
		return reflect.Zero(c.typ).Interface()
	}
	out := reflect.MakeSlice(c.typ, 0, len(elems))
	for _, e := range elems {
		out = reflect.Append(out, reflect.ValueOf(e))
	}
	return out.Interface()
}

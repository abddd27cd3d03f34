// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// FieldDef describes one stored field of struct S.
type FieldDef[S any] struct {
	name  string
	typ   reflect.Type
	hints []Hint
	addr  func(s *S) any
	get   func(s *S) any
	set   func(s *S, v any)
}

// Field describes the field of S that ptr points to, stored under the
// column name.
func Field[S, F any](name string, ptr func(s *S) *F, hints ...Hint) FieldDef[S] {
	return FieldDef[S]{
		name:  name,
		typ:   reflect.TypeFor[F](),
		hints: hints,
		addr:  func(s *S) any { return ptr(s) },
		get:   func(s *S) any { return *ptr(s) },
		set:   func(s *S, v any) { *ptr(s) = v.(F) },
	}
}

// StructDef is the static field table of struct S.
type StructDef[S any] struct {
	fields []FieldDef[S]
}

// Struct returns the definition of S made of fields, in column order.
func Struct[S any](fields ...FieldDef[S]) *StructDef[S] {
	return &StructDef[S]{fields: fields}
}

func (d *StructDef[S]) Type() reflect.Type {
	return reflect.TypeFor[S]()
}

func (d *StructDef[S]) build(r *Registry) (Converter, error) {
	typ := d.Type()
	if typ.Kind() != reflect.Struct {
		return nil, sqlerr.Structuref(typ.String(), "", nil, "need a struct type")
	}
	if len(d.fields) == 0 {
		return nil, sqlerr.Structuref(typ.String(), "", nil, "no fields")
	}
	c := &composite{
		typ:    typ,
		newPtr: func() any { return new(S) },
		deref:  func(sp any) any { return *sp.(*S) },
		ptr: func(v any) (any, bool) {
			switch v := v.(type) {
			case S:
				return &v, true
			case *S:
				return v, v != nil
			}
			return nil, false
		},
	}
	for _, fd := range d.fields {
		fd := fd
		f, err := newField(r, typ, fd.name, fd.typ, fd.hints)
		if err != nil {
			return nil, err
		}
		f.addr = func(sp any) any { return fd.addr(sp.(*S)) }
		f.get = func(sp any) any { return fd.get(sp.(*S)) }
		f.set = func(sp any, v any) { fd.set(sp.(*S), v) }
		c.fields = append(c.fields, f)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// field is a resolved field of a composite. Its accessors take a pointer to
// the owning struct.
type field struct {
	column ast.Identifier
	hints  Hints
	conv   Converter
	addr   func(sp any) any
	get    func(sp any) any
	set    func(sp any, v any)
}

func newField(r *Registry, owner reflect.Type, name string, typ reflect.Type, hints []Hint) (field, error) {
	h := NewHints(hints...)
	if h.err != nil {
		return field{}, sqlerr.Structuref(owner.String(), name, h.err, "invalid hint")
	}
	column, err := ast.Column(name)
	if err != nil {
		return field{}, &sqlerr.StructureError{Type: owner.String(), Field: name, Err: err}
	}
	conv, err := r.Lookup(typ)
	if err != nil {
		return field{}, sqlerr.Structuref(owner.String(), name, err, "cannot store %s", typ)
	}
	fail := func(format string, args ...any) (field, error) {
		return field{}, sqlerr.Structuref(owner.String(), name, nil, format, args...)
	}
	switch conv.Kind() {
	case Composite:
		if !h.Embedded {
			return fail("struct field must be embedded")
		}
		if h.AutoIncrement || h.Unique || h.Default != nil || h.Check != nil || h.Size != 0 {
			return fail("only key and reference hints apply to embedded fields")
		}
	case Collection:
		if h.PrimaryKey || h.Unique || h.Reference != nil || h.Embedded {
			return fail("collection fields cannot be keys, unique, references or embedded")
		}
	case Scalar:
		if h.Embedded {
			return fail("only struct fields can be embedded")
		}
		if h.PrimaryKey && typ.Kind() == reflect.Pointer && !h.NotNull {
			return fail("primary key cannot be nullable")
		}
		if h.AutoIncrement {
			t, err := conv.SQLType(h)
			if err != nil {
				return field{}, err
			}
			if t != ast.TinyInt && t != ast.SmallInt && t != ast.Integer && t != ast.BigInt {
				return fail("auto-increment key must be an integer, got %s", t)
			}
		}
	}
	return field{column: column, hints: h, conv: conv}, nil
}

// composite stores a struct as the concatenated columns of its fields.
type composite struct {
	typ    reflect.Type
	fields []field
	newPtr func() any
	deref  func(sp any) any
	ptr    func(v any) (any, bool)
}

func (c *composite) validate() error {
	decls, err := c.Declarations(ast.Identifier{}, Hints{})
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, d := range decls {
		if seen[d.Name.Text()] {
			return sqlerr.Structuref(c.typ.String(), d.Name.Text(), nil, "column declared more than once")
		}
		seen[d.Name.Text()] = true
	}
	if len(decls) == 0 {
		return sqlerr.Structuref(c.typ.String(), "", nil, "no stored columns")
	}
	return nil
}

func (c *composite) GoType() reflect.Type { return c.typ }
func (c *composite) Kind() Kind           { return Composite }

func (c *composite) SQLType(Hints) (ast.SQLType, error) {
	return 0, &sqlerr.StructureError{Type: c.typ.String(), Err: sqlerr.ErrNoSQLType}
}

func (c *composite) Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error) {
	var cols []ast.QualifiedColumn
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		name, err := c.columnName(base, f)
		if err != nil {
			return nil, err
		}
		sub, err := f.conv.Columns(name, table)
		if err != nil {
			return nil, err
		}
		cols = append(cols, sub...)
	}
	return cols, nil
}

func (c *composite) Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error) {
	var decls []ast.ColumnDecl
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		name, err := c.columnName(base, f)
		if err != nil {
			return nil, err
		}
		fh := f.hints
		if h.PrimaryKey {
			// A key embedded struct makes every column part of the key.
			fh.PrimaryKey = true
		}
		sub, err := f.conv.Declarations(name, fh)
		if err != nil {
			return nil, annotate(err, c.typ, f.column.Text())
		}
		decls = append(decls, sub...)
	}
	return decls, nil
}

// columnName returns the column name of f within base, rejecting
// combinations longer than ast.MaxCombinedLength.
func (c *composite) columnName(base ast.Identifier, f field) (ast.Identifier, error) {
	if base.IsZero() {
		return f.column, nil
	}
	name, err := ast.Prefixed(base.As(ast.PrefixKind), f.column)
	if err != nil {
		return ast.Identifier{}, &sqlerr.StructureError{Type: c.typ.String(), Field: f.column.Text(), Err: err}
	}
	return name, nil
}

func (c *composite) Collect(v any, h Hints, rows RowSet) (RowSet, error) {
	sp, ok := c.ptr(v)
	if !ok {
		return nil, mismatch(c.typ, v)
	}
	return c.collectPtr(sp, rows)
}

func (c *composite) collectPtr(sp any, rows RowSet) (RowSet, error) {
	rows = started(rows)
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		var err error
		rows, err = f.conv.Collect(f.get(sp), f.hints, rows)
		if err != nil {
			return nil, annotate(err, c.typ, f.column.Text())
		}
	}
	return rows, nil
}

func (c *composite) Recover(h Hints, cur Cursor) (any, error) {
	sp, err := c.recoverPtr(cur)
	if err != nil {
		return nil, err
	}
	return c.deref(sp), nil
}

func (c *composite) recoverPtr(cur Cursor) (any, error) {
	sp := c.newPtr()
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		v, err := f.conv.Recover(f.hints, cur)
		if err != nil {
			return nil, annotate(err, c.typ, f.column.Text())
		}
		f.set(sp, v)
	}
	return sp, nil
}

// foreignKey is a reference hint resolved to the local columns it covers.
type foreignKey struct {
	columns []ast.Identifier
	ref     Ref
}

func (c *composite) foreignKeys(base ast.Identifier) ([]foreignKey, error) {
	var fks []foreignKey
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		name, err := c.columnName(base, f)
		if err != nil {
			return nil, err
		}
		if f.hints.Reference != nil {
			cols, err := f.conv.Columns(name, ast.Identifier{})
			if err != nil {
				return nil, err
			}
			fk := foreignKey{ref: *f.hints.Reference}
			for _, col := range cols {
				fk.columns = append(fk.columns, col.Column)
			}
			fks = append(fks, fk)
		}
		if sub, ok := f.conv.(*composite); ok {
			more, err := sub.foreignKeys(name)
			if err != nil {
				return nil, err
			}
			fks = append(fks, more...)
		}
	}
	return fks, nil
}

// keyField is a field whose columns all belong to the primary key.
type keyField struct {
	conv  Converter
	hints Hints
}

// keyFields returns the key fields of c in column order. With all set every
// field is a key field, as for an embedded struct marked as the key.
func (c *composite) keyFields(all bool) []keyField {
	var out []keyField
	for _, f := range c.fields {
		if f.conv.Kind() == Collection {
			continue
		}
		h := f.hints
		if all {
			h.PrimaryKey = true
		}
		if h.PrimaryKey {
			out = append(out, keyField{conv: f.conv, hints: h})
			continue
		}
		if sub, ok := f.conv.(*composite); ok {
			out = append(out, sub.keyFields(false)...)
		}
	}
	return out
}

// collectionField is a collection reachable from the top level struct,
// possibly through embedded structs.
type collectionField struct {
	column ast.Identifier
	hints  Hints
	conv   *collection
	get    func(sp any) any
	set    func(sp any, v any)
}

func (c *composite) collections(base ast.Identifier) ([]collectionField, error) {
	var out []collectionField
	for _, f := range c.fields {
		f := f
		name, err := c.columnName(base, f)
		if err != nil {
			return nil, err
		}
		switch conv := f.conv.(type) {
		case *collection:
			out = append(out, collectionField{column: name, hints: f.hints, conv: conv, get: f.get, set: f.set})
		case *composite:
			sub, err := conv.collections(name)
			if err != nil {
				return nil, err
			}
			for _, sc := range sub {
				sc := sc
				out = append(out, collectionField{
					column: sc.column,
					hints:  sc.hints,
					conv:   sc.conv,
					get:    func(sp any) any { return sc.get(f.addr(sp)) },
					set:    func(sp any, v any) { sc.set(f.addr(sp), v) },
				})
			}
		}
	}
	return out, nil
}

// annotate records the type and field a storing or restoring error
// occurred in, unless a nested struct already did.
func annotate(err error, typ reflect.Type, field string) error {
	var se *sqlerr.StoringError
	if errors.As(err, &se) && se.Field == "" {
		se.Type, se.Field = typ.String(), field
	}
	var re *sqlerr.RestoringError
	if errors.As(err, &re) && re.Field == "" {
		re.Type, re.Field = typ.String(), field
	}
	return err
}

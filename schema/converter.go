// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// Kind is the shape of the values a Converter handles.
type Kind int

const (
	// Scalar values are stored in one column.
	Scalar Kind = iota
	// Composite values are structs flattened into several columns.
	Composite
	// Collection values are slices stored in a dependent table.
	Collection
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Composite:
		return "composite"
	case Collection:
		return "collection"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Converter maps one Go type to columns and back. Converters are immutable
// once registered and may be shared between goroutines.
type Converter interface {
	GoType() reflect.Type
	Kind() Kind

	// SQLType returns the type of the single column of a scalar. Other
	// kinds fail with sqlerr.ErrNoSQLType.
	SQLType(h Hints) (ast.SQLType, error)

	// Columns returns the columns of a value stored under base, qualified
	// by table which may be zero.
	Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error)

	// Declarations returns the column declarations of a value stored under
	// base. They are in the same order as Columns.
	Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error)

	// Collect appends the parameter values of v to rows and returns the
	// new set. A nil rows is seeded with one empty row.
	Collect(v any, h Hints, rows RowSet) (RowSet, error)

	// Recover reads the columns declared for the type from cur and returns
	// the value.
	Recover(h Hints, cur Cursor) (any, error)
}

// Definition is a description of a type that a Registry can turn into a
// Converter.
type Definition interface {
	// Type returns the Go type being defined.
	Type() reflect.Type
	build(r *Registry) (Converter, error)
}

// Registry maps Go types to their converters. Lookups derive and cache
// converters for pointers, slices and named basic types on first use.
type Registry struct {
	mu         sync.RWMutex
	converters map[reflect.Type]Converter
}

// NewRegistry returns a registry holding the built in scalar converters.
func NewRegistry() *Registry {
	r := &Registry{converters: map[reflect.Type]Converter{}}
	for _, c := range builtinScalars() {
		r.converters[c.GoType()] = c
	}
	return r
}

// Add registers c for its Go type, replacing any earlier converter.
func (r *Registry) Add(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[c.GoType()] = c
}

// Register builds and registers the definitions. Definitions may depend on
// each other in any order; they are built once every type they use is
// known.
func (r *Registry) Register(defs ...Definition) error {
	pending := defs
	for len(pending) > 0 {
		var retry []Definition
		var lastErr error
		for _, d := range pending {
			c, err := d.build(r)
			if err != nil {
				if errors.Is(err, sqlerr.ErrMissingConverter) {
					retry = append(retry, d)
					lastErr = err
					continue
				}
				return err
			}
			r.Add(c)
		}
		if len(retry) == len(pending) {
			return lastErr
		}
		pending = retry
	}
	return nil
}

// Lookup returns the converter for t.
func (r *Registry) Lookup(t reflect.Type) (Converter, error) {
	r.mu.RLock()
	c, ok := r.converters[t]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := r.derive(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.converters[t]; ok {
		c = existing
	} else {
		r.converters[t] = c
	}
	r.mu.Unlock()
	return c, nil
}

// LookupFor is like Lookup for the type parameter.
func LookupFor[T any](r *Registry) (Converter, error) {
	return r.Lookup(reflect.TypeFor[T]())
}

func (r *Registry) derive(t reflect.Type) (Converter, error) {
	if t == nil {
		return nil, sqlerr.Internalf("cannot look up converter of nil type")
	}
	switch t.Kind() {
	case reflect.Pointer:
		inner, err := r.Lookup(t.Elem())
		if err != nil {
			return nil, err
		}
		if inner.Kind() != Scalar {
			return nil, sqlerr.Structuref(t.String(), "", nil, "cannot store nullable %s value", inner.Kind())
		}
		return &nullable{typ: t, inner: inner}, nil
	case reflect.Slice:
		elem, err := r.Lookup(t.Elem())
		if err != nil {
			return nil, err
		}
		if elem.Kind() == Collection {
			return nil, sqlerr.Structuref(t.String(), "", nil, "cannot store nested collections")
		}
		return newCollection(t, elem)
	}
	if base, ok := basicKinds[t.Kind()]; ok && t != base {
		inner, err := r.Lookup(base)
		if err != nil {
			return nil, err
		}
		return &converted{typ: t, inner: inner}, nil
	}
	return nil, &sqlerr.StructureError{Type: t.String(), Err: sqlerr.ErrMissingConverter}
}

var basicKinds = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
	reflect.String:  reflect.TypeFor[string](),
}

// converted stores a named basic type, such as an enum declared over int,
// with the converter of its underlying type.
type converted struct {
	typ   reflect.Type
	inner Converter
}

func (c *converted) GoType() reflect.Type { return c.typ }
func (c *converted) Kind() Kind           { return c.inner.Kind() }

func (c *converted) SQLType(h Hints) (ast.SQLType, error) { return c.inner.SQLType(h) }

func (c *converted) Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error) {
	return c.inner.Columns(base, table)
}

func (c *converted) Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error) {
	return c.inner.Declarations(base, h)
}

func (c *converted) Collect(v any, h Hints, rows RowSet) (RowSet, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != c.typ {
		return nil, mismatch(c.typ, v)
	}
	return c.inner.Collect(rv.Convert(c.inner.GoType()).Interface(), h, rows)
}

func (c *converted) Recover(h Hints, cur Cursor) (any, error) {
	v, err := c.inner.Recover(h, cur)
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(v).Convert(c.typ).Interface(), nil
}

// nullable stores a pointer to a scalar, with nil as NULL.
type nullable struct {
	typ   reflect.Type
	inner Converter
}

func (c *nullable) GoType() reflect.Type { return c.typ }
func (c *nullable) Kind() Kind           { return Scalar }

func (c *nullable) SQLType(h Hints) (ast.SQLType, error) { return c.inner.SQLType(h) }

func (c *nullable) Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error) {
	return c.inner.Columns(base, table)
}

func (c *nullable) Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error) {
	decls, err := c.inner.Declarations(base, h)
	if err != nil {
		return nil, err
	}
	for i := range decls {
		decls[i].NotNull = h.NotNull
	}
	return decls, nil
}

func (c *nullable) Collect(v any, h Hints, rows RowSet) (RowSet, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != c.typ {
		return nil, mismatch(c.typ, v)
	}
	if rv.IsNil() {
		if h.NotNull {
			return nil, &sqlerr.StoringError{Type: c.typ.String(), Value: v, Err: sqlerr.ErrCorruptNull}
		}
		return AppendAll(rows, nil), nil
	}
	return c.inner.Collect(rv.Elem().Interface(), h, rows)
}

func (c *nullable) Recover(h Hints, cur Cursor) (any, error) {
	if cur.IsNull() {
		if h.NotNull {
			return nil, &sqlerr.RestoringError{Column: cur.Consumed(), Err: sqlerr.ErrCorruptNull}
		}
		if err := cur.Skip(); err != nil {
			return nil, err
		}
		return reflect.Zero(c.typ).Interface(), nil
	}
	v, err := c.inner.Recover(h, cur)
	if err != nil {
		return nil, err
	}
	p := reflect.New(c.typ.Elem())
	p.Elem().Set(reflect.ValueOf(v))
	return p.Interface(), nil
}

func mismatch(want reflect.Type, v any) error {
	return &sqlerr.StoringError{
		Type:  want.String(),
		Value: v,
		Err:   sqlerr.Internalf("need %s, got %T", want, v),
	}
}

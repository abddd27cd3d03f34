// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
)

// Hints are the declarative annotations of a field.
type Hints struct {
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	NotNull       bool
	Embedded      bool

	// Size is the maximum length of a string field, or zero.
	Size int

	Default ast.Expr
	Check   ast.Expr

	Reference *Ref

	err error
}

// Ref is a foreign key reference from a field's columns to another table.
// An empty column list references the primary key of the target.
type Ref struct {
	Table    ast.Identifier
	Columns  []ast.Identifier
	OnDelete ast.Action
	OnUpdate ast.Action
}

// Hint sets one annotation of a field.
type Hint interface {
	apply(h *Hints)
}

type hintFunc func(h *Hints)

func (f hintFunc) apply(h *Hints) { f(h) }

// NewHints applies hints to zero Hints.
func NewHints(hints ...Hint) Hints {
	var h Hints
	for _, hint := range hints {
		hint.apply(&h)
	}
	return h
}

// Err returns the first error recorded while applying hints.
func (h Hints) Err() error {
	return h.err
}

// PrimaryKey marks the field as (part of) the primary key.
func PrimaryKey() Hint {
	return hintFunc(func(h *Hints) { h.PrimaryKey = true })
}

// AutoIncrement marks an integer field as a surrogate key assigned by the
// database. It implies PrimaryKey.
func AutoIncrement() Hint {
	return hintFunc(func(h *Hints) {
		h.PrimaryKey = true
		h.AutoIncrement = true
	})
}

// Unique marks the field's column as unique.
func Unique() Hint {
	return hintFunc(func(h *Hints) { h.Unique = true })
}

// NotNull declares a pointer field NOT NULL even though the Go type allows
// nil.
func NotNull() Hint {
	return hintFunc(func(h *Hints) { h.NotNull = true })
}

// Embedded flattens a struct field into its owner's table, prefixing its
// columns with the field name.
func Embedded() Hint {
	return hintFunc(func(h *Hints) { h.Embedded = true })
}

// Size bounds the length of a string field: 1 stores a single character,
// up to 64 a short string, anything longer unbounded text.
func Size(n int) Hint {
	return hintFunc(func(h *Hints) {
		if n <= 0 {
			h.fail(errors.Errorf("invalid size %d", n))
			return
		}
		h.Size = n
	})
}

// Default sets the column default.
func Default(e ast.Expr) Hint {
	return hintFunc(func(h *Hints) { h.Default = e })
}

// Check adds a column check constraint.
func Check(e ast.Expr) Hint {
	return hintFunc(func(h *Hints) { h.Check = e })
}

// RefHint is a foreign key hint. Its methods return a copy with the
// referential actions set.
type RefHint struct {
	ref Ref
	err error
}

// References declares a foreign key from the field to columns of table.
func References(table string, columns ...string) RefHint {
	var r RefHint
	id, err := ast.Table(table)
	if err != nil {
		r.err = err
		return r
	}
	r.ref.Table = id
	for _, c := range columns {
		col, err := ast.Column(c)
		if err != nil {
			r.err = err
			return r
		}
		r.ref.Columns = append(r.ref.Columns, col)
	}
	return r
}

// OnDelete sets the action taken when the referenced row is deleted.
func (r RefHint) OnDelete(a ast.Action) RefHint {
	r.ref.OnDelete = a
	return r
}

// OnUpdate sets the action taken when the referenced key changes.
func (r RefHint) OnUpdate(a ast.Action) RefHint {
	r.ref.OnUpdate = a
	return r
}

func (r RefHint) apply(h *Hints) {
	if r.err != nil {
		h.fail(r.err)
		return
	}
	ref := r.ref
	ref.Columns = append([]ast.Identifier(nil), r.ref.Columns...)
	h.Reference = &ref
}

func (h *Hints) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}

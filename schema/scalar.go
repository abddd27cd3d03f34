// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"math/big"
	"reflect"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// scalar stores a T in one column.
type scalar[T any] struct {
	sqlType func(h Hints) ast.SQLType
	store   func(v T, t ast.SQLType, h Hints) (any, error)
	load    func(cur Cursor, t ast.SQLType) (T, error)
	// verify, if set, checks a loaded value against the hints.
	verify func(cur Cursor, v T, h Hints) error
}

// NewScalar returns a converter storing T in one column of type t. store
// turns a value into a database/sql parameter and load reads it back.
func NewScalar[T any](t ast.SQLType, store func(v T) (any, error), load func(cur Cursor) (T, error)) Converter {
	return &scalar[T]{
		sqlType: fixed(t),
		store:   func(v T, _ ast.SQLType, _ Hints) (any, error) { return store(v) },
		load:    func(cur Cursor, _ ast.SQLType) (T, error) { return load(cur) },
	}
}

func fixed(t ast.SQLType) func(Hints) ast.SQLType {
	return func(Hints) ast.SQLType { return t }
}

func (s *scalar[T]) GoType() reflect.Type { return reflect.TypeFor[T]() }
func (s *scalar[T]) Kind() Kind           { return Scalar }

func (s *scalar[T]) SQLType(h Hints) (ast.SQLType, error) {
	return s.sqlType(h), nil
}

func (s *scalar[T]) Columns(base, table ast.Identifier) ([]ast.QualifiedColumn, error) {
	if base.IsZero() {
		return nil, sqlerr.Internalf("scalar %s needs a column name", s.GoType())
	}
	return []ast.QualifiedColumn{ast.QualifyColumn(table, base)}, nil
}

func (s *scalar[T]) Declarations(base ast.Identifier, h Hints) ([]ast.ColumnDecl, error) {
	if base.IsZero() {
		return nil, sqlerr.Internalf("scalar %s needs a column name", s.GoType())
	}
	t := s.sqlType(h)
	for _, e := range []ast.Expr{h.Default, h.Check} {
		if e == nil {
			continue
		}
		want := t.Domain()
		if e == h.Check {
			want = ast.BooleanDomain
		}
		if e.Domain() != want {
			return nil, sqlerr.Structuref(s.GoType().String(), base.Text(), nil,
				"expression of domain %s used where %s is needed", e.Domain(), want)
		}
	}
	return []ast.ColumnDecl{{
		Name:          base.As(ast.ColumnKind),
		Type:          t,
		NotNull:       true,
		PrimaryKey:    h.PrimaryKey,
		AutoIncrement: h.AutoIncrement,
		Unique:        h.Unique,
		Default:       h.Default,
		Check:         h.Check,
	}}, nil
}

func (s *scalar[T]) Collect(v any, h Hints, rows RowSet) (RowSet, error) {
	t, ok := v.(T)
	if !ok {
		return nil, mismatch(s.GoType(), v)
	}
	dv, err := s.store(t, s.sqlType(h), h)
	if err != nil {
		return nil, &sqlerr.StoringError{Type: s.GoType().String(), Value: v, Err: err}
	}
	return AppendAll(rows, dv), nil
}

func (s *scalar[T]) Recover(h Hints, cur Cursor) (any, error) {
	if cur.IsNull() {
		return nil, &sqlerr.RestoringError{Type: s.GoType().String(), Column: cur.Consumed(), Err: sqlerr.ErrCorruptNull}
	}
	v, err := s.load(cur, s.sqlType(h))
	if err != nil {
		return nil, err
	}
	if s.verify != nil {
		if err := s.verify(cur, v, h); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func outOfRange(cur Cursor, v any, format string, args ...any) error {
	return &sqlerr.RestoringError{
		Column: cur.Consumed() - 1,
		Value:  v,
		Err:    errors.Wrapf(sqlerr.ErrStructure, format, args...),
	}
}

func builtinScalars() []Converter {
	return []Converter{
		&scalar[bool]{
			sqlType: fixed(ast.Boolean),
			store:   func(v bool, _ ast.SQLType, _ Hints) (any, error) { return v, nil },
			load:    func(cur Cursor, _ ast.SQLType) (bool, error) { return cur.Bool() },
		},
		&scalar[int8]{
			sqlType: fixed(ast.TinyInt),
			store:   func(v int8, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load:    func(cur Cursor, _ ast.SQLType) (int8, error) { return cur.Int8() },
		},
		&scalar[int16]{
			sqlType: fixed(ast.SmallInt),
			store:   func(v int16, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load:    func(cur Cursor, _ ast.SQLType) (int16, error) { return cur.Int16() },
		},
		&scalar[int32]{
			sqlType: fixed(ast.Integer),
			store:   func(v int32, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load:    func(cur Cursor, _ ast.SQLType) (int32, error) { return cur.Int32() },
		},
		&scalar[int64]{
			sqlType: fixed(ast.BigInt),
			store:   func(v int64, _ ast.SQLType, _ Hints) (any, error) { return v, nil },
			load:    func(cur Cursor, _ ast.SQLType) (int64, error) { return cur.Int64() },
		},
		&scalar[int]{
			sqlType: fixed(ast.BigInt),
			store:   func(v int, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load: func(cur Cursor, _ ast.SQLType) (int, error) {
				i, err := cur.Int64()
				return int(i), err
			},
		},
		&scalar[uint8]{
			sqlType: fixed(ast.SmallInt),
			store:   func(v uint8, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load: func(cur Cursor, _ ast.SQLType) (uint8, error) {
				i, err := cur.Int16()
				if err == nil && (i < 0 || i > 0xff) {
					err = outOfRange(cur, i, "value %d does not fit in 8 unsigned bits", i)
				}
				return uint8(i), err
			},
		},
		&scalar[uint16]{
			sqlType: fixed(ast.Integer),
			store:   func(v uint16, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load: func(cur Cursor, _ ast.SQLType) (uint16, error) {
				i, err := cur.Int32()
				if err == nil && (i < 0 || i > 0xffff) {
					err = outOfRange(cur, i, "value %d does not fit in 16 unsigned bits", i)
				}
				return uint16(i), err
			},
		},
		&scalar[uint32]{
			sqlType: fixed(ast.BigInt),
			store:   func(v uint32, _ ast.SQLType, _ Hints) (any, error) { return int64(v), nil },
			load: func(cur Cursor, _ ast.SQLType) (uint32, error) {
				i, err := cur.Int64()
				if err == nil && (i < 0 || i > 0xffffffff) {
					err = outOfRange(cur, i, "value %d does not fit in 32 unsigned bits", i)
				}
				return uint32(i), err
			},
		},
		&scalar[*big.Int]{
			sqlType: fixed(ast.Numeric),
			store: func(v *big.Int, _ ast.SQLType, _ Hints) (any, error) {
				if v == nil {
					return nil, sqlerr.ErrCorruptNull
				}
				return v.String(), nil
			},
			load: func(cur Cursor, _ ast.SQLType) (*big.Int, error) { return cur.BigInt() },
		},
		&scalar[float32]{
			sqlType: fixed(ast.Real),
			store:   func(v float32, _ ast.SQLType, _ Hints) (any, error) { return float64(v), nil },
			load:    func(cur Cursor, _ ast.SQLType) (float32, error) { return cur.Float32() },
		},
		&scalar[float64]{
			sqlType: fixed(ast.Double),
			store:   func(v float64, _ ast.SQLType, _ Hints) (any, error) { return v, nil },
			load:    func(cur Cursor, _ ast.SQLType) (float64, error) { return cur.Float64() },
		},
		&scalar[string]{
			sqlType: stringType,
			store:   storeString,
			load: func(cur Cursor, t ast.SQLType) (string, error) {
				switch t {
				case ast.Char:
					return cur.Char()
				case ast.VarChar64:
					return cur.String64()
				}
				return cur.String()
			},
			verify: func(cur Cursor, v string, h Hints) error {
				if n := utf8.RuneCountInString(v); h.Size > 0 && n > h.Size {
					return outOfRange(cur, v, "string of %d characters longer than %d", n, h.Size)
				}
				return nil
			},
		},
		&scalar[[]byte]{
			sqlType: fixed(ast.Blob),
			store: func(v []byte, _ ast.SQLType, _ Hints) (any, error) {
				return append([]byte{}, v...), nil
			},
			load: func(cur Cursor, _ ast.SQLType) ([]byte, error) {
				b, err := cur.Bytes()
				if len(b) == 0 {
					// Empty and nil slices are both stored as an empty blob.
					return nil, err
				}
				return b, err
			},
		},
		&scalar[[16]byte]{
			sqlType: fixed(ast.Binary128),
			store: func(v [16]byte, _ ast.SQLType, _ Hints) (any, error) {
				return append([]byte{}, v[:]...), nil
			},
			load: func(cur Cursor, _ ast.SQLType) ([16]byte, error) {
				var out [16]byte
				b, err := cur.Binary128()
				if err == nil && len(b) != len(out) {
					err = outOfRange(cur, b, "need %d bytes, got %d", len(out), len(b))
				}
				copy(out[:], b)
				return out, err
			},
		},
		&scalar[[32]byte]{
			sqlType: fixed(ast.Binary256),
			store: func(v [32]byte, _ ast.SQLType, _ Hints) (any, error) {
				return append([]byte{}, v[:]...), nil
			},
			load: func(cur Cursor, _ ast.SQLType) ([32]byte, error) {
				var out [32]byte
				b, err := cur.Binary256()
				if err == nil && len(b) != len(out) {
					err = outOfRange(cur, b, "need %d bytes, got %d", len(out), len(b))
				}
				copy(out[:], b)
				return out, err
			},
		},
		&scalar[uuid.UUID]{
			sqlType: fixed(ast.Binary128),
			store: func(v uuid.UUID, _ ast.SQLType, _ Hints) (any, error) {
				return append([]byte{}, v[:]...), nil
			},
			load: func(cur Cursor, _ ast.SQLType) (uuid.UUID, error) {
				b, err := cur.Binary128()
				if err != nil {
					return uuid.Nil, err
				}
				u, err := uuid.FromBytes(b)
				if err != nil {
					return uuid.Nil, outOfRange(cur, b, "%v", err)
				}
				return u, nil
			},
		},
	}
}

func stringType(h Hints) ast.SQLType {
	switch {
	case h.Size == 1:
		return ast.Char
	case h.Size > 1 && h.Size <= 64:
		return ast.VarChar64
	}
	return ast.Text
}

func storeString(v string, t ast.SQLType, h Hints) (any, error) {
	n := utf8.RuneCountInString(v)
	switch {
	case t == ast.Char && n != 1:
		return nil, errors.Errorf("need exactly one character, got %d", n)
	case h.Size > 0 && n > h.Size:
		return nil, errors.Errorf("string of %d characters longer than %d", n, h.Size)
	}
	return v, nil
}

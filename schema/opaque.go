// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/canonical/sqlmodel/ast"
)

// OpaqueDef stores T as a MessagePack encoded BLOB. The value is not
// queryable by its contents.
type OpaqueDef[T any] struct{}

// Opaque returns the definition of T as an opaque value.
func Opaque[T any]() OpaqueDef[T] {
	return OpaqueDef[T]{}
}

func (OpaqueDef[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func (OpaqueDef[T]) build(*Registry) (Converter, error) {
	return &scalar[T]{
		sqlType: fixed(ast.Blob),
		store: func(v T, _ ast.SQLType, _ Hints) (any, error) {
			return msgpack.Marshal(v)
		},
		load: func(cur Cursor, _ ast.SQLType) (T, error) {
			var v T
			b, err := cur.Bytes()
			if err != nil {
				return v, err
			}
			if err := msgpack.Unmarshal(b, &v); err != nil {
				return v, outOfRange(cur, b, "cannot decode %T: %v", v, err)
			}
			return v, nil
		},
	}, nil
}

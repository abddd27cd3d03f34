// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/internal/typeinfo"
	"github.com/canonical/sqlmodel/sqlerr"
)

// FromTags returns the definition of S read from its "db" struct tags:
//
//	type User struct {
//		ID    int64    `db:"id,autoincr"`
//		Name  string   `db:"name,unique,size=64"`
//		Team  *int64   `db:"team_id,ref=teams.id,ondelete=set_null"`
//		Home  Address  `db:"home,embed"`
//		Tags  []string `db:"tags"`
//	}
//
// Untagged fields are not stored.
func FromTags[S any]() (*StructDef[S], error) {
	typ := reflect.TypeFor[S]()
	info, err := typeinfo.GetTypeInfo(typ)
	if err != nil {
		return nil, sqlerr.Structuref(typ.String(), "", err, "cannot read tags")
	}
	defs := make([]FieldDef[S], 0, len(info.Fields))
	for _, f := range info.Fields {
		hints, err := tagHints(f.Options)
		if err != nil {
			return nil, sqlerr.Structuref(typ.String(), f.Column, err, "invalid tag")
		}
		idx := f.Index
		defs = append(defs, FieldDef[S]{
			name:  f.Column,
			typ:   f.Type,
			hints: hints,
			addr:  func(s *S) any { return reflect.ValueOf(s).Elem().Field(idx).Addr().Interface() },
			get:   func(s *S) any { return reflect.ValueOf(s).Elem().Field(idx).Interface() },
			set:   func(s *S, v any) { reflect.ValueOf(s).Elem().Field(idx).Set(reflect.ValueOf(v)) },
		})
	}
	return Struct(defs...), nil
}

// TableName returns the default table name of T, its type name in plural
// snake case.
func TableName[T any]() string {
	return typeinfo.TableName(reflect.TypeFor[T]())
}

type taggedDef[S any] struct{}

// Tagged is like FromTags but defers tag errors until the definition is
// registered.
func Tagged[S any]() Definition {
	return taggedDef[S]{}
}

func (taggedDef[S]) Type() reflect.Type {
	return reflect.TypeFor[S]()
}

func (taggedDef[S]) build(r *Registry) (Converter, error) {
	def, err := FromTags[S]()
	if err != nil {
		return nil, err
	}
	return def.build(r)
}

func tagHints(opts typeinfo.Options) ([]Hint, error) {
	var hints []Hint
	if opts.PrimaryKey {
		hints = append(hints, PrimaryKey())
	}
	if opts.AutoIncrement {
		hints = append(hints, AutoIncrement())
	}
	if opts.Unique {
		hints = append(hints, Unique())
	}
	if opts.NotNull {
		hints = append(hints, NotNull())
	}
	if opts.Embed {
		hints = append(hints, Embedded())
	}
	if opts.Size > 0 {
		hints = append(hints, Size(opts.Size))
	}
	if opts.Default != "" {
		hints = append(hints, Default(parseLiteral(opts.Default)))
	}
	if opts.Ref != "" {
		table, column, _ := strings.Cut(opts.Ref, ".")
		var ref RefHint
		if column == "" {
			ref = References(table)
		} else {
			ref = References(table, column)
		}
		onDelete, err := parseAction(opts.OnDelete)
		if err != nil {
			return nil, err
		}
		onUpdate, err := parseAction(opts.OnUpdate)
		if err != nil {
			return nil, err
		}
		hints = append(hints, ref.OnDelete(onDelete).OnUpdate(onUpdate))
	} else if opts.OnDelete != "" || opts.OnUpdate != "" {
		return nil, errors.New("referential action without a reference")
	}
	return hints, nil
}

// parseLiteral reads a tag default: true, false, a number, or a string in
// single quotes. Anything else is taken as an unquoted string.
func parseLiteral(s string) ast.Expr {
	switch strings.ToLower(s) {
	case "true":
		return ast.Bool(true)
	case "false":
		return ast.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ast.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return ast.Float(f)
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return ast.String(strings.ReplaceAll(s[1:len(s)-1], "''", "'"))
	}
	return ast.String(s)
}

func parseAction(s string) (ast.Action, error) {
	switch strings.ReplaceAll(s, " ", "_") {
	case "":
		return ast.ActionDefault, nil
	case "restrict":
		return ast.Restrict, nil
	case "cascade":
		return ast.Cascade, nil
	case "set_null", "setnull":
		return ast.SetNull, nil
	case "no_action", "noaction":
		return ast.NoAction, nil
	}
	return ast.ActionDefault, errors.Errorf("unknown referential action %q", s)
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo will return the Info of a given struct type, generating and
// caching as required. Pointer types are dereferenced.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return &Info{}, fmt.Errorf("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns the tag information of a struct type.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}

	info := Info{
		TagToField: make(map[string]Field),
		Type:       typ,
		Table:      TableName(typ),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		// Fields without a "db" tag are not stored.
		tag := field.Tag.Get("db")
		if tag == "" {
			continue
		}
		if !field.IsExported() {
			return &Info{}, fmt.Errorf("field %q is not exported", field.Name)
		}
		column, opts, err := parseTag(tag)
		if err != nil {
			return &Info{}, fmt.Errorf("field %q: %w", field.Name, err)
		}
		if _, ok := info.TagToField[column]; ok {
			return &Info{}, fmt.Errorf("column %q tagged more than once", column)
		}
		f := Field{
			Type:    field.Type,
			Name:    field.Name,
			Index:   i,
			Column:  column,
			Options: opts,
		}
		info.Fields = append(info.Fields, f)
		info.TagToField[column] = f
	}
	if len(info.Fields) == 0 {
		return &Info{}, fmt.Errorf("no fields with a 'db' tag in %s", typ)
	}

	return &info, nil
}

// This expression should be kept in line with the identifiers accepted by
// package ast.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its column name and
// options.
func parseTag(tag string) (string, Options, error) {
	parts := strings.Split(tag, ",")

	name := parts[0]
	if len(name) == 0 {
		return "", Options{}, fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", Options{}, fmt.Errorf("invalid column name in 'db' tag")
	}

	var opts Options
	for _, part := range parts[1:] {
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if hasValue != optionTakesValue(key) {
			return "", Options{}, fmt.Errorf("unexpected tag value %q", part)
		}
		switch key {
		case "pk":
			opts.PrimaryKey = true
		case "autoincr":
			opts.AutoIncrement = true
		case "unique":
			opts.Unique = true
		case "notnull":
			opts.NotNull = true
		case "embed":
			opts.Embed = true
		case "size":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return "", Options{}, fmt.Errorf("invalid size %q in 'db' tag", value)
			}
			opts.Size = n
		case "default":
			opts.Default = value
		case "ref":
			if value == "" {
				return "", Options{}, fmt.Errorf("empty reference in 'db' tag")
			}
			opts.Ref = value
		case "ondelete":
			opts.OnDelete = strings.ToLower(value)
		case "onupdate":
			opts.OnUpdate = strings.ToLower(value)
		default:
			return "", Options{}, fmt.Errorf("unexpected tag value %q", part)
		}
	}
	return name, opts, nil
}

func optionTakesValue(key string) bool {
	switch key {
	case "size", "default", "ref", "ondelete", "onupdate":
		return true
	}
	return false
}

// TableName returns the default table name of a type: its name in plural
// snake case, e.g. "user_accounts" for UserAccount.
func TableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return ""
	}
	return inflect.Pluralize(inflect.Underscore(name))
}

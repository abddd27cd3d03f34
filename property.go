// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"reflect"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

// PropertyTable is the table properties are stored in.
const PropertyTable = "properties"

// AccessMode states whether other processes may write the database.
type AccessMode int

const (
	// SingleWriter means this process is the only writer, so property
	// values may be cached.
	SingleWriter AccessMode = iota
	// MultipleWriters means property values are read from the database
	// every time.
	MultipleWriters
)

func (m AccessMode) String() string {
	switch m {
	case SingleWriter:
		return "single-writer"
	case MultipleWriters:
		return "multiple-writers"
	}
	return "unknown"
}

// ParseAccessMode returns the access mode spelled s.
func ParseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "", "single-writer":
		return SingleWriter, nil
	case "multiple-writers":
		return MultipleWriters, nil
	}
	return 0, errors.Errorf("unknown access mode %q", s)
}

type propertyRow struct {
	Name  string
	Value []byte
}

var propertyDef = schema.Struct(
	schema.Field("name", func(r *propertyRow) *string { return &r.Name }, schema.PrimaryKey(), schema.Size(64)),
	schema.Field("value", func(r *propertyRow) *[]byte { return &r.Value }),
)

// propertyTable defines and creates the property table on first use.
func (s *Store) propertyTable(ctx context.Context) error {
	s.propsMu.Lock()
	defer s.propsMu.Unlock()
	if s.propsReady {
		return nil
	}
	if _, ok := s.catalog.Table(PropertyTable); !ok {
		if err := s.catalog.Registry().Register(propertyDef); err != nil {
			return err
		}
		if _, err := s.catalog.Define(PropertyTable, reflect.TypeFor[propertyRow]()); err != nil {
			return err
		}
	}
	if err := s.CreateTable(ctx, PropertyTable); err != nil {
		return err
	}
	s.propsReady = true
	return nil
}

// Property is a named value of type T persisted in a Store. Values are
// encoded with msgpack.
type Property[T any] struct {
	store *Store
	name  string
	def   T
	mode  AccessMode
	group singleflight.Group

	// loaded is called after a read of the database, before its value is
	// cached.
	loaded func()

	// mu guards cached, value and gen. gen counts the writes and resets
	// of the cache, so a read that raced with one is not cached.
	mu     sync.Mutex
	cached bool
	value  T
	gen    uint64
}

// NewProperty returns the property called name. Get returns def until the
// property is set.
func NewProperty[T any](s *Store, name string, def T, mode AccessMode) (*Property[T], error) {
	if name == "" || len(name) > 64 {
		return nil, errors.Errorf("invalid property name %q", name)
	}
	return &Property[T]{store: s, name: name, def: def, mode: mode}, nil
}

// Name returns the property name.
func (p *Property[T]) Name() string {
	return p.name
}

// Get returns the value of the property. In SingleWriter mode the value is
// cached after the first read.
func (p *Property[T]) Get(ctx context.Context) (T, error) {
	p.mu.Lock()
	if p.mode == SingleWriter && p.cached {
		v := p.value
		p.mu.Unlock()
		return v, nil
	}
	gen := p.gen
	p.mu.Unlock()

	// Reads started after a write or reset do not share an older read.
	key := p.name + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := v.(T)
	if p.mode == SingleWriter {
		p.mu.Lock()
		if p.gen == gen {
			p.cached, p.value = true, value
		}
		p.mu.Unlock()
	}
	return value, nil
}

func (p *Property[T]) load(ctx context.Context) (T, error) {
	var value T
	if err := p.store.propertyTable(ctx); err != nil {
		return value, err
	}
	var row propertyRow
	err := p.store.Get(ctx, PropertyTable, &row, p.name)
	if errors.Is(err, sqlerr.ErrEntryNotFound) {
		return p.def, nil
	} else if err != nil {
		return value, errors.Wrapf(err, "cannot read property %q", p.name)
	}
	if err := msgpack.Unmarshal(row.Value, &value); err != nil {
		return value, errors.Wrapf(err, "cannot decode property %q", p.name)
	}
	if p.loaded != nil {
		p.loaded()
	}
	return value, nil
}

// Set stores v as the value of the property.
func (p *Property[T]) Set(ctx context.Context, v T) error {
	if err := p.store.propertyTable(ctx); err != nil {
		return err
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "cannot encode property %q", p.name)
	}
	row := propertyRow{Name: p.name, Value: data}
	if err := p.store.Insert(ctx, PropertyTable, row, ast.ConflictReplace); err != nil {
		return errors.Wrapf(err, "cannot write property %q", p.name)
	}
	p.mu.Lock()
	p.gen++
	if p.mode == SingleWriter {
		p.cached, p.value = true, v
	}
	p.mu.Unlock()
	return nil
}

// Reset drops the cached value, so the next Get reads the database.
func (p *Property[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	p.gen++
	p.cached, p.value = false, zero
}

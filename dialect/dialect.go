// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dialect

import (
	"database/sql"
	"strings"
	"sync"

	"github.com/canonical/sqlmodel/ast"
)

// Interceptor renders n itself and returns true, or returns false to leave
// n to the dialect it extends.
type Interceptor func(p *Printer, n ast.Node) (bool, error)

// Dialect renders syntax trees as SQL text for one database. Every dialect
// except Base extends another one: it intercepts the node kinds it spells
// differently and delegates everything else.
type Dialect struct {
	name     string
	altnames []string
	parent   *Dialect

	intercept   Interceptor
	placeholder func(n int) string
	typeName    func(t ast.SQLType) (string, bool)
	defaultUnit string
	returning   bool
}

// Option configures a dialect created with New.
type Option func(d *Dialect)

// WithAltNames adds names the dialect is registered under.
func WithAltNames(names ...string) Option {
	return func(d *Dialect) { d.altnames = append(d.altnames, names...) }
}

// WithInterceptor sets the interceptor consulted before the parent dialect.
func WithInterceptor(i Interceptor) Option {
	return func(d *Dialect) { d.intercept = i }
}

// WithPlaceholder sets the spelling of the n'th (1-based) placeholder.
func WithPlaceholder(f func(n int) string) Option {
	return func(d *Dialect) { d.placeholder = f }
}

// WithTypeNames overrides the spelling of SQL types. Types absent from
// names are spelled by the parent dialect.
func WithTypeNames(names map[ast.SQLType]string) Option {
	return func(d *Dialect) {
		d.typeName = func(t ast.SQLType) (string, bool) {
			s, ok := names[t]
			return s, ok
		}
	}
}

// WithDefaultUnit sets the schema the database itself names its default
// namespace.
func WithDefaultUnit(name string) Option {
	return func(d *Dialect) { d.defaultUnit = name }
}

// WithReturning marks a database whose driver reports generated keys only
// through a RETURNING clause.
func WithReturning() Option {
	return func(d *Dialect) { d.returning = true }
}

// New returns a dialect called name extending parent. A nil parent extends
// Base.
func New(name string, parent *Dialect, opts ...Option) *Dialect {
	if parent == nil {
		parent = Base
	}
	d := &Dialect{name: name, parent: parent}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the dialect name.
func (d *Dialect) Name() string {
	return d.name
}

// Parent returns the dialect d extends, or nil for Base.
func (d *Dialect) Parent() *Dialect {
	return d.parent
}

// DefaultUnit returns the unit the database resolves unqualified tables in,
// or ast.DefaultUnit when the dialect does not name one.
func (d *Dialect) DefaultUnit() ast.Unit {
	for ; d != nil; d = d.parent {
		if d.defaultUnit != "" {
			if u, err := ast.NewUnit(d.defaultUnit); err == nil {
				return u
			}
		}
	}
	return ast.DefaultUnit
}

// Returning reports whether generated keys must be read with a RETURNING
// clause.
func (d *Dialect) Returning() bool {
	for ; d != nil; d = d.parent {
		if d.returning {
			return true
		}
	}
	return false
}

// Unparse renders n as SQL text. Implicit tables are qualified by unit.
func (d *Dialect) Unparse(n ast.Node, unit ast.Unit) (string, error) {
	s, _, err := d.Render(n, unit)
	return s, err
}

// Render is like Unparse and also returns the number of placeholders
// written.
func (d *Dialect) Render(n ast.Node, unit ast.Unit) (string, int, error) {
	p := &Printer{d: d, unit: unit}
	if err := p.Node(n); err != nil {
		return "", 0, err
	}
	return p.buf.String(), p.params, nil
}

// Base renders the shared template every other dialect extends.
var Base = &Dialect{name: "base"}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Dialect{}
)

// Register makes d available to For under its name and alternative names.
// A later registration under the same name replaces the earlier one.
func Register(d *Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(d.name)] = d
	for _, alt := range d.altnames {
		registry[strings.ToLower(alt)] = d
	}
}

// For returns the dialect registered for a driver or dialect name. An empty
// name selects the dialect of the first registered database/sql driver
// that has one. Unknown names return Base.
func For(name string) *Dialect {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if name == "" {
		for _, driver := range sql.Drivers() {
			if d, ok := registry[strings.ToLower(driver)]; ok {
				return d
			}
		}
		return Base
	}
	if d, ok := registry[strings.ToLower(name)]; ok {
		return d
	}
	return Base
}

// Lookup is like For but reports whether name is registered.
func Lookup(name string) (*Dialect, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[strings.ToLower(name)]
	return d, ok
}

func init() {
	Register(Base)
	Register(SQLite)
	Register(H2)
	Register(Postgres)
	Register(MySQL)
}

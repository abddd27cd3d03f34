// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/internal/typeinfo"
	"github.com/canonical/sqlmodel/sqlerr"
)

// Catalog is the set of tables an application stores its types in. Tables
// reference each other by name.
type Catalog struct {
	reg *Registry

	mu     sync.RWMutex
	tables map[string]*Table
	byType map[reflect.Type]*Table
	names  map[string]bool
	order  []*Table
}

// NewCatalog returns an empty catalog resolving types with reg.
func NewCatalog(reg *Registry) *Catalog {
	return &Catalog{
		reg:    reg,
		tables: map[string]*Table{},
		byType: map[reflect.Type]*Table{},
		names:  map[string]bool{},
	}
}

// Registry returns the registry the catalog resolves types with.
func (c *Catalog) Registry() *Registry {
	return c.reg
}

// Define adds the table called name storing values of type t. An empty name
// uses the plural snake case of the type name.
func (c *Catalog) Define(name string, t reflect.Type) (*Table, error) {
	if name == "" {
		name = typeinfo.TableName(t)
	}
	conv, err := c.reg.Lookup(t)
	if err != nil {
		return nil, err
	}
	table, err := NewTable(name, conv)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	names := []string{table.name.Text()}
	for _, d := range table.deps {
		names = append(names, d.name.Text())
	}
	for _, n := range names {
		if c.names[n] {
			return nil, sqlerr.Structuref(t.String(), "", nil, "table %q defined more than once", n)
		}
	}
	for _, n := range names {
		c.names[n] = true
	}
	c.tables[table.name.Text()] = table
	if _, ok := c.byType[t]; !ok {
		c.byType[t] = table
	}
	c.order = append(c.order, table)
	return table, nil
}

// Define is like Catalog.Define for the type parameter.
func Define[S any](c *Catalog, name string) (*Table, error) {
	return c.Define(name, reflect.TypeFor[S]())
}

// Table returns the table called name.
func (c *Catalog) Table(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// TableOf returns the first table defined for t.
func (c *Catalog) TableOf(t reflect.Type) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, ok := c.byType[t]
	return table, ok
}

// Tables returns the tables in definition order.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Table(nil), c.order...)
}

// DependentTables returns the dependent tables of t.
func (c *Catalog) DependentTables(t *Table) []*DependentTable {
	return t.Dependents()
}

// resolved is a foreign key with its target found in the catalog.
type resolved struct {
	fk     foreignKey
	target *Table
	cols   []ast.Identifier
}

func (c *Catalog) resolve(owner string, fks []foreignKey) ([]resolved, error) {
	out := make([]resolved, 0, len(fks))
	for _, fk := range fks {
		field := fk.columns[0].Text()
		target, ok := c.tables[fk.ref.Table.Text()]
		if !ok {
			return nil, &sqlerr.StructureError{
				Type:  owner,
				Field: field,
				Err:   errors.Wrapf(sqlerr.ErrMissingTable, "table %q", fk.ref.Table.Text()),
			}
		}
		cols := fk.ref.Columns
		if len(cols) == 0 {
			cols = target.PrimaryKey()
			if len(cols) == 0 {
				return nil, sqlerr.Structuref(owner, field, errNoKey, "table %q", target.name.Text())
			}
		}
		if len(cols) != len(fk.columns) {
			return nil, sqlerr.Structuref(owner, field, nil,
				"%d columns reference %d columns of %q", len(fk.columns), len(cols), target.name.Text())
		}
		for _, col := range cols {
			if !containsName(target.Columns(), col) {
				return nil, sqlerr.Structuref(owner, field, nil, "table %q has no column %q", target.name.Text(), col.Text())
			}
		}
		out = append(out, resolved{fk: fk, target: target, cols: cols})
	}
	return out, nil
}

// targets returns the tables t and its dependent tables reference.
func (c *Catalog) targets(t *Table) ([]resolved, error) {
	refs, err := c.resolve(t.conv.typ.String(), t.fks)
	if err != nil {
		return nil, err
	}
	for _, d := range t.deps {
		more, err := c.resolve(t.conv.typ.String(), d.fks)
		if err != nil {
			return nil, err
		}
		refs = append(refs, more...)
	}
	return refs, nil
}

// RequiredTables returns the tables that must exist before t can be
// created, referenced tables before the tables referencing them. It fails
// when a reference names a table missing from the catalog.
func (c *Catalog) RequiredTables(t *Table) ([]*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requiredTables(t)
}

func (c *Catalog) requiredTables(t *Table) ([]*Table, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := map[*Table]int{}
	var order []*Table
	var visit func(x *Table) error
	visit = func(x *Table) error {
		switch state[x] {
		case done:
			return nil
		case visiting:
			return sqlerr.Structuref(x.conv.typ.String(), "", nil, "reference cycle through table %q", x.name.Text())
		}
		state[x] = visiting
		refs, err := c.targets(x)
		if err != nil {
			return err
		}
		for _, r := range refs {
			if r.target == x {
				continue
			}
			if err := visit(r.target); err != nil {
				return err
			}
		}
		state[x] = done
		if x != t {
			order = append(order, x)
		}
		return nil
	}
	if err := visit(t); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateStatements returns the statements creating t in three phases: the
// tables it requires, then t itself, then its dependent tables. Each
// required table is followed by its own dependent tables.
func (c *Catalog) CreateStatements(t *Table) ([]ast.CreateTable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	required, err := c.requiredTables(t)
	if err != nil {
		return nil, err
	}
	var stmts []ast.CreateTable
	for _, x := range append(required, t) {
		more, err := c.createStatements(x)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, more...)
	}
	return stmts, nil
}

func (c *Catalog) createStatements(t *Table) ([]ast.CreateTable, error) {
	typ := t.conv.typ.String()
	refs, err := c.resolve(typ, t.fks)
	if err != nil {
		return nil, err
	}
	stmts := []ast.CreateTable{t.createTable(constraints(t.name, refs))}
	for _, d := range t.deps {
		refs, err := c.resolve(typ, d.fks)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, d.createTable(constraints(d.name, refs)))
	}
	return stmts, nil
}

// DropStatements returns the statements dropping t, dependent tables first.
func (c *Catalog) DropStatements(t *Table) []ast.DropTable {
	var stmts []ast.DropTable
	for _, d := range t.deps {
		stmts = append(stmts, d.DropTable())
	}
	return append(stmts, t.DropTable())
}

func constraints(table ast.Identifier, refs []resolved) []ast.TableConstraint {
	var out []ast.TableConstraint
	for _, r := range refs {
		out = append(out, ast.ForeignKeyConstraint{
			Name:    constraintName(table, r.fk.columns[0]),
			Columns: r.fk.columns,
			Reference: ast.Reference{
				Table:    r.target.Ref(),
				Columns:  r.cols,
				OnDelete: r.fk.ref.OnDelete,
				OnUpdate: r.fk.ref.OnUpdate,
			},
		})
	}
	return out
}

func containsName(ids []ast.Identifier, id ast.Identifier) bool {
	for _, x := range ids {
		if x.Text() == id.Text() {
			return true
		}
	}
	return false
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/dialect"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

// Store stores the tables of a catalog in one database. The dialect and
// unit are fixed when the Store is created.
type Store struct {
	db      *sql.DB
	dialect *dialect.Dialect
	unit    ast.Unit
	catalog *schema.Catalog
	logger  *slog.Logger
	stmts   *statementCache

	// mu guards created and schemas.
	mu      sync.Mutex
	created map[string]bool
	schemas map[string]bool

	propsMu    sync.Mutex
	propsReady bool
}

type options struct {
	driverName string
	dialect    *dialect.Dialect
	unit       *ast.Unit
	registry   *schema.Registry
	catalog    *schema.Catalog
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(o *options)

// WithDialect sets the dialect statements are rendered in. By default it is
// chosen by driver name.
func WithDialect(d *dialect.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithUnit sets the schema tables are created in. By default tables go in
// the dialect's default schema.
func WithUnit(u ast.Unit) Option {
	return func(o *options) { o.unit = &u }
}

// WithRegistry sets the converter registry of a new catalog.
func WithRegistry(r *schema.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithCatalog sets the catalog of tables the Store uses.
func WithCatalog(c *schema.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithLogger sets the logger statements are logged to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open opens a database with database/sql and returns a Store on it. The
// dialect defaults to the one registered for driverName.
func Open(driverName, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s database", driverName)
	}
	opts = append([]Option{func(o *options) { o.driverName = driverName }}, opts...)
	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a Store on db.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("cannot create store: nil database")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialect == nil {
		o.dialect = dialect.For(o.driverName)
	}
	if o.unit == nil {
		u := o.dialect.DefaultUnit()
		o.unit = &u
	}
	if o.unit.Name.IsZero() {
		return nil, errors.New("cannot create store: unit has no name")
	}
	switch {
	case o.catalog == nil && o.registry == nil:
		o.catalog = schema.NewCatalog(schema.NewRegistry())
	case o.catalog == nil:
		o.catalog = schema.NewCatalog(o.registry)
	case o.registry != nil && o.registry != o.catalog.Registry():
		return nil, errors.New("cannot create store: registry differs from the catalog's")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Store{
		db:      db,
		dialect: o.dialect,
		unit:    *o.unit,
		catalog: o.catalog,
		logger:  o.logger.With("dialect", o.dialect.Name(), "unit", o.unit.Name.Text()),
		stmts:   newStatementCache(),
		created: map[string]bool{},
		schemas: map[string]bool{},
	}, nil
}

// PlainDB returns the underlying database object.
func (s *Store) PlainDB() *sql.DB {
	return s.db
}

// Dialect returns the dialect statements are rendered in.
func (s *Store) Dialect() *dialect.Dialect {
	return s.dialect
}

// Unit returns the schema tables are stored in.
func (s *Store) Unit() ast.Unit {
	return s.unit
}

// Catalog returns the tables the Store knows.
func (s *Store) Catalog() *schema.Catalog {
	return s.catalog
}

// Close closes the prepared statements and the database.
func (s *Store) Close() error {
	err := s.stmts.close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Store) session() session {
	return session{store: s}
}

func (s *Store) table(name string) (*schema.Table, error) {
	t, ok := s.catalog.Table(name)
	if !ok {
		return nil, errors.Wrapf(sqlerr.ErrMissingTable, "table %q", name)
	}
	return t, nil
}

// CreateSchema creates the Store's unit. The dialect's default schema
// always exists and is left alone.
func (s *Store) CreateSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSchema(ctx)
}

func (s *Store) createSchema(ctx context.Context) error {
	name := s.unit.Name.Text()
	if name == s.dialect.DefaultUnit().Name.Text() || s.schemas[name] {
		return nil
	}
	stmt := ast.CreateSchema{Schema: s.unit.Name, IfNotExists: true}
	if _, err := s.session().execDDL(ctx, stmt); err != nil {
		return errors.Wrapf(err, "cannot create schema %q", name)
	}
	s.schemas[name] = true
	return nil
}

// CreateTable creates the named table: first the tables it references,
// then the table itself, then the dependent tables of its collections.
// Tables this Store already created are skipped.
func (s *Store) CreateTable(ctx context.Context, name string) error {
	t, err := s.table(name)
	if err != nil {
		return err
	}
	stmts, err := s.catalog.CreateStatements(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createSchema(ctx); err != nil {
		return err
	}
	for _, stmt := range stmts {
		target := stmt.Table.Table.Text()
		if s.created[target] {
			continue
		}
		if _, err := s.session().execDDL(ctx, stmt); err != nil {
			return errors.Wrapf(err, "cannot create table %q", target)
		}
		s.created[target] = true
	}
	return nil
}

// DropTable drops the named table and its dependent tables.
func (s *Store) DropTable(ctx context.Context, name string) error {
	t, err := s.table(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range s.catalog.DropStatements(t) {
		target := stmt.Table.Table.Text()
		if _, err := s.session().execDDL(ctx, stmt); err != nil {
			return errors.Wrapf(err, "cannot drop table %q", target)
		}
		delete(s.created, target)
	}
	return nil
}

// Insert stores v, a value of or pointer to the named table's type, and
// the elements of its collections. A zero auto-increment key is assigned
// by the database and written back when v is a pointer.
func (s *Store) Insert(ctx context.Context, table string, v any, policy ast.ConflictPolicy) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	if len(t.Dependents()) == 0 {
		return s.session().insert(ctx, t, v, policy)
	}
	return s.WithTx(ctx, nil, func(tx *TX) error {
		return tx.session().insert(ctx, t, v, policy)
	})
}

// Get reads the row of the named table with the given key into out, a
// pointer to the table's type. It returns an error matching
// sqlerr.ErrEntryNotFound if there is no such row.
func (s *Store) Get(ctx context.Context, table string, out any, key ...any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	return s.session().get(ctx, t, out, key)
}

// Select reads the rows of the named table matching where into out, a
// pointer to a slice of the table's type or of pointers to it. The
// placeholders of where take args. A nil where selects every row.
func (s *Store) Select(ctx context.Context, table string, where ast.Expr, args []any, out any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	return s.session().selectAll(ctx, t, where, args, out)
}

// Update replaces the row of the named table with v's key, and the
// elements of its collections. It returns an error matching
// sqlerr.ErrNotUpdated unless exactly one row was updated.
func (s *Store) Update(ctx context.Context, table string, v any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	if len(t.Dependents()) == 0 {
		return s.session().update(ctx, t, v)
	}
	return s.WithTx(ctx, nil, func(tx *TX) error {
		return tx.session().update(ctx, t, v)
	})
}

// Delete removes the row of the named table with the given key and the
// elements of its collections. It returns an error matching
// sqlerr.ErrNotDeleted unless exactly one row was deleted.
func (s *Store) Delete(ctx context.Context, table string, key ...any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	if len(t.Dependents()) == 0 {
		return s.session().delete(ctx, t, key)
	}
	return s.WithTx(ctx, nil, func(tx *TX) error {
		return tx.session().delete(ctx, t, key)
	})
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/sqlerr"
)

// OwnerPrefix prefixes the columns of a dependent table that reference the
// owning row.
var OwnerPrefix = ast.MustPrefix("owner")

// Table is the table a struct type is stored in. Collection fields of the
// struct are stored in dependent tables.
type Table struct {
	name    ast.Identifier
	conv    *composite
	decls   []ast.ColumnDecl
	key     []int
	autoInc *field
	fks     []foreignKey
	deps    []*DependentTable
}

// NewTable returns the table called name storing values of the composite
// converter conv.
func NewTable(name string, conv Converter) (*Table, error) {
	id, err := ast.Table(name)
	if err != nil {
		return nil, err
	}
	c, ok := conv.(*composite)
	if !ok {
		return nil, sqlerr.Structuref(conv.GoType().String(), "", nil, "cannot store %s value as a table", conv.Kind())
	}
	t := &Table{name: id, conv: c}
	typ := c.typ.String()

	if t.decls, err = c.Declarations(ast.Identifier{}, Hints{}); err != nil {
		return nil, err
	}
	var autoInc []int
	for i, d := range t.decls {
		if d.PrimaryKey {
			t.key = append(t.key, i)
		}
		if d.AutoIncrement {
			autoInc = append(autoInc, i)
		}
	}
	switch {
	case len(autoInc) > 1:
		return nil, sqlerr.Structuref(typ, "", nil, "more than one auto-increment column")
	case len(autoInc) == 1 && len(t.key) > 1:
		return nil, sqlerr.Structuref(typ, t.decls[autoInc[0]].Name.Text(), nil, "auto-increment column in a composite primary key")
	case len(autoInc) == 1:
		col := t.decls[autoInc[0]].Name.Text()
		for i := range c.fields {
			if c.fields[i].column.Text() == col && c.fields[i].conv.Kind() == Scalar {
				t.autoInc = &c.fields[i]
			}
		}
		if t.autoInc == nil {
			return nil, sqlerr.Structuref(typ, col, nil, "auto-increment field must not be embedded")
		}
	}

	if t.fks, err = c.foreignKeys(ast.Identifier{}); err != nil {
		return nil, err
	}
	colls, err := c.collections(ast.Identifier{})
	if err != nil {
		return nil, err
	}
	for _, cf := range colls {
		if len(t.key) == 0 {
			return nil, sqlerr.Structuref(typ, cf.column.Text(), nil, "collection field needs a primary key on its owner")
		}
		dep, err := newDependentTable(t, cf)
		if err != nil {
			return nil, err
		}
		t.deps = append(t.deps, dep)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() ast.Identifier { return t.name }

// Ref returns the table qualified by the unit it is rendered in.
func (t *Table) Ref() ast.QualifiedTable { return ast.ImplicitTable(t.name) }

// Type returns the Go type stored in the table.
func (t *Table) Type() reflect.Type { return t.conv.typ }

// Declarations returns the declarations of the table's own columns.
func (t *Table) Declarations() []ast.ColumnDecl {
	return append([]ast.ColumnDecl(nil), t.decls...)
}

// Columns returns the names of the table's own columns.
func (t *Table) Columns() []ast.Identifier {
	return declNames(t.decls)
}

// PrimaryKey returns the key columns.
func (t *Table) PrimaryKey() []ast.Identifier {
	key := make([]ast.Identifier, len(t.key))
	for i, k := range t.key {
		key[i] = t.decls[k].Name
	}
	return key
}

// AutoIncrement returns the auto-increment key column, if any.
func (t *Table) AutoIncrement() (ast.Identifier, bool) {
	if t.autoInc == nil {
		return ast.Identifier{}, false
	}
	return t.autoInc.column, true
}

// Dependents returns the dependent tables of the table's collection fields.
func (t *Table) Dependents() []*DependentTable {
	return append([]*DependentTable(nil), t.deps...)
}

func (t *Table) createTable(fks []ast.TableConstraint) ast.CreateTable {
	decls := t.Declarations()
	var constraints []ast.TableConstraint
	if len(t.key) > 1 {
		for _, k := range t.key {
			decls[k].PrimaryKey = false
			decls[k].NotNull = true
		}
		constraints = append(constraints, ast.PrimaryKeyConstraint{Columns: t.PrimaryKey()})
	}
	return ast.CreateTable{
		Table:       t.Ref(),
		IfNotExists: true,
		Columns:     decls,
		Constraints: append(constraints, fks...),
	}
}

// DropTable returns the statement dropping the table.
func (t *Table) DropTable() ast.DropTable {
	return ast.DropTable{Table: t.Ref(), IfExists: true}
}

// Row returns the parameter values of v, which is a value of or pointer to
// the table's type, in column order.
func (t *Table) Row(v any) (Row, error) {
	rows, err := t.conv.Collect(v, Hints{}, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 || len(rows[0]) != len(t.decls) {
		return nil, sqlerr.Internalf("table %s collected %d rows of width %d", t.name, len(rows), rows.Width())
	}
	return rows[0], nil
}

// OmitsAutoIncrement reports whether an insert of row leaves the key to
// the database, which it does for a zero auto-increment value.
func (t *Table) OmitsAutoIncrement(row Row) bool {
	if t.autoInc == nil {
		return false
	}
	i := t.key[0]
	n, ok := row[i].(int64)
	return ok && n == 0
}

// Insert returns an insert of one row of placeholders. With omitAutoInc the
// auto-increment column is left out; InsertArgs must then be called with
// the same flag.
func (t *Table) Insert(conflict ast.ConflictPolicy, omitAutoInc bool) ast.Insert {
	var cols []ast.Identifier
	var row []ast.Expr
	for _, d := range t.decls {
		if omitAutoInc && d.AutoIncrement {
			continue
		}
		cols = append(cols, d.Name)
		row = append(row, ast.P(d.Type.Domain()))
	}
	return ast.Insert{
		Table:          t.Ref(),
		Columns:        cols,
		Rows:           [][]ast.Expr{row},
		Conflict:       conflict,
		ConflictTarget: t.PrimaryKey(),
	}
}

// InsertArgs returns the values of row matching Insert.
func (t *Table) InsertArgs(row Row, omitAutoInc bool) []any {
	args := make([]any, 0, len(row))
	for i, v := range row {
		if omitAutoInc && t.decls[i].AutoIncrement {
			continue
		}
		args = append(args, v)
	}
	return args
}

// SetAutoIncrement stores a key assigned by the database in the value sp
// points to.
func (t *Table) SetAutoIncrement(sp any, id int64) error {
	if t.autoInc == nil {
		return sqlerr.Internalf("table %s has no auto-increment column", t.name)
	}
	if _, ok := t.conv.ptr(sp); !ok || reflect.TypeOf(sp).Kind() != reflect.Pointer {
		return mismatch(reflect.PointerTo(t.conv.typ), sp)
	}
	ft := reflect.TypeOf(t.autoInc.get(sp))
	t.autoInc.set(sp, reflect.ValueOf(id).Convert(ft).Interface())
	return nil
}

// KeyArgs returns the key values of v in key column order.
func (t *Table) KeyArgs(v any) ([]any, error) {
	row, err := t.Row(v)
	if err != nil {
		return nil, err
	}
	return t.keyArgs(row), nil
}

// KeyValues returns the parameters matching KeyCondition for a key given
// as one value per key field. Each value is stored the way its field is,
// so a uuid.UUID key becomes its 16 bytes. Integers, floats and strings of
// another type of the same kind, such as untyped constants, are converted
// to the field's type when they fit.
func (t *Table) KeyValues(key ...any) ([]any, error) {
	fields := t.conv.keyFields(false)
	if len(fields) == 0 {
		return nil, sqlerr.Structuref(t.conv.typ.String(), "", nil, "table %s has no primary key", t.name)
	}
	if len(key) != len(fields) {
		return nil, errors.Errorf("table %s has %d key fields, got %d values", t.name, len(fields), len(key))
	}
	var rows RowSet
	for i, f := range fields {
		var err error
		rows, err = f.conv.Collect(keyValue(f.conv.GoType(), key[i]), f.hints, rows)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid key of table %s", t.name)
		}
	}
	if len(rows) != 1 || len(rows[0]) != len(t.key) {
		return nil, sqlerr.Internalf("table %s collected %d key rows of width %d", t.name, len(rows), rows.Width())
	}
	return []any(rows[0]), nil
}

// keyValue returns v converted to want when both are integers, floats or
// strings and the value fits. Any other v is returned unchanged.
func keyValue(want reflect.Type, v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() == want || kindClass(rv.Kind()) == 0 || kindClass(rv.Kind()) != kindClass(want.Kind()) {
		return v
	}
	out := reflect.New(want).Elem()
	switch kindClass(want.Kind()) {
	case signedClass:
		if out.OverflowInt(rv.Int()) {
			return v
		}
	case unsignedClass:
		if out.OverflowUint(rv.Uint()) {
			return v
		}
	case floatClass:
		if out.OverflowFloat(rv.Float()) {
			return v
		}
	}
	out.Set(rv.Convert(want))
	return out.Interface()
}

const (
	signedClass = iota + 1
	unsignedClass
	floatClass
	stringClass
)

func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedClass
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return unsignedClass
	case reflect.Float32, reflect.Float64:
		return floatClass
	case reflect.String:
		return stringClass
	}
	return 0
}

func (t *Table) keyArgs(row Row) []any {
	args := make([]any, len(t.key))
	for i, k := range t.key {
		args[i] = row[k]
	}
	return args
}

// KeyCondition returns the condition matching a row by its key, with one
// placeholder per key column.
func (t *Table) KeyCondition() (ast.Expr, error) {
	if len(t.key) == 0 {
		return nil, sqlerr.Structuref(t.conv.typ.String(), "", nil, "table %s has no primary key", t.name)
	}
	return keyCondition(t.decls, t.key), nil
}

func keyCondition(decls []ast.ColumnDecl, key []int) ast.Expr {
	conds := make([]ast.Expr, len(key))
	for i, k := range key {
		d := decls[k]
		conds[i] = ast.Eq(ast.Col(d.Name, d.Type.Domain()), ast.P(d.Type.Domain()))
	}
	return ast.And(conds[0], conds[1:]...)
}

// Select returns a query of every own column of the rows matching where,
// which may be nil.
func (t *Table) Select(where ast.Expr, order ...ast.OrderTerm) ast.Select {
	return ast.Select{
		Columns: resultColumns(t.decls),
		From:    []ast.Source{ast.TableSource{Table: t.Ref()}},
		Where:   where,
		OrderBy: order,
	}
}

// SelectByKey returns a query of the row matching a key.
func (t *Table) SelectByKey() (ast.Select, error) {
	where, err := t.KeyCondition()
	if err != nil {
		return ast.Select{}, err
	}
	return t.Select(where), nil
}

// Update returns an update of every non-key column of the row matching a
// key. UpdateArgs returns its parameters.
func (t *Table) Update() (ast.Update, error) {
	where, err := t.KeyCondition()
	if err != nil {
		return ast.Update{}, err
	}
	var set []ast.Assignment
	for _, d := range t.decls {
		if !d.PrimaryKey {
			set = append(set, ast.Assignment{Column: d.Name, Value: ast.P(d.Type.Domain())})
		}
	}
	if len(set) == 0 {
		return ast.Update{}, sqlerr.Structuref(t.conv.typ.String(), "", nil, "table %s has only key columns", t.name)
	}
	return ast.Update{Table: t.Ref(), Set: set, Where: where}, nil
}

// UpdateArgs returns the parameters of Update for v.
func (t *Table) UpdateArgs(v any) ([]any, error) {
	row, err := t.Row(v)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(row))
	for i, d := range t.decls {
		if !d.PrimaryKey {
			args = append(args, row[i])
		}
	}
	return append(args, t.keyArgs(row)...), nil
}

// DeleteByKey returns a delete of the row matching a key.
func (t *Table) DeleteByKey() (ast.Delete, error) {
	where, err := t.KeyCondition()
	if err != nil {
		return ast.Delete{}, err
	}
	return ast.Delete{Table: t.Ref(), Where: where}, nil
}

// Recover reads one row of the table's own columns and returns a pointer
// to the new value. Collection fields are left empty.
func (t *Table) Recover(cur Cursor) (any, error) {
	return t.conv.recoverPtr(cur)
}

// Deref returns the value sp points to.
func (t *Table) Deref(sp any) any {
	return t.conv.deref(sp)
}

// DependentTable stores the elements of one collection field. Its rows
// reference the owning row, followed by the element position and the
// element columns.
type DependentTable struct {
	name   ast.Identifier
	parent *Table
	field  collectionField
	owner  []ast.ColumnDecl
	decls  []ast.ColumnDecl
	fks    []foreignKey
}

func newDependentTable(parent *Table, cf collectionField) (*DependentTable, error) {
	typ := parent.conv.typ.String()
	name, err := ast.Prefixed(parent.name.As(ast.PrefixKind), cf.column.As(ast.TableKind))
	if err != nil {
		return nil, &sqlerr.StructureError{Type: typ, Field: cf.column.Text(), Err: err}
	}
	d := &DependentTable{name: name, parent: parent, field: cf}
	for _, k := range parent.key {
		pk := parent.decls[k]
		col, err := ast.Prefixed(OwnerPrefix, pk.Name)
		if err != nil {
			return nil, &sqlerr.StructureError{Type: typ, Field: cf.column.Text(), Err: err}
		}
		d.owner = append(d.owner, ast.ColumnDecl{Name: col, Type: pk.Type, NotNull: true})
	}
	elems, err := cf.conv.Declarations(cf.column, cf.hints)
	if err != nil {
		return nil, annotate(err, parent.conv.typ, cf.column.Text())
	}
	for i := range elems {
		elems[i].PrimaryKey, elems[i].AutoIncrement = false, false
	}
	d.decls = append(append([]ast.ColumnDecl(nil), d.owner...), elems...)
	seen := map[string]bool{}
	for _, decl := range d.decls {
		if seen[decl.Name.Text()] {
			return nil, sqlerr.Structuref(typ, cf.column.Text(), nil, "column %q declared more than once in %s", decl.Name.Text(), name)
		}
		seen[decl.Name.Text()] = true
	}
	if elem, ok := cf.conv.elem.(*composite); ok {
		if d.fks, err = elem.foreignKeys(ast.Identifier{}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Name returns the table name, the owner's table name and the field's
// column name joined by an underscore.
func (d *DependentTable) Name() ast.Identifier { return d.name }

// Ref returns the table qualified by the unit it is rendered in.
func (d *DependentTable) Ref() ast.QualifiedTable { return ast.ImplicitTable(d.name) }

// Parent returns the owning table.
func (d *DependentTable) Parent() *Table { return d.parent }

// Declarations returns the column declarations: owner key, ordinal and
// element columns.
func (d *DependentTable) Declarations() []ast.ColumnDecl {
	return append([]ast.ColumnDecl(nil), d.decls...)
}

// Columns returns the column names.
func (d *DependentTable) Columns() []ast.Identifier {
	return declNames(d.decls)
}

// OwnerColumns returns the columns referencing the owning row.
func (d *DependentTable) OwnerColumns() []ast.Identifier {
	return declNames(d.owner)
}

func (d *DependentTable) createTable(fks []ast.TableConstraint) ast.CreateTable {
	owner := d.OwnerColumns()
	key := append(append([]ast.Identifier(nil), owner...), OrdinalColumn)
	constraints := []ast.TableConstraint{
		ast.PrimaryKeyConstraint{Columns: key},
		ast.ForeignKeyConstraint{
			Name:    constraintName(d.name, owner[0]),
			Columns: owner,
			Reference: ast.Reference{
				Table:    d.parent.Ref(),
				Columns:  d.parent.PrimaryKey(),
				OnDelete: ast.Cascade,
			},
		},
	}
	return ast.CreateTable{
		Table:       d.Ref(),
		IfNotExists: true,
		Columns:     d.Declarations(),
		Constraints: append(constraints, fks...),
	}
}

// DropTable returns the statement dropping the table.
func (d *DependentTable) DropTable() ast.DropTable {
	return ast.DropTable{Table: d.Ref(), IfExists: true}
}

// Insert returns an insert of one row of placeholders.
func (d *DependentTable) Insert() ast.Insert {
	row := make([]ast.Expr, len(d.decls))
	for i, decl := range d.decls {
		row[i] = ast.P(decl.Type.Domain())
	}
	return ast.Insert{Table: d.Ref(), Columns: d.Columns(), Rows: [][]ast.Expr{row}}
}

// Rows returns one parameter row per element of the collection in the
// value sp points to, each starting with key, the owner's key values.
func (d *DependentTable) Rows(sp any, key []any) (RowSet, error) {
	if len(key) != len(d.owner) {
		return nil, sqlerr.Internalf("%s needs %d key values, got %d", d.name, len(d.owner), len(key))
	}
	rows, err := d.field.conv.Collect(d.field.get(sp), d.field.hints, AppendAll(nil, key...))
	if err != nil {
		return nil, annotate(err, d.parent.conv.typ, d.field.column.Text())
	}
	return rows, nil
}

func (d *DependentTable) ownerCondition() ast.Expr {
	key := make([]int, len(d.owner))
	for i := range key {
		key[i] = i
	}
	return keyCondition(d.owner, key)
}

// SelectByOwner returns a query of the ordinal and element columns of the
// rows of one owner, in element order.
func (d *DependentTable) SelectByOwner() ast.Select {
	return ast.Select{
		Columns: resultColumns(d.decls[len(d.owner):]),
		From:    []ast.Source{ast.TableSource{Table: d.Ref()}},
		Where:   d.ownerCondition(),
		OrderBy: []ast.OrderTerm{{Expr: ast.Col(OrdinalColumn, ast.NumberDomain)}},
	}
}

// DeleteByOwner returns a delete of the rows of one owner.
func (d *DependentTable) DeleteByOwner() ast.Delete {
	return ast.Delete{Table: d.Ref(), Where: d.ownerCondition()}
}

// RecoverElement reads one row selected by SelectByOwner.
func (d *DependentTable) RecoverElement(cur Cursor) (any, error) {
	v, err := d.field.conv.Recover(d.field.hints, cur)
	if err != nil {
		return nil, annotate(err, d.parent.conv.typ, d.field.column.Text())
	}
	return v, nil
}

// Assign sets the collection field of the value sp points to from elems.
func (d *DependentTable) Assign(sp any, elems []any) {
	d.field.set(sp, d.field.conv.Fold(elems))
}

func declNames(decls []ast.ColumnDecl) []ast.Identifier {
	names := make([]ast.Identifier, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	return names
}

func resultColumns(decls []ast.ColumnDecl) []ast.ResultColumn {
	cols := make([]ast.ResultColumn, len(decls))
	for i, d := range decls {
		cols[i] = ast.ResultColumn{Expr: ast.Col(d.Name, d.Type.Domain())}
	}
	return cols
}

// constraintName returns fk_<table>_<column>, or a zero identifier when
// that is too long.
func constraintName(table, column ast.Identifier) ast.Identifier {
	id, err := ast.Alias("fk_" + table.Text() + "_" + column.Text())
	if err != nil {
		return ast.Identifier{}
	}
	return id
}

var errNoKey = errors.New("referenced table has no primary key")

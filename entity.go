// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/internal/driverr"
	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

// maxLoaders bounds the dependent table queries run concurrently outside a
// transaction.
const maxLoaders = 4

// pointerTo returns v if it is a non-nil pointer to the table's type, or a
// pointer to a copy of v if it is a value of it. Keys assigned on insert
// are only written back through the former.
func pointerTo(t *schema.Table, v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
	case rv.Type() == t.Type():
		p := reflect.New(t.Type())
		p.Elem().Set(rv)
		return p.Interface(), nil
	case rv.Kind() == reflect.Pointer && rv.Type().Elem() == t.Type() && !rv.IsNil():
		return v, nil
	}
	return nil, errors.Errorf("table %s stores %s, got %T", t.Name(), t.Type(), v)
}

func (s session) insert(ctx context.Context, t *schema.Table, v any, policy ast.ConflictPolicy) error {
	sp, err := pointerTo(t, v)
	if err != nil {
		return err
	}
	row, err := t.Row(sp)
	if err != nil {
		return err
	}
	name := t.Name().Text()
	omit := t.OmitsAutoIncrement(row)
	stmt := t.Insert(policy, omit)
	args := t.InsertArgs(row, omit)

	var id int64
	inserted := true
	if omit && s.store.dialect.Returning() {
		col, _ := t.AutoIncrement()
		stmt.Returning = []ast.Identifier{col}
		rows, err := s.query(ctx, name, stmt, args...)
		if err != nil {
			return err
		}
		inserted = rows.Next()
		if inserted {
			err = rows.Scan(&id)
		}
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = rows.Err()
		}
		if err != nil {
			return errors.Wrapf(driverr.Wrap(err, name), "cannot read key of %s", name)
		}
	} else {
		res, err := s.exec(ctx, name, stmt, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "cannot count rows inserted into %s", name)
		}
		inserted = n > 0
		if omit && inserted {
			if id, err = res.LastInsertId(); err != nil {
				return errors.Wrapf(err, "cannot read key of %s", name)
			}
		}
	}
	if !inserted {
		// The row was ignored on conflict, so its collections are too.
		return nil
	}
	if omit {
		if err := t.SetAutoIncrement(sp, id); err != nil {
			return err
		}
	}

	deps := t.Dependents()
	if len(deps) == 0 {
		return nil
	}
	key, err := t.KeyArgs(sp)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if policy == ast.ConflictReplace {
			if _, err := s.exec(ctx, d.Name().Text(), d.DeleteByOwner(), key...); err != nil {
				return err
			}
		}
		if err := s.insertElements(ctx, d, sp, key); err != nil {
			return err
		}
	}
	return nil
}

func (s session) insertElements(ctx context.Context, d *schema.DependentTable, sp any, key []any) error {
	rows, err := d.Rows(sp, key)
	if err != nil {
		return err
	}
	stmt := d.Insert()
	for _, row := range rows {
		if _, err := s.exec(ctx, d.Name().Text(), stmt, row...); err != nil {
			return err
		}
	}
	return nil
}

func (s session) get(ctx context.Context, t *schema.Table, out any, key []any) error {
	rv := reflect.ValueOf(out)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != t.Type() {
		return errors.Errorf("need a non-nil pointer to %s, got %T", t.Type(), out)
	}
	args, err := t.KeyValues(key...)
	if err != nil {
		return err
	}
	stmt, err := t.SelectByKey()
	if err != nil {
		return err
	}
	sps, err := s.readRows(ctx, t, stmt, args)
	if err != nil {
		return err
	}
	if len(sps) != 1 {
		return &sqlerr.RowCountError{Op: "select", Table: t.Name().Text(), Expected: 1, Actual: int64(len(sps))}
	}
	if err := s.loadDependents(ctx, t, sps, [][]any{args}); err != nil {
		return err
	}
	rv.Elem().Set(reflect.ValueOf(t.Deref(sps[0])))
	return nil
}

func (s session) selectAll(ctx context.Context, t *schema.Table, where ast.Expr, args []any, out any) error {
	rv := reflect.ValueOf(out)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return errors.Errorf("need a non-nil pointer to a slice, got %T", out)
	}
	sliceType := rv.Elem().Type()
	elemPtr := sliceType.Elem() == reflect.PointerTo(t.Type())
	if sliceType.Elem() != t.Type() && !elemPtr {
		return errors.Errorf("cannot select %s into %s", t.Type(), sliceType)
	}

	var order []ast.OrderTerm
	for _, d := range t.Declarations() {
		if d.PrimaryKey {
			order = append(order, ast.OrderTerm{Expr: ast.Col(d.Name, d.Type.Domain())})
		}
	}
	sps, err := s.readRows(ctx, t, t.Select(where, order...), args)
	if err != nil {
		return err
	}
	if len(t.Dependents()) > 0 {
		keys := make([][]any, len(sps))
		for i, sp := range sps {
			if keys[i], err = t.KeyArgs(sp); err != nil {
				return err
			}
		}
		if err := s.loadDependents(ctx, t, sps, keys); err != nil {
			return err
		}
	}

	slice := reflect.MakeSlice(sliceType, 0, len(sps))
	for _, sp := range sps {
		if elemPtr {
			slice = reflect.Append(slice, reflect.ValueOf(sp))
		} else {
			slice = reflect.Append(slice, reflect.ValueOf(t.Deref(sp)))
		}
	}
	rv.Elem().Set(slice)
	return nil
}

// readRows runs a query of the table's own columns and returns a pointer
// to each recovered value.
func (s session) readRows(ctx context.Context, t *schema.Table, stmt ast.Query, args []any) (sps []any, err error) {
	name := t.Name().Text()
	rows, err := s.query(ctx, name, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "cannot read %s", name)
		}
	}()
	width := len(t.Columns())
	for rows.Next() {
		sp, err := scanRow(rows, width, t.Recover)
		if err != nil {
			return nil, err
		}
		sps = append(sps, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", name)
	}
	return sps, nil
}

// loadDependents fills the collection fields of the values sps point to.
// keys holds the stored key values of each, as KeyArgs and KeyValues return.
func (s session) loadDependents(ctx context.Context, t *schema.Table, sps []any, keys [][]any) error {
	deps := t.Dependents()
	if len(deps) == 0 || len(sps) == 0 {
		return nil
	}
	elems := make([][][]any, len(sps))
	for i := range elems {
		elems[i] = make([][]any, len(deps))
	}
	if s.tx != nil {
		// A transaction runs on a single connection.
		for i := range sps {
			for j, d := range deps {
				var err error
				if elems[i][j], err = s.loadElements(ctx, d, keys[i]); err != nil {
					return err
				}
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxLoaders)
		for i := range sps {
			for j, d := range deps {
				g.Go(func() error {
					var err error
					elems[i][j], err = s.loadElements(gctx, d, keys[i])
					return err
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	for i, sp := range sps {
		for j, d := range deps {
			d.Assign(sp, elems[i][j])
		}
	}
	return nil
}

func (s session) loadElements(ctx context.Context, d *schema.DependentTable, key []any) (elems []any, err error) {
	name := d.Name().Text()
	rows, err := s.query(ctx, name, d.SelectByOwner(), key...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "cannot read %s", name)
		}
	}()
	width := len(d.Columns()) - len(d.OwnerColumns())
	for rows.Next() {
		e, err := scanRow(rows, width, d.RecoverElement)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", name)
	}
	return elems, nil
}

func (s session) update(ctx context.Context, t *schema.Table, v any) error {
	sp, err := pointerTo(t, v)
	if err != nil {
		return err
	}
	stmt, err := t.Update()
	if err != nil {
		return err
	}
	args, err := t.UpdateArgs(sp)
	if err != nil {
		return err
	}
	name := t.Name().Text()
	res, err := s.exec(ctx, name, stmt, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "cannot count rows updated in %s", name)
	}
	if n != 1 {
		return &sqlerr.RowCountError{Op: "update", Table: name, Expected: 1, Actual: n}
	}

	deps := t.Dependents()
	if len(deps) == 0 {
		return nil
	}
	key, err := t.KeyArgs(sp)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if _, err := s.exec(ctx, d.Name().Text(), d.DeleteByOwner(), key...); err != nil {
			return err
		}
		if err := s.insertElements(ctx, d, sp, key); err != nil {
			return err
		}
	}
	return nil
}

func (s session) delete(ctx context.Context, t *schema.Table, key []any) error {
	args, err := t.KeyValues(key...)
	if err != nil {
		return err
	}
	stmt, err := t.DeleteByKey()
	if err != nil {
		return err
	}
	for _, d := range t.Dependents() {
		if _, err := s.exec(ctx, d.Name().Text(), d.DeleteByOwner(), args...); err != nil {
			return err
		}
	}
	name := t.Name().Text()
	res, err := s.exec(ctx, name, stmt, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "cannot count rows deleted from %s", name)
	}
	if n != 1 {
		return &sqlerr.RowCountError{Op: "delete", Table: name, Expected: 1, Actual: n}
	}
	return nil
}

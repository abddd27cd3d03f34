// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/ast"
)

// ErrTXDone is returned when an operation is run on a transaction that has
// already been committed or rolled back.
var ErrTXDone = sql.ErrTxDone

// TX is a transaction on the database of a Store. Its operations behave
// like those of the Store but are committed or rolled back together.
type TX struct {
	sqltx *sql.Tx
	store *Store
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

func (tx *TX) session() session {
	return session{store: tx.store, tx: tx.sqltx}
}

// Begin starts a transaction. A transaction must be ended
// with a [TX.Commit] or [TX.Rollback].
func (s *Store) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := s.db.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, store: s}, nil
}

// WithTx runs fn in a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, opts *TXOptions, fn func(tx *TX) error) (err error) {
	tx, err := s.Begin(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "cannot begin transaction")
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, ErrTXDone) {
			s.logger.Warn("cannot roll back transaction", "err", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, ErrTXDone) {
		return errors.Wrap(err, "cannot commit transaction")
	}
	return nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [Store.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Insert is [Store.Insert] within the transaction.
func (tx *TX) Insert(ctx context.Context, table string, v any, policy ast.ConflictPolicy) error {
	if tx.isDone() {
		return ErrTXDone
	}
	t, err := tx.store.table(table)
	if err != nil {
		return err
	}
	return tx.session().insert(ctx, t, v, policy)
}

// Get is [Store.Get] within the transaction.
func (tx *TX) Get(ctx context.Context, table string, out any, key ...any) error {
	if tx.isDone() {
		return ErrTXDone
	}
	t, err := tx.store.table(table)
	if err != nil {
		return err
	}
	return tx.session().get(ctx, t, out, key)
}

// Select is [Store.Select] within the transaction.
func (tx *TX) Select(ctx context.Context, table string, where ast.Expr, args []any, out any) error {
	if tx.isDone() {
		return ErrTXDone
	}
	t, err := tx.store.table(table)
	if err != nil {
		return err
	}
	return tx.session().selectAll(ctx, t, where, args, out)
}

// Update is [Store.Update] within the transaction.
func (tx *TX) Update(ctx context.Context, table string, v any) error {
	if tx.isDone() {
		return ErrTXDone
	}
	t, err := tx.store.table(table)
	if err != nil {
		return err
	}
	return tx.session().update(ctx, t, v)
}

// Delete is [Store.Delete] within the transaction.
func (tx *TX) Delete(ctx context.Context, table string, key ...any) error {
	if tx.isDone() {
		return ErrTXDone
	}
	t, err := tx.store.table(table)
	if err != nil {
		return err
	}
	return tx.session().delete(ctx, t, key)
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/internal/driverr"
	"github.com/canonical/sqlmodel/sqlerr"
)

// session runs statements for a Store, either directly on its database or
// within the transaction tx.
//
// Outside a transaction statements are prepared once and cached. Inside a
// transaction a cached statement is registered on the transaction; other
// statements run unprepared so that a single connection pool cannot
// deadlock between the transaction and the prepare.
type session struct {
	store *Store
	tx    *sql.Tx
}

// render returns the SQL text of stmt after checking that it takes exactly
// args.
func (s session) render(stmt ast.Statement, args []any) (string, error) {
	query, n, err := s.store.dialect.Render(stmt, s.store.unit)
	if err != nil {
		return "", err
	}
	if n != len(args) {
		return "", sqlerr.Internalf("statement takes %d parameters, got %d: %s", n, len(args), query)
	}
	return query, nil
}

// exec runs stmt on table and returns its result. Constraint violations
// are returned as *sqlerr.ConstraintError.
func (s session) exec(ctx context.Context, table string, stmt ast.Statement, args ...any) (sql.Result, error) {
	query, err := s.render(stmt, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.execSQL(ctx, query, args)
	s.log(ctx, query, len(args), start, err)
	if err != nil {
		return nil, driverr.Wrap(err, table)
	}
	return res, nil
}

func (s session) execSQL(ctx context.Context, query string, args []any) (sql.Result, error) {
	if s.tx == nil {
		stmt, err := s.store.stmts.prepareStmt(ctx, s.store.db, query)
		if err != nil {
			return nil, err
		}
		return stmt.ExecContext(ctx, args...)
	}
	if stmt, ok := s.store.stmts.lookupStmt(query); ok {
		// The transaction closes txstmt when it ends.
		txstmt := s.tx.StmtContext(ctx, stmt)
		return txstmt.ExecContext(ctx, args...)
	}
	return s.tx.ExecContext(ctx, query, args...)
}

// query runs stmt on table and returns its rows, which the caller must
// close.
func (s session) query(ctx context.Context, table string, stmt ast.Statement, args ...any) (*sql.Rows, error) {
	query, err := s.render(stmt, args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.querySQL(ctx, query, args)
	s.log(ctx, query, len(args), start, err)
	if err != nil {
		return nil, driverr.Wrap(err, table)
	}
	return rows, nil
}

func (s session) querySQL(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	if s.tx == nil {
		stmt, err := s.store.stmts.prepareStmt(ctx, s.store.db, query)
		if err != nil {
			return nil, err
		}
		return stmt.QueryContext(ctx, args...)
	}
	if stmt, ok := s.store.stmts.lookupStmt(query); ok {
		txstmt := s.tx.StmtContext(ctx, stmt)
		return txstmt.QueryContext(ctx, args...)
	}
	return s.tx.QueryContext(ctx, query, args...)
}

// execDDL runs a schema statement. Schema statements are not cached.
func (s session) execDDL(ctx context.Context, stmt ast.Statement) (sql.Result, error) {
	query, err := s.render(stmt, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var res sql.Result
	if s.tx == nil {
		res, err = s.store.db.ExecContext(ctx, query)
	} else {
		res, err = s.tx.ExecContext(ctx, query)
	}
	s.log(ctx, query, 0, start, err)
	return res, err
}

func (s session) log(ctx context.Context, query string, nargs int, start time.Time, err error) {
	attrs := []any{"sql", query, "args", nargs, "took", time.Since(start), "tx", s.tx != nil}
	if err != nil {
		s.store.logger.WarnContext(ctx, "statement failed", append(attrs, "err", err)...)
		return
	}
	s.store.logger.DebugContext(ctx, "statement", attrs...)
}

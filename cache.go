// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
)

// statementCache holds the sql.Stmt values prepared on the database of one
// Store, indexed by their SQL text. Rendering is deterministic, so equal
// statements share one prepared statement.
//
// The mutex must be locked when accessing stmts or closed.
type statementCache struct {
	stmts  map[string]*sql.Stmt
	closed bool
	mutex  sync.RWMutex
}

func newStatementCache() *statementCache {
	return &statementCache{stmts: map[string]*sql.Stmt{}}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a
// sql.DB or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// lookupStmt returns the statement prepared for query, if any.
func (sc *statementCache) lookupStmt(query string) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	s, ok := sc.stmts[query]
	return s, ok
}

// prepareStmt returns the statement prepared for query, preparing it on ps
// first if the cache does not hold it.
func (sc *statementCache) prepareStmt(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, error) {
	if s, ok := sc.lookupStmt(query); ok {
		return s, nil
	}
	s, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sc.closed {
		s.Close()
		return nil, errors.New("cannot prepare statement: store closed")
	}
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.stmts[query]; ok {
		s.Close()
		return alt, nil
	}
	sc.stmts[query] = s
	return s, nil
}

// size returns the number of cached statements.
func (sc *statementCache) size() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return len(sc.stmts)
}

// close closes every cached statement. Later calls to prepareStmt fail.
func (sc *statementCache) close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	var err error
	for query, s := range sc.stmts {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(sc.stmts, query)
	}
	sc.closed = true
	return err
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"sync"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel/dialect"
)

type PropertySuite struct{}

var _ = Suite(&PropertySuite{})

func (s *PropertySuite) openStore(c *C) *Store {
	db, err := sql.Open("sqlite3_stmtChecked", "file:"+c.TestName()+"?mode=memory&cache=shared&testName="+c.TestName())
	c.Assert(err, IsNil)
	db.SetMaxOpenConns(1)
	store, err := New(db, WithDialect(dialect.SQLite))
	c.Assert(err, IsNil)
	return store
}

// pauseFirstLoad makes the first read of p wait until release is closed,
// and closes reading once that read has its value.
func pauseFirstLoad[T any](p *Property[T]) (reading, release chan struct{}) {
	reading, release = make(chan struct{}), make(chan struct{})
	var once sync.Once
	SetLoadHook(p, func() {
		once.Do(func() {
			close(reading)
			<-release
		})
	})
	return reading, release
}

func (s *PropertySuite) TestSetDuringGet(c *C) {
	ctx := context.Background()
	store := s.openStore(c)
	defer store.Close()

	p, err := NewProperty(store, "version", 0, SingleWriter)
	c.Assert(err, IsNil)
	c.Assert(p.Set(ctx, 1), IsNil)
	p.Reset()

	reading, release := pauseFirstLoad(p)
	done := make(chan int)
	go func() {
		v, err := p.Get(ctx)
		c.Check(err, IsNil)
		done <- v
	}()
	<-reading
	c.Assert(p.Set(ctx, 2), IsNil)
	close(release)
	c.Check(<-done, Equals, 1)

	// The read that started before the write must not replace its value.
	v, err := p.Get(ctx)
	c.Assert(err, IsNil)
	c.Check(v, Equals, 2)
}

func (s *PropertySuite) TestResetDuringGet(c *C) {
	ctx := context.Background()
	store := s.openStore(c)
	defer store.Close()

	p, err := NewProperty(store, "version", 0, SingleWriter)
	c.Assert(err, IsNil)
	other, err := NewProperty(store, "version", 0, MultipleWriters)
	c.Assert(err, IsNil)
	c.Assert(p.Set(ctx, 1), IsNil)
	p.Reset()

	reading, release := pauseFirstLoad(p)
	done := make(chan int)
	go func() {
		v, err := p.Get(ctx)
		c.Check(err, IsNil)
		done <- v
	}()
	<-reading
	c.Assert(other.Set(ctx, 3), IsNil)
	p.Reset()
	close(release)
	c.Check(<-done, Equals, 1)

	v, err := p.Get(ctx)
	c.Assert(err, IsNil)
	c.Check(v, Equals, 3)
}

func (s *PropertySuite) TestGetAfterWriteDoesNotJoinOlderRead(c *C) {
	ctx := context.Background()
	store := s.openStore(c)
	defer store.Close()

	p, err := NewProperty(store, "version", 0, MultipleWriters)
	c.Assert(err, IsNil)
	c.Assert(p.Set(ctx, 1), IsNil)

	reading, release := pauseFirstLoad(p)
	done := make(chan int)
	go func() {
		v, err := p.Get(ctx)
		c.Check(err, IsNil)
		done <- v
	}()
	<-reading
	c.Assert(p.Set(ctx, 2), IsNil)
	v, err := p.Get(ctx)
	c.Assert(err, IsNil)
	c.Check(v, Equals, 2)
	close(release)
	c.Check(<-done, Equals, 1)
}

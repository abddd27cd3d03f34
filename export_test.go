// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

// CacheSize returns the number of statements prepared by the store.
func (s *Store) CacheSize() int {
	return s.stmts.size()
}

// SetLoadHook makes p call f after each read of the database.
func SetLoadHook[T any](p *Property[T], f func()) {
	p.loaded = f
}

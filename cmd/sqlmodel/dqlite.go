// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build dqlite

package main

import (
	"context"
	"database/sql"

	"github.com/canonical/go-dqlite/app"
	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel"
)

// The dqlite backend runs a single node whose data directory is the DSN.
func init() {
	openers["dqlite"] = openDqlite
}

func openDqlite(ctx context.Context, cfg *sqlmodel.Config) (*sql.DB, func() error, error) {
	node, err := app.New(cfg.DSN, app.WithAddress("127.0.0.1:9001"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot start dqlite node")
	}
	if err := node.Ready(ctx); err != nil {
		node.Close()
		return nil, nil, errors.Wrap(err, "dqlite node not ready")
	}
	db, err := node.Open(ctx, "sqlmodel")
	if err != nil {
		node.Close()
		return nil, nil, errors.Wrap(err, "cannot open dqlite database")
	}
	release := func() error {
		db.Close()
		return node.Close()
	}
	return db, release, nil
}

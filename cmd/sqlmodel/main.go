// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command sqlmodel prints the demo schema in the dialect of a configured
// database, or runs the demo against it.
//
//	sqlmodel [-config file] ddl|demo
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/canonical/sqlmodel"
	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/demo"
	"github.com/canonical/sqlmodel/dialect"
)

// opener opens a database a driver cannot open through database/sql alone.
// The returned function releases it.
type opener func(ctx context.Context, cfg *sqlmodel.Config) (*sql.DB, func() error, error)

var openers = map[string]opener{}

var defaultConfig = sqlmodel.Config{
	Driver: "sqlite3",
	DSN:    "file:sqlmodel-demo?mode=memory&cache=shared&_foreign_keys=on",
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sqlmodel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration `file`")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("need one command: ddl or demo")
	}

	cfg := &defaultConfig
	if *configPath != "" {
		var err error
		if cfg, err = sqlmodel.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	switch cmd := fs.Arg(0); cmd {
	case "ddl":
		return printDDL(cfg, stdout)
	case "demo":
		return runDemo(ctx, cfg, logger, stdout)
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

func printDDL(cfg *sqlmodel.Config, w io.Writer) error {
	d := dialect.For(cfg.Driver)
	if cfg.Dialect != "" {
		d = dialect.For(cfg.Dialect)
	}
	unit := d.DefaultUnit()
	if cfg.Unit != "" {
		var err error
		if unit, err = ast.NewUnit(cfg.Unit); err != nil {
			return err
		}
	}
	stmts, err := demo.DDL(d, unit)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		fmt.Fprintln(w, s)
	}
	return nil
}

func runDemo(ctx context.Context, cfg *sqlmodel.Config, logger *slog.Logger, w io.Writer) error {
	catalog, err := demo.NewCatalog()
	if err != nil {
		return err
	}
	var store *sqlmodel.Store
	if open, ok := openers[cfg.Driver]; ok {
		db, release, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		opts, err := cfg.Options(logger)
		if err != nil {
			return err
		}
		store, err = sqlmodel.New(db, append(opts, sqlmodel.WithCatalog(catalog))...)
		if err != nil {
			return err
		}
	} else {
		store, err = cfg.Open(logger, sqlmodel.WithCatalog(catalog))
		if err != nil {
			return err
		}
	}
	defer store.Close()
	logger.Info("running demo", "driver", cfg.Driver, "dialect", store.Dialect().Name(), "mode", cfg.Mode())

	runs, err := sqlmodel.NewProperty(store, "demo-runs", 0, cfg.Mode())
	if err != nil {
		return err
	}
	n, err := runs.Get(ctx)
	if err != nil {
		return err
	}
	if err := runs.Set(ctx, n+1); err != nil {
		return err
	}
	fmt.Fprintf(w, "Demo run %d.\n", n+1)
	return demo.Run(ctx, store, w)
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package demo stores a small set of people and the towns they come from.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/canonical/sqlmodel"
	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/dialect"
	"github.com/canonical/sqlmodel/schema"
)

type Place struct {
	Name       string `db:"town_name,pk,size=64"`
	Population int64  `db:"population"`
}

type Person struct {
	ID        int64    `db:"id,autoincr"`
	Name      string   `db:"name,size=64"`
	Height    int32    `db:"height_cm"`
	HomeTown  string   `db:"home_town,size=64,ref=places.town_name,ondelete=cascade"`
	Nicknames []string `db:"nicknames"`
}

// NewCatalog returns a catalog holding the places and people tables.
func NewCatalog() (*schema.Catalog, error) {
	reg := schema.NewRegistry()
	if err := reg.Register(schema.Tagged[Place](), schema.Tagged[Person]()); err != nil {
		return nil, err
	}
	catalog := schema.NewCatalog(reg)
	if _, err := schema.Define[Place](catalog, ""); err != nil {
		return nil, err
	}
	if _, err := schema.Define[Person](catalog, ""); err != nil {
		return nil, err
	}
	return catalog, nil
}

// DDL returns the statements creating the demo tables in d.
func DDL(d *dialect.Dialect, unit ast.Unit) ([]string, error) {
	catalog, err := NewCatalog()
	if err != nil {
		return nil, err
	}
	people, _ := catalog.Table("people")
	stmts, err := catalog.CreateStatements(people)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range stmts {
		s, err := d.Unparse(stmt, unit)
		if err != nil {
			return nil, err
		}
		out = append(out, s+";")
	}
	return out, nil
}

var people = []Person{
	{Name: "Jim", Height: 150, HomeTown: "Kabul"},
	{Name: "Saba", Height: 162, HomeTown: "Berlin", Nicknames: []string{"Sab"}},
	{Name: "Dave", Height: 169, HomeTown: "Brasília"},
	{Name: "Sophie", Height: 174, HomeTown: "Berlin", Nicknames: []string{"Soph", "Fi"}},
	{Name: "Kiri", Height: 168, HomeTown: "Cape Town"},
}

var places = []Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}

// Run stores the demo data in store, whose catalog must come from
// NewCatalog, and writes what it reads back to w.
func Run(ctx context.Context, store *sqlmodel.Store, w io.Writer) error {
	if err := store.CreateTable(ctx, "people"); err != nil {
		return err
	}
	for _, place := range places {
		if err := store.Insert(ctx, "places", place, ast.ConflictReplace); err != nil {
			return err
		}
	}
	stored := make([]Person, len(people))
	copy(stored, people)
	for i := range stored {
		if err := store.Insert(ctx, "people", &stored[i], ast.ConflictNone); err != nil {
			return err
		}
	}

	// Find people taller than Jim.
	jim := stored[0]
	height := ast.Col(ast.MustColumn("height_cm"), ast.NumberDomain)
	var taller []Person
	if err := store.Select(ctx, "people", ast.Gt(height, ast.P(ast.NumberDomain)), []any{jim.Height}, &taller); err != nil {
		return err
	}
	for _, p := range taller {
		fmt.Fprintf(w, "%s is taller than %s.\n", p.Name, jim.Name)
	}

	// Read one person back with their nicknames.
	var sophie Person
	if err := store.Get(ctx, "people", &sophie, stored[3].ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s from %s is also known as %v.\n", sophie.Name, sophie.HomeTown, sophie.Nicknames)

	// Deleting a town deletes the people from it.
	if err := store.Delete(ctx, "places", "Berlin"); err != nil {
		return err
	}
	var rest []Person
	if err := store.Select(ctx, "people", nil, nil, &rest); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d people remain after Berlin is gone.\n", len(rest))
	return nil
}

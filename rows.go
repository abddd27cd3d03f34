// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/sqlerr"
)

// scanRow reads the current row of rows, which must have width columns,
// and passes a cursor over it to restore. Every column must be consumed.
func scanRow(rows *sql.Rows, width int, restore func(schema.Cursor) (any, error)) (any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != width {
		return nil, sqlerr.Internalf("query returned %d columns, want %d", len(cols), width)
	}
	values := make([]any, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrap(err, "cannot scan row")
	}
	cur := schema.NewCursor(values)
	v, err := restore(cur)
	if err != nil {
		return nil, err
	}
	if n := cur.Remaining(); n != 0 {
		return nil, &sqlerr.RestoringError{
			Column: cur.Consumed(),
			Err:    errors.Wrapf(sqlerr.ErrStructure, "%d columns left unread", n),
		}
	}
	return v, nil
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

// Row is the ordered list of parameter values for one inserted row. A nil
// element stores SQL NULL.
type Row []any

// RowSet is the list of rows being assembled for one insertion. A nil RowSet
// has not been started yet; an empty non-nil RowSet holds zero rows.
//
// The functions below never modify their arguments. Each returns a new set
// whose rows share no backing storage with the input.
type RowSet []Row

// Seed returns a set holding one empty row.
func Seed() RowSet {
	return RowSet{Row{}}
}

// started returns rows, seeded if it is nil.
func started(rows RowSet) RowSet {
	if rows == nil {
		return Seed()
	}
	return rows
}

// Clone returns a deep copy of rows.
func (rows RowSet) Clone() RowSet {
	if rows == nil {
		return nil
	}
	out := make(RowSet, len(rows))
	for i, r := range rows {
		out[i] = append(make(Row, 0, len(r)+1), r...)
	}
	return out
}

// AppendAll returns rows with values appended to every row. A nil set is
// seeded first.
func AppendAll(rows RowSet, values ...any) RowSet {
	rows = started(rows)
	out := make(RowSet, len(rows))
	for i, r := range rows {
		row := make(Row, 0, len(r)+len(values))
		row = append(row, r...)
		out[i] = append(row, values...)
	}
	return out
}

// Multiply returns k consecutive copies of rows. Multiplying by zero
// returns an empty set.
func Multiply(rows RowSet, k int) RowSet {
	rows = started(rows)
	if k <= 0 {
		return RowSet{}
	}
	out := make(RowSet, 0, len(rows)*k)
	for i := 0; i < k; i++ {
		out = append(out, rows.Clone()...)
	}
	return out
}

// Concat returns the rows of every set in order.
func Concat(sets ...RowSet) RowSet {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make(RowSet, 0, n)
	for _, s := range sets {
		out = append(out, s.Clone()...)
	}
	return out
}

// Width returns the number of values of the rows, or -1 if the rows
// differ in width.
func (rows RowSet) Width() int {
	if len(rows) == 0 {
		return 0
	}
	w := len(rows[0])
	for _, r := range rows[1:] {
		if len(r) != w {
			return -1
		}
	}
	return w
}

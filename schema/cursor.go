// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"math"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/sqlerr"
)

// Cursor reads the columns of one result row in order. Every getter
// consumes one column and checks that its value fits the requested type.
type Cursor interface {
	// IsNull reports whether the next column is NULL without consuming it.
	IsNull() bool
	// Skip consumes the next column.
	Skip() error

	Bool() (bool, error)
	Int8() (int8, error)
	Int16() (int16, error)
	Int32() (int32, error)
	Int64() (int64, error)
	BigInt() (*big.Int, error)
	Float32() (float32, error)
	Float64() (float64, error)
	// Char reads a string of exactly one character.
	Char() (string, error)
	// String64 reads a string of at most 64 characters.
	String64() (string, error)
	String() (string, error)
	// Binary128 reads at most 16 bytes.
	Binary128() ([]byte, error)
	// Binary256 reads at most 32 bytes.
	Binary256() ([]byte, error)
	Bytes() ([]byte, error)

	// Consumed returns the number of columns read so far.
	Consumed() int
}

// SliceCursor is a Cursor over values as returned by database/sql drivers:
// nil, bool, int64, float64, string, []byte or their narrower variants.
type SliceCursor struct {
	values []any
	pos    int
}

// NewCursor returns a cursor over values.
func NewCursor(values []any) *SliceCursor {
	return &SliceCursor{values: values}
}

// NewRowCursor returns a cursor over a collected row.
func NewRowCursor(row Row) *SliceCursor {
	return &SliceCursor{values: row}
}

func (c *SliceCursor) Consumed() int { return c.pos }

// Remaining returns the number of unread columns.
func (c *SliceCursor) Remaining() int { return len(c.values) - c.pos }

func (c *SliceCursor) IsNull() bool {
	return c.pos < len(c.values) && c.values[c.pos] == nil
}

func (c *SliceCursor) Skip() error {
	if c.pos >= len(c.values) {
		return c.short()
	}
	c.pos++
	return nil
}

func (c *SliceCursor) short() error {
	return &sqlerr.RestoringError{
		Column: c.pos,
		Err:    errors.Wrapf(sqlerr.ErrStructure, "row has only %d columns", len(c.values)),
	}
}

func (c *SliceCursor) next() (any, error) {
	if c.pos >= len(c.values) {
		return nil, c.short()
	}
	v := c.values[c.pos]
	c.pos++
	if v == nil {
		return nil, &sqlerr.RestoringError{Column: c.pos - 1, Err: sqlerr.ErrCorruptNull}
	}
	return v, nil
}

func (c *SliceCursor) fail(v any, format string, args ...any) error {
	return &sqlerr.RestoringError{
		Column: c.pos - 1,
		Value:  v,
		Err:    errors.Wrapf(sqlerr.ErrStructure, format, args...),
	}
}

func (c *SliceCursor) Bool() (bool, error) {
	v, err := c.next()
	if err != nil {
		return false, err
	}
	switch v := v.(type) {
	case bool:
		return v, nil
	case []byte:
		return c.parseBool(string(v))
	case string:
		return c.parseBool(v)
	}
	i, ok := asInt64(v)
	if !ok || (i != 0 && i != 1) {
		return false, c.fail(v, "not a boolean")
	}
	return i == 1, nil
}

func (c *SliceCursor) parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, c.fail(s, "not a boolean")
	}
	return b, nil
}

func (c *SliceCursor) integer(bits int) (int64, error) {
	v, err := c.next()
	if err != nil {
		return 0, err
	}
	i, ok := asInt64(v)
	if !ok {
		var s string
		switch v := v.(type) {
		case []byte:
			s = string(v)
		case string:
			s = v
		default:
			return 0, c.fail(v, "not an integer")
		}
		i, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, c.fail(v, "not an integer")
		}
	}
	if bits < 64 {
		lim := int64(1) << (bits - 1)
		if i < -lim || i >= lim {
			return 0, c.fail(v, "value %d does not fit in %d bits", i, bits)
		}
	}
	return i, nil
}

func (c *SliceCursor) Int8() (int8, error) {
	i, err := c.integer(8)
	return int8(i), err
}

func (c *SliceCursor) Int16() (int16, error) {
	i, err := c.integer(16)
	return int16(i), err
}

func (c *SliceCursor) Int32() (int32, error) {
	i, err := c.integer(32)
	return int32(i), err
}

func (c *SliceCursor) Int64() (int64, error) {
	return c.integer(64)
}

func (c *SliceCursor) BigInt() (*big.Int, error) {
	v, err := c.next()
	if err != nil {
		return nil, err
	}
	if i, ok := asInt64(v); ok {
		return big.NewInt(i), nil
	}
	var s string
	switch v := v.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return nil, c.fail(v, "not an integer")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, c.fail(v, "not an integer")
	}
	return n, nil
}

func (c *SliceCursor) float() (float64, error) {
	v, err := c.next()
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return c.parseFloat(string(v))
	case string:
		return c.parseFloat(v)
	}
	if i, ok := asInt64(v); ok {
		return float64(i), nil
	}
	return 0, c.fail(v, "not a number")
}

func (c *SliceCursor) parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, c.fail(s, "not a number")
	}
	return f, nil
}

func (c *SliceCursor) Float32() (float32, error) {
	f, err := c.float()
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
		return 0, c.fail(f, "value %g does not fit in 32 bits", f)
	}
	return float32(f), nil
}

func (c *SliceCursor) Float64() (float64, error) {
	return c.float()
}

func (c *SliceCursor) text() (string, error) {
	v, err := c.next()
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", c.fail(v, "not a string")
}

func (c *SliceCursor) Char() (string, error) {
	s, err := c.text()
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(s) != 1 {
		return "", c.fail(s, "need exactly one character, got %d", utf8.RuneCountInString(s))
	}
	return s, nil
}

func (c *SliceCursor) String64() (string, error) {
	s, err := c.text()
	if err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(s); n > 64 {
		return "", c.fail(s, "string of %d characters longer than 64", n)
	}
	return s, nil
}

func (c *SliceCursor) String() (string, error) {
	return c.text()
}

func (c *SliceCursor) binary(limit int) ([]byte, error) {
	v, err := c.next()
	if err != nil {
		return nil, err
	}
	var b []byte
	switch v := v.(type) {
	case []byte:
		b = append([]byte{}, v...)
	case string:
		b = []byte(v)
	default:
		return nil, c.fail(v, "not binary")
	}
	if limit >= 0 && len(b) > limit {
		return nil, c.fail(v, "%d bytes longer than %d", len(b), limit)
	}
	return b, nil
}

func (c *SliceCursor) Binary128() ([]byte, error) { return c.binary(16) }

func (c *SliceCursor) Binary256() ([]byte, error) { return c.binary(32) }

func (c *SliceCursor) Bytes() ([]byte, error) { return c.binary(-1) }

func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

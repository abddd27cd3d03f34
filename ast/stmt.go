// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ast

import "strconv"

// Statement is a complete SQL statement.
type Statement interface {
	Node
	statement()
}

// TableStatement is a statement acting on a single table.
type TableStatement interface {
	Statement
	Target() QualifiedTable
}

// Query is a statement producing rows: a Select or a Compound.
type Query interface {
	Statement
	query()
}

// ResultColumn is one entry of a select list.
type ResultColumn struct {
	Expr  Expr
	Alias Identifier
}

// Source is an entry of a FROM clause.
type Source interface {
	Node
	source()
}

// TableSource reads from a table, optionally under an alias.
type TableSource struct {
	Table QualifiedTable
	Alias Identifier
}

// JoinKind is the kind of a join.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	CrossJoin
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "INNER JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	case CrossJoin:
		return "CROSS JOIN"
	}
	return "JoinKind(" + strconv.Itoa(int(k)) + ")"
}

// JoinSource joins two sources. On is ignored for cross joins.
type JoinSource struct {
	Left  Source
	Kind  JoinKind
	Right Source
	On    Expr
}

// SubquerySource reads from a nested query.
type SubquerySource struct {
	Query Query
	Alias Identifier
}

// OrderTerm is one entry of an ORDER BY clause.
type OrderTerm struct {
	Expr       Expr
	Descending bool
}

// Select is a simple, joined, grouped or ordered SELECT. A nil Columns
// list selects every column.
type Select struct {
	Distinct bool
	Columns  []ResultColumn
	From     []Source
	Where    Expr
	GroupBy  []Expr
	// Having is only rendered together with GroupBy.
	Having  Expr
	OrderBy []OrderTerm
	Limit   *int64
	// Offset is only rendered together with Limit.
	Offset *int64
}

// CompoundOp combines two queries.
type CompoundOp int

const (
	Union CompoundOp = iota
	UnionAll
	Intersect
	Except
)

func (op CompoundOp) String() string {
	switch op {
	case Union:
		return "UNION"
	case UnionAll:
		return "UNION ALL"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	}
	return "CompoundOp(" + strconv.Itoa(int(op)) + ")"
}

// Compound is a UNION, INTERSECT or EXCEPT of two queries.
type Compound struct {
	Op          CompoundOp
	Left, Right Query
	OrderBy     []OrderTerm
	Limit       *int64
	Offset      *int64
}

// ConflictPolicy is the behaviour of an INSERT on a uniqueness or primary
// key violation.
type ConflictPolicy int

const (
	// ConflictNone renders a plain INSERT.
	ConflictNone ConflictPolicy = iota
	ConflictAbort
	ConflictIgnore
	ConflictReplace
	ConflictRollback
	ConflictFail
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictNone:
		return ""
	case ConflictAbort:
		return "ABORT"
	case ConflictIgnore:
		return "IGNORE"
	case ConflictReplace:
		return "REPLACE"
	case ConflictRollback:
		return "ROLLBACK"
	case ConflictFail:
		return "FAIL"
	}
	return "ConflictPolicy(" + strconv.Itoa(int(p)) + ")"
}

// Insert adds rows to a table, either from literal rows or from a query.
type Insert struct {
	Table    QualifiedTable
	Columns  []Identifier
	Rows     [][]Expr
	Query    Query
	Conflict ConflictPolicy
	// ConflictTarget lists the key columns a conflict is detected on, for
	// dialects that need them spelled out.
	ConflictTarget []Identifier
	// Returning lists the columns of the inserted row the statement reports
	// back.
	Returning []Identifier
}

func (s Insert) Target() QualifiedTable { return s.Table }

// Assignment sets a column in an UPDATE.
type Assignment struct {
	Column Identifier
	Value  Expr
}

// Update changes rows of a table.
type Update struct {
	Table QualifiedTable
	Set   []Assignment
	Where Expr
}

func (s Update) Target() QualifiedTable { return s.Table }

// Delete removes rows from a table.
type Delete struct {
	Table QualifiedTable
	Where Expr
}

func (s Delete) Target() QualifiedTable { return s.Table }

// Action is a referential action of a foreign key.
type Action int

const (
	// ActionDefault leaves the action unspecified.
	ActionDefault Action = iota
	Restrict
	Cascade
	SetNull
	NoAction
)

func (a Action) String() string {
	switch a {
	case ActionDefault:
		return ""
	case Restrict:
		return "RESTRICT"
	case Cascade:
		return "CASCADE"
	case SetNull:
		return "SET NULL"
	case NoAction:
		return "NO ACTION"
	}
	return "Action(" + strconv.Itoa(int(a)) + ")"
}

// Reference is the target of a foreign key.
type Reference struct {
	Table    QualifiedTable
	Columns  []Identifier
	OnDelete Action
	OnUpdate Action
}

// ColumnDecl declares a column of a table.
type ColumnDecl struct {
	Name          Identifier
	Type          SQLType
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Default       Expr
	Check         Expr
}

// TableConstraint is a constraint declared after the columns of a table.
type TableConstraint interface {
	Node
	constraint()
}

// PrimaryKeyConstraint declares a composite primary key.
type PrimaryKeyConstraint struct {
	Columns []Identifier
}

// UniqueConstraint declares a set of columns unique.
type UniqueConstraint struct {
	Columns []Identifier
}

// ForeignKeyConstraint is a named foreign key from local columns to a
// reference.
type ForeignKeyConstraint struct {
	Name      Identifier
	Columns   []Identifier
	Reference Reference
}

// CheckConstraint is a named table check.
type CheckConstraint struct {
	Name Identifier
	Expr Expr
}

// CreateTable creates a table.
type CreateTable struct {
	Table       QualifiedTable
	IfNotExists bool
	Columns     []ColumnDecl
	Constraints []TableConstraint
}

func (s CreateTable) Target() QualifiedTable { return s.Table }

// CreateSchema creates a schema.
type CreateSchema struct {
	Schema      Identifier
	IfNotExists bool
}

// DropTable drops a table.
type DropTable struct {
	Table    QualifiedTable
	IfExists bool
}

func (s DropTable) Target() QualifiedTable { return s.Table }

func (ResultColumn) node()         {}
func (TableSource) node()          {}
func (JoinSource) node()           {}
func (SubquerySource) node()       {}
func (OrderTerm) node()            {}
func (Select) node()               {}
func (Compound) node()             {}
func (Insert) node()               {}
func (Assignment) node()           {}
func (Update) node()               {}
func (Delete) node()               {}
func (Reference) node()            {}
func (ColumnDecl) node()           {}
func (PrimaryKeyConstraint) node() {}
func (UniqueConstraint) node()     {}
func (ForeignKeyConstraint) node() {}
func (CheckConstraint) node()      {}
func (CreateTable) node()          {}
func (CreateSchema) node()         {}
func (DropTable) node()            {}

func (TableSource) source()    {}
func (JoinSource) source()     {}
func (SubquerySource) source() {}

func (Select) statement()       {}
func (Compound) statement()     {}
func (Insert) statement()       {}
func (Update) statement()       {}
func (Delete) statement()       {}
func (CreateTable) statement()  {}
func (CreateSchema) statement() {}
func (DropTable) statement()    {}

func (Select) query()   {}
func (Compound) query() {}

func (PrimaryKeyConstraint) constraint() {}
func (UniqueConstraint) constraint()     {}
func (ForeignKeyConstraint) constraint() {}
func (CheckConstraint) constraint()      {}

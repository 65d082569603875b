package plan

import "github.com/lunardb/lunar-db/internal/types"

// Expr is a scalar expression tree evaluated per row under three-valued
// logic. The set of variants is closed; the executor dispatches on type.
type Expr interface {
	exprNode()
}

// ColumnRef references a column by name, optionally qualified by a table
// alias. References are resolved against the innermost binding frame that
// knows the name, which is how correlated subqueries see enclosing rows.
type ColumnRef struct {
	Table string
	Name  string
}

// Literal is a constant value, including NULL.
type Literal struct {
	Value types.Value
}

// CompareOp enumerates comparison operators.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op CompareOp) String() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "?"
	}
}

// Compare applies a comparison operator. Either operand being NULL makes
// the result NULL.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// ArithOp enumerates arithmetic operators.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

// Arith applies an arithmetic operator with numeric promotion; NULL
// operands propagate NULL.
type Arith struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

// And, Or and Not follow Kleene three-valued logic.
type And struct {
	Left  Expr
	Right Expr
}

type Or struct {
	Left  Expr
	Right Expr
}

type Not struct {
	Input Expr
}

// IsNull tests for NULL directly; unlike `= NULL` it yields true or false,
// never NULL.
type IsNull struct {
	Input  Expr
	Negate bool
}

// CaseBranch is one WHEN/THEN pair of a CASE expression.
type CaseBranch struct {
	When Expr
	Then Expr
}

// Case evaluates branches in order and short-circuits at the first WHEN
// that is true (not NULL, not false). No match and no ELSE yields NULL.
type Case struct {
	Branches []CaseBranch
	Else     Expr
}

// InList is `x IN (a, b, ...)` over literal-style item expressions, with
// three-valued membership semantics.
type InList struct {
	Input  Expr
	Items  []Expr
	Negate bool
}

// AggRef references an aggregate result slot by position. It is only legal
// inside a HAVING expression or a projection above an Aggregate node; the
// aggregate operator resolves the slot to a concrete value before the
// expression is evaluated.
type AggRef struct {
	Index int
}

// ScalarSubquery executes a subplan expected to produce at most one row of
// one column; zero rows yield NULL, more than one row is a cardinality
// failure.
type ScalarSubquery struct {
	Query Node
}

// Exists is true iff the subplan produces at least one row.
type Exists struct {
	Query  Node
	Negate bool
}

// InSubquery is `x IN (SELECT ...)` with three-valued membership: when x
// is not found and the result set contains NULL, the result is NULL.
type InSubquery struct {
	Input  Expr
	Query  Node
	Negate bool
}

// QuantSubquery is `x <op> ANY (...)` or `x <op> ALL (...)`.
type QuantSubquery struct {
	Op    CompareOp
	All   bool
	Input Expr
	Query Node
}

func (*ColumnRef) exprNode()      {}
func (*Literal) exprNode()        {}
func (*Compare) exprNode()        {}
func (*Arith) exprNode()          {}
func (*And) exprNode()            {}
func (*Or) exprNode()             {}
func (*Not) exprNode()            {}
func (*IsNull) exprNode()         {}
func (*Case) exprNode()           {}
func (*InList) exprNode()         {}
func (*AggRef) exprNode()         {}
func (*ScalarSubquery) exprNode() {}
func (*Exists) exprNode()         {}
func (*InSubquery) exprNode()     {}
func (*QuantSubquery) exprNode()  {}

// Col is shorthand for an unqualified column reference.
func Col(name string) *ColumnRef { return &ColumnRef{Name: name} }

// QCol is shorthand for a qualified column reference.
func QCol(table, name string) *ColumnRef { return &ColumnRef{Table: table, Name: name} }

// Lit is shorthand for a literal expression.
func Lit(v types.Value) *Literal { return &Literal{Value: v} }

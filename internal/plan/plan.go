// Package plan defines the logical query plan handed to the execution
// engine: a tree of operator descriptors plus the scalar expression trees
// they carry. Plans are produced by an external parser/binder; the engine
// assumes table and column names are meaningful against the catalog it is
// given.
package plan

// Node is one operator descriptor in a logical plan tree. The variant set
// is closed; the executor composes operators bottom-up by dispatching on
// the concrete type.
type Node interface {
	planNode()
}

// Scan reads one table, optionally under an alias, optionally restricted
// by a predicate. When an index exists on the filtered column and the
// predicate is an equality or range on it, the scan uses the index;
// otherwise it reads every row. No costing is involved.
type Scan struct {
	Table     string
	Alias     string
	Predicate Expr
}

// RecursiveRef scans the working set of the enclosing Recursive node with
// the matching name. Only valid inside the recursive member of a
// Recursive plan.
type RecursiveRef struct {
	Name  string
	Alias string
}

// Filter keeps rows whose predicate evaluates to true (not NULL, not
// false).
type Filter struct {
	Input     Node
	Predicate Expr
}

// Field is a named output expression, used for projections and group-by
// keys.
type Field struct {
	Expr  Expr
	Alias string
}

// Project computes one output column per field.
type Project struct {
	Input  Node
	Fields []Field
}

// JoinKind enumerates the supported join variants. A self join is an
// inner or left join whose operands scan the same table under different
// aliases; nothing in the algorithm is special-cased for it.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	case FullJoin:
		return "FULL"
	case CrossJoin:
		return "CROSS"
	default:
		return "?"
	}
}

// Join combines two inputs under a join condition. On is ignored for
// CrossJoin.
type Join struct {
	Kind  JoinKind
	Left  Node
	Right Node
	On    Expr
}

// AggFn enumerates aggregate functions.
type AggFn int

const (
	CountStar AggFn = iota
	Count
	Sum
	Avg
	Min
	Max
)

func (f AggFn) String() string {
	switch f {
	case CountStar:
		return "COUNT(*)"
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return "?"
	}
}

// AggCall is one aggregate computation. Arg is nil for COUNT(*). Distinct
// deduplicates input values before the aggregate is applied.
type AggCall struct {
	Fn       AggFn
	Arg      Expr
	Distinct bool
	Alias    string
}

// Aggregate partitions its input into groups by the GROUP BY fields,
// computes one aggregate value set per group, then filters groups through
// the HAVING expression. Having may reference group-by output columns by
// alias or aggregate slots via AggRef. With no GroupBy fields the whole
// input forms one implicit group.
type Aggregate struct {
	Input   Node
	GroupBy []Field
	Aggs    []AggCall
	Having  Expr
}

// SortKey is one ORDER BY key.
type SortKey struct {
	Expr Expr
	Desc bool
}

// Sort materializes its input and emits it ordered by the keys, NULLs
// after all non-NULL values.
type Sort struct {
	Input Node
	Keys  []SortKey
}

// WindowFn enumerates window functions. The aggregate functions double as
// framed window aggregates.
type WindowFn int

const (
	RowNumber WindowFn = iota
	Rank
	DenseRank
	Lead
	Lag
	WinSum
	WinAvg
	WinCount
	WinMin
	WinMax
)

// BoundType positions one end of a window frame.
type BoundType int

const (
	UnboundedPreceding BoundType = iota
	Preceding
	CurrentRow
	Following
	UnboundedFollowing
)

// FrameBound is one end of a ROWS frame; Offset applies to Preceding and
// Following only.
type FrameBound struct {
	Type   BoundType
	Offset int
}

// Frame is a ROWS BETWEEN frame specification.
type Frame struct {
	Start FrameBound
	End   FrameBound
}

// WindowCall is one window function computation. PartitionBy and OrderBy
// scope it; Frame applies to the aggregate window functions and defaults
// to partition-start-through-current-row when OrderBy is present, else
// the whole partition. Offset and Default apply to Lead and Lag.
type WindowCall struct {
	Fn          WindowFn
	Arg         Expr
	Offset      int
	Default     Expr
	PartitionBy []Expr
	OrderBy     []SortKey
	Frame       *Frame
	Alias       string
}

// Window materializes its input, computes every call per row, and emits
// the input columns plus one column per call, in the original input order.
type Window struct {
	Input Node
	Calls []WindowCall
}

// Derived materializes a subplan's full result once as an anonymous table
// and scans it under the alias for the remainder of the outer plan.
type Derived struct {
	Input Node
	Alias string
}

// Recursive evaluates `anchor UNION ALL step` as a fixpoint. The step
// plan references the previous iteration's rows through a RecursiveRef
// with the same name. Iteration stops when a round produces no rows;
// exceeding the executor's iteration cap is a failure.
type Recursive struct {
	Name   string
	Anchor Node
	Step   Node
}

func (*Scan) planNode()         {}
func (*RecursiveRef) planNode() {}
func (*Filter) planNode()       {}
func (*Project) planNode()      {}
func (*Join) planNode()         {}
func (*Aggregate) planNode()    {}
func (*Sort) planNode()         {}
func (*Window) planNode()       {}
func (*Derived) planNode()      {}
func (*Recursive) planNode()    {}

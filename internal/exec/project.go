package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// projectOp computes one output column per field.
type projectOp struct {
	ec     *execCtx
	input  RowSource
	fields []plan.Field
	schema types.Schema
}

func (e *Executor) buildProject(ec *execCtx, n *plan.Project) (RowSource, error) {
	input, err := e.build(ec, n.Input)
	if err != nil {
		return nil, err
	}
	inSchema := input.Schema()

	// A projection above an aggregate may only reference the aggregate's
	// outputs; reaching past it to a raw input column is the classic
	// non-grouped-column mistake.
	if aggBelow(n.Input) {
		for _, field := range n.Fields {
			if err := checkAggProjection(field.Expr, inSchema); err != nil {
				return nil, err
			}
		}
	}

	schema := make(types.Schema, len(n.Fields))
	for i, field := range n.Fields {
		schema[i] = types.Column{
			Name:     field.Alias,
			Type:     inferType(field.Expr, inSchema),
			Nullable: true,
		}
	}
	return &projectOp{ec: ec, input: input, fields: n.Fields, schema: schema}, nil
}

func (p *projectOp) Schema() types.Schema { return p.schema }

func (p *projectOp) Next() (types.Row, error) {
	if err := p.ec.cancelled(); err != nil {
		return nil, err
	}
	row, err := p.input.Next()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	out := make(types.Row, len(p.fields))
	p.ec.env.push(p.input.Schema(), row)
	defer p.ec.env.pop()
	for i, field := range p.fields {
		v, err := p.ec.eval(field.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *projectOp) Close() error { return p.input.Close() }

// aggBelow reports whether the node produces an aggregate output
// schema, looking through row-preserving operators (Sort, Filter) that
// pass the schema upward unchanged.
func aggBelow(n plan.Node) bool {
	for {
		switch x := n.(type) {
		case *plan.Aggregate:
			return true
		case *plan.Sort:
			n = x.Input
		case *plan.Filter:
			n = x.Input
		default:
			return false
		}
	}
}

// checkAggProjection verifies that every column reference in a
// post-aggregate projection resolves in the aggregate output schema.
func checkAggProjection(e plan.Expr, aggSchema types.Schema) error {
	for _, ref := range columnRefs(e) {
		if aggSchema.Count(ref.Table, ref.Name) == 0 {
			return fmt.Errorf("%w: column %q is neither grouped nor aggregated",
				types.ErrInvalidProjection, ref.Name)
		}
	}
	return nil
}

// columnRefs collects the column references of an expression tree,
// skipping subquery subtrees: their references resolve against their own
// scopes first.
func columnRefs(e plan.Expr) []*plan.ColumnRef {
	var out []*plan.ColumnRef
	switch x := e.(type) {
	case *plan.ColumnRef:
		out = append(out, x)
	case *plan.Compare:
		out = append(out, columnRefs(x.Left)...)
		out = append(out, columnRefs(x.Right)...)
	case *plan.Arith:
		out = append(out, columnRefs(x.Left)...)
		out = append(out, columnRefs(x.Right)...)
	case *plan.And:
		out = append(out, columnRefs(x.Left)...)
		out = append(out, columnRefs(x.Right)...)
	case *plan.Or:
		out = append(out, columnRefs(x.Left)...)
		out = append(out, columnRefs(x.Right)...)
	case *plan.Not:
		out = append(out, columnRefs(x.Input)...)
	case *plan.IsNull:
		out = append(out, columnRefs(x.Input)...)
	case *plan.Case:
		for _, b := range x.Branches {
			out = append(out, columnRefs(b.When)...)
			out = append(out, columnRefs(b.Then)...)
		}
		if x.Else != nil {
			out = append(out, columnRefs(x.Else)...)
		}
	case *plan.InList:
		out = append(out, columnRefs(x.Input)...)
		for _, item := range x.Items {
			out = append(out, columnRefs(item)...)
		}
	case *plan.InSubquery:
		out = append(out, columnRefs(x.Input)...)
	case *plan.QuantSubquery:
		out = append(out, columnRefs(x.Input)...)
	}
	return out
}

// inferType determines an output column type where it is statically
// knowable; NullType marks a dynamically typed column.
func inferType(e plan.Expr, s types.Schema) types.ValueType {
	switch x := e.(type) {
	case *plan.Literal:
		return x.Value.Type
	case *plan.ColumnRef:
		if idx, err := s.Resolve(x.Table, x.Name); err == nil {
			return s[idx].Type
		}
		return types.NullType
	case *plan.Compare, *plan.And, *plan.Or, *plan.Not, *plan.IsNull,
		*plan.InList, *plan.Exists, *plan.InSubquery, *plan.QuantSubquery:
		return types.BoolType
	case *plan.Arith:
		lt := inferType(x.Left, s)
		rt := inferType(x.Right, s)
		if lt == types.IntType && rt == types.IntType {
			return types.IntType
		}
		if lt == types.NullType || rt == types.NullType {
			return types.NullType
		}
		return types.FloatType
	case *plan.Case:
		if len(x.Branches) > 0 {
			return inferType(x.Branches[0].Then, s)
		}
		if x.Else != nil {
			return inferType(x.Else, s)
		}
		return types.NullType
	default:
		return types.NullType
	}
}

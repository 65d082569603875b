package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// aggregateOp partitions its materialized input into groups by the GROUP
// BY value tuples (NULL equals NULL here, unlike equality comparison),
// computes one aggregate value set per group, then filters groups through
// HAVING. Grouping is order-independent; groups are emitted in first-seen
// order.
type aggregateOp struct {
	ec      *execCtx
	input   RowSource
	groupBy []plan.Field
	aggs    []plan.AggCall
	having  plan.Expr
	schema  types.Schema

	loaded bool
	out    []types.Row
	pos    int
}

func (e *Executor) buildAggregate(ec *execCtx, n *plan.Aggregate) (RowSource, error) {
	input, err := e.build(ec, n.Input)
	if err != nil {
		return nil, err
	}
	inSchema := input.Schema()

	schema := make(types.Schema, 0, len(n.GroupBy)+len(n.Aggs))
	for _, field := range n.GroupBy {
		schema = append(schema, types.Column{
			Name:     field.Alias,
			Type:     inferType(field.Expr, inSchema),
			Nullable: true,
		})
	}
	for _, agg := range n.Aggs {
		schema = append(schema, types.Column{
			Name:     agg.Alias,
			Type:     aggType(agg, inSchema),
			Nullable: true,
		})
	}

	if err := checkHaving(n.Having, schema, len(n.Aggs)); err != nil {
		return nil, err
	}
	return &aggregateOp{
		ec: ec, input: input,
		groupBy: n.GroupBy, aggs: n.Aggs, having: n.Having,
		schema: schema,
	}, nil
}

// checkHaving verifies HAVING only sees aggregate results: group-by
// output columns by alias, or aggregate slots.
func checkHaving(having plan.Expr, outSchema types.Schema, numAggs int) error {
	if having == nil {
		return nil
	}
	for _, ref := range columnRefs(having) {
		if outSchema.Count(ref.Table, ref.Name) == 0 {
			return fmt.Errorf("%w: HAVING references column %q which is neither grouped nor aggregated",
				types.ErrInvalidProjection, ref.Name)
		}
	}
	for _, ref := range aggRefs(having) {
		if ref.Index < 0 || ref.Index >= numAggs {
			return fmt.Errorf("%w: aggregate slot %d out of range", types.ErrInvalidProjection, ref.Index)
		}
	}
	return nil
}

func aggRefs(e plan.Expr) []*plan.AggRef {
	var out []*plan.AggRef
	switch x := e.(type) {
	case *plan.AggRef:
		out = append(out, x)
	case *plan.Compare:
		out = append(out, aggRefs(x.Left)...)
		out = append(out, aggRefs(x.Right)...)
	case *plan.Arith:
		out = append(out, aggRefs(x.Left)...)
		out = append(out, aggRefs(x.Right)...)
	case *plan.And:
		out = append(out, aggRefs(x.Left)...)
		out = append(out, aggRefs(x.Right)...)
	case *plan.Or:
		out = append(out, aggRefs(x.Left)...)
		out = append(out, aggRefs(x.Right)...)
	case *plan.Not:
		out = append(out, aggRefs(x.Input)...)
	case *plan.IsNull:
		out = append(out, aggRefs(x.Input)...)
	case *plan.Case:
		for _, b := range x.Branches {
			out = append(out, aggRefs(b.When)...)
			out = append(out, aggRefs(b.Then)...)
		}
		if x.Else != nil {
			out = append(out, aggRefs(x.Else)...)
		}
	case *plan.InList:
		out = append(out, aggRefs(x.Input)...)
		for _, item := range x.Items {
			out = append(out, aggRefs(item)...)
		}
	}
	return out
}

func aggType(agg plan.AggCall, in types.Schema) types.ValueType {
	switch agg.Fn {
	case plan.CountStar, plan.Count:
		return types.IntType
	case plan.Avg:
		return types.FloatType
	default:
		if agg.Arg == nil {
			return types.NullType
		}
		return inferType(agg.Arg, in)
	}
}

func (a *aggregateOp) Schema() types.Schema { return a.schema }

func (a *aggregateOp) Next() (types.Row, error) {
	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, err
		}
	}
	if err := a.ec.cancelled(); err != nil {
		return nil, err
	}
	if a.pos >= len(a.out) {
		return nil, nil
	}
	row := a.out[a.pos]
	a.pos++
	return row, nil
}

type groupAcc struct {
	keyVals []types.Value
	states  []aggState
}

func (a *aggregateOp) load() error {
	a.loaded = true
	inSchema := a.input.Schema()

	groups := make(map[string]*groupAcc)
	var order []string

	newGroup := func(keyVals []types.Value) *groupAcc {
		g := &groupAcc{keyVals: keyVals, states: make([]aggState, len(a.aggs))}
		for i, agg := range a.aggs {
			g.states[i] = newAggState(agg)
		}
		return g
	}

	// With no GROUP BY the whole input is one implicit group, present
	// even when the input is empty so COUNT(*) can return 0.
	if len(a.groupBy) == 0 {
		groups[""] = newGroup(nil)
		order = append(order, "")
	}

	for {
		if err := a.ec.cancelled(); err != nil {
			return err
		}
		row, err := a.input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}

		a.ec.env.push(inSchema, row)
		keyVals := make([]types.Value, len(a.groupBy))
		for i, field := range a.groupBy {
			keyVals[i], err = a.ec.eval(field.Expr)
			if err != nil {
				a.ec.env.pop()
				return err
			}
		}
		key := types.EncodeKey(keyVals)
		g, ok := groups[key]
		if !ok {
			g = newGroup(keyVals)
			groups[key] = g
			order = append(order, key)
		}
		for i, agg := range a.aggs {
			arg := types.Null()
			if agg.Arg != nil {
				arg, err = a.ec.eval(agg.Arg)
				if err != nil {
					a.ec.env.pop()
					return err
				}
			}
			if err := g.states[i].add(arg); err != nil {
				a.ec.env.pop()
				return err
			}
		}
		a.ec.env.pop()
	}

	for _, key := range order {
		g := groups[key]
		aggVals := make([]types.Value, len(a.aggs))
		for i, st := range g.states {
			aggVals[i] = st.result()
		}
		outRow := make(types.Row, 0, len(g.keyVals)+len(aggVals))
		outRow = append(outRow, g.keyVals...)
		outRow = append(outRow, aggVals...)

		if a.having != nil {
			a.ec.env.pushAgg(a.schema, outRow, aggVals)
			v, err := a.ec.evalBool(a.having)
			a.ec.env.pop()
			if err != nil {
				return err
			}
			if !isTrue(v) {
				continue
			}
		}
		a.out = append(a.out, outRow)
	}
	return nil
}

func (a *aggregateOp) Close() error { return a.input.Close() }

// aggState accumulates one aggregate over one group.
type aggState interface {
	add(types.Value) error
	result() types.Value
}

func newAggState(agg plan.AggCall) aggState {
	var st aggState
	switch agg.Fn {
	case plan.CountStar:
		st = &countStarState{}
	case plan.Count:
		st = &countState{}
	case plan.Sum:
		st = &sumState{}
	case plan.Avg:
		st = &avgState{}
	case plan.Min:
		st = &minMaxState{}
	case plan.Max:
		st = &minMaxState{max: true}
	default:
		st = &countStarState{}
	}
	if agg.Distinct && agg.Fn != plan.CountStar {
		st = &distinctState{inner: st, seen: make(map[string]struct{})}
	}
	return st
}

// countStarState counts rows regardless of NULL.
type countStarState struct {
	n int64
}

func (s *countStarState) add(types.Value) error { s.n++; return nil }
func (s *countStarState) result() types.Value   { return types.NewInt(s.n) }

// countState counts non-NULL values only.
type countState struct {
	n int64
}

func (s *countState) add(v types.Value) error {
	if !v.IsNull() {
		s.n++
	}
	return nil
}
func (s *countState) result() types.Value { return types.NewInt(s.n) }

// sumState ignores NULLs and stays integer until a float appears. A group
// with no non-NULL input sums to NULL, not zero.
type sumState struct {
	seen    bool
	isFloat bool
	i       int64
	f       float64
}

func (s *sumState) add(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	if !v.IsNumeric() {
		return fmt.Errorf("%w: SUM requires numeric input, got %s", types.ErrTypeMismatch, v.Type)
	}
	if !s.isFloat && v.Type == types.FloatType {
		s.isFloat = true
		s.f = float64(s.i)
	}
	if s.isFloat {
		s.f += v.AsFloat()
	} else {
		s.i += v.Int
	}
	s.seen = true
	return nil
}

func (s *sumState) result() types.Value {
	if !s.seen {
		return types.Null()
	}
	if s.isFloat {
		return types.NewFloat(s.f)
	}
	return types.NewInt(s.i)
}

// avgState ignores NULLs; a group whose every value is NULL averages to
// NULL, never zero.
type avgState struct {
	sum float64
	n   int64
}

func (s *avgState) add(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	if !v.IsNumeric() {
		return fmt.Errorf("%w: AVG requires numeric input, got %s", types.ErrTypeMismatch, v.Type)
	}
	s.sum += v.AsFloat()
	s.n++
	return nil
}

func (s *avgState) result() types.Value {
	if s.n == 0 {
		return types.Null()
	}
	return types.NewFloat(s.sum / float64(s.n))
}

type minMaxState struct {
	max  bool
	seen bool
	best types.Value
}

func (s *minMaxState) add(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	if !s.seen {
		s.best, s.seen = v, true
		return nil
	}
	c := types.SortCompare(v, s.best)
	if (s.max && c > 0) || (!s.max && c < 0) {
		s.best = v
	}
	return nil
}

func (s *minMaxState) result() types.Value {
	if !s.seen {
		return types.Null()
	}
	return s.best
}

// distinctState deduplicates non-NULL input values before the wrapped
// aggregate sees them.
type distinctState struct {
	inner aggState
	seen  map[string]struct{}
}

func (s *distinctState) add(v types.Value) error {
	if !v.IsNull() {
		key := types.EncodeKey([]types.Value{v})
		if _, dup := s.seen[key]; dup {
			return nil
		}
		s.seen[key] = struct{}{}
	}
	return s.inner.add(v)
}

func (s *distinctState) result() types.Value { return s.inner.result() }

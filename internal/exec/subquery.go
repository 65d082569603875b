package exec

import (
	"fmt"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// drainMemo runs a subplan to completion, memoizing the result by the
// plan node and the encoded outer bindings so a correlated subquery is
// executed once per distinct outer-row key. Memoization is bypassed while
// a recursive working set is bound: the same bindings name carries
// different rows on every iteration.
func (ec *execCtx) drainMemo(node plan.Node) ([]types.Row, types.Schema, error) {
	if len(ec.bindings) > 0 {
		return ec.drain(node)
	}
	key := ec.env.key()
	if byKey, ok := ec.memo[node]; ok {
		if entry, ok := byKey[key]; ok {
			return entry.rows, entry.schema, nil
		}
	}
	rows, schema, err := ec.drain(node)
	if err != nil {
		return nil, nil, err
	}
	if ec.memo[node] == nil {
		ec.memo[node] = make(map[string]memoEntry)
	}
	ec.memo[node][key] = memoEntry{rows: rows, schema: schema}
	return rows, schema, nil
}

func (ec *execCtx) evalScalarSubquery(x *plan.ScalarSubquery) (types.Value, error) {
	rows, schema, err := ec.drainMemo(x.Query)
	if err != nil {
		return types.Value{}, err
	}
	if len(schema) != 1 {
		return types.Value{}, fmt.Errorf("%w: scalar subquery must produce one column, got %d",
			types.ErrInvalidProjection, len(schema))
	}
	switch len(rows) {
	case 0:
		return types.Null(), nil
	case 1:
		return rows[0][0], nil
	default:
		return types.Value{}, fmt.Errorf("%w (%d rows)", types.ErrCardinality, len(rows))
	}
}

// evalExists stops at the first row; the subplan is never drained
// further than needed.
func (ec *execCtx) evalExists(x *plan.Exists) (types.Value, error) {
	src, err := ec.ex.build(ec, x.Query)
	if err != nil {
		return types.Value{}, err
	}
	defer src.Close()
	if err := ec.cancelled(); err != nil {
		return types.Value{}, err
	}
	row, err := src.Next()
	if err != nil {
		return types.Value{}, err
	}
	return types.NewBool((row != nil) != x.Negate), nil
}

func (ec *execCtx) evalInSubquery(x *plan.InSubquery) (types.Value, error) {
	input, err := ec.eval(x.Input)
	if err != nil {
		return types.Value{}, err
	}
	rows, schema, err := ec.drainMemo(x.Query)
	if err != nil {
		return types.Value{}, err
	}
	if len(schema) != 1 {
		return types.Value{}, fmt.Errorf("%w: IN subquery must produce one column, got %d",
			types.ErrInvalidProjection, len(schema))
	}
	set := make([]types.Value, len(rows))
	for i, row := range rows {
		set[i] = row[0]
	}
	return membership(input, set, x.Negate)
}

// evalQuantSubquery applies `input <op> ANY|ALL (subquery)` under
// three-valued logic. An empty result set makes ANY false and ALL true.
func (ec *execCtx) evalQuantSubquery(x *plan.QuantSubquery) (types.Value, error) {
	input, err := ec.eval(x.Input)
	if err != nil {
		return types.Value{}, err
	}
	rows, schema, err := ec.drainMemo(x.Query)
	if err != nil {
		return types.Value{}, err
	}
	if len(schema) != 1 {
		return types.Value{}, fmt.Errorf("%w: quantified subquery must produce one column, got %d",
			types.ErrInvalidProjection, len(schema))
	}
	anyNull := false
	for _, row := range rows {
		v, err := compareValues(x.Op, input, row[0])
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			anyNull = true
			continue
		}
		if x.All && !v.Bool {
			return types.NewBool(false), nil
		}
		if !x.All && v.Bool {
			return types.NewBool(true), nil
		}
	}
	if anyNull {
		return types.Null(), nil
	}
	return types.NewBool(x.All), nil
}

// buildDerived materializes the subplan and scans the result under the
// alias. Materialization goes through drainMemo, so two scans of the
// same derived node under the same outer bindings share one result
// while a derived table correlated to an ancestor row is re-evaluated
// per distinct outer key.
func (e *Executor) buildDerived(ec *execCtx, n *plan.Derived) (RowSource, error) {
	rows, schema, err := ec.drainMemo(n.Input)
	if err != nil {
		return nil, err
	}
	schema = schema.Qualify(n.Alias)
	rows = rows[:len(rows):len(rows)]
	return &tableScan{ec: ec, schema: schema, rows: rows}, nil
}

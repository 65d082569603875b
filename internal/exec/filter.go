package exec

import (
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// filterOp keeps input rows whose predicate is true; false and NULL both
// reject.
type filterOp struct {
	ec        *execCtx
	input     RowSource
	predicate plan.Expr
}

func (e *Executor) buildFilter(ec *execCtx, n *plan.Filter) (RowSource, error) {
	input, err := e.build(ec, n.Input)
	if err != nil {
		return nil, err
	}
	return &filterOp{ec: ec, input: input, predicate: n.Predicate}, nil
}

func (f *filterOp) Schema() types.Schema { return f.input.Schema() }

func (f *filterOp) Next() (types.Row, error) {
	for {
		if err := f.ec.cancelled(); err != nil {
			return nil, err
		}
		row, err := f.input.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		f.ec.env.push(f.input.Schema(), row)
		v, err := f.ec.evalBool(f.predicate)
		f.ec.env.pop()
		if err != nil {
			return nil, err
		}
		if isTrue(v) {
			return row, nil
		}
	}
}

func (f *filterOp) Close() error { return f.input.Close() }

package exec

import (
	"sort"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// sortOp materializes its input and emits it ordered by the sort keys.
// NULL sorts after every non-NULL value in both directions, consistent
// with index key order.
type sortOp struct {
	ec     *execCtx
	schema types.Schema
	rows   []types.Row
	pos    int
	loaded bool

	input RowSource
	keys  []plan.SortKey
}

func (e *Executor) buildSort(ec *execCtx, n *plan.Sort) (RowSource, error) {
	input, err := e.build(ec, n.Input)
	if err != nil {
		return nil, err
	}
	return &sortOp{ec: ec, schema: input.Schema(), input: input, keys: n.Keys}, nil
}

func (s *sortOp) Schema() types.Schema { return s.schema }

func (s *sortOp) Next() (types.Row, error) {
	if !s.loaded {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	if err := s.ec.cancelled(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sortOp) load() error {
	s.loaded = true
	rows, err := drainSource(s.ec, s.input)
	if err != nil {
		return err
	}
	keyVals := make([][]types.Value, len(rows))
	for i, row := range rows {
		keyVals[i], err = evalSortKeys(s.ec, s.schema, row, s.keys)
		if err != nil {
			return err
		}
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return compareSortKeys(keyVals[order[a]], keyVals[order[b]], s.keys) < 0
	})
	s.rows = make([]types.Row, len(rows))
	for i, idx := range order {
		s.rows[i] = rows[idx]
	}
	return nil
}

func (s *sortOp) Close() error { return s.input.Close() }

func evalSortKeys(ec *execCtx, schema types.Schema, row types.Row, keys []plan.SortKey) ([]types.Value, error) {
	vals := make([]types.Value, len(keys))
	ec.env.push(schema, row)
	defer ec.env.pop()
	for i, key := range keys {
		v, err := ec.eval(key.Expr)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func compareSortKeys(a, b []types.Value, keys []plan.SortKey) int {
	for i, key := range keys {
		c := types.SortCompare(a[i], b[i])
		if c == 0 {
			continue
		}
		// Descending order reverses value order but keeps NULL last.
		if key.Desc && !a[i].IsNull() && !b[i].IsNull() {
			c = -c
		}
		return c
	}
	return 0
}

// drainSource materializes a row source with cancellation checks.
func drainSource(ec *execCtx, src RowSource) ([]types.Row, error) {
	var rows []types.Row
	for {
		if err := ec.cancelled(); err != nil {
			return nil, err
		}
		row, err := src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

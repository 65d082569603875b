package exec

import (
	"sort"

	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

// windowOp materializes its input, computes every window call per row,
// and emits the input columns plus one column per call. Rows come out in
// the original input order regardless of any per-call ORDER BY.
type windowOp struct {
	ec       *execCtx
	input    RowSource
	calls    []plan.WindowCall
	inSchema types.Schema
	schema   types.Schema

	loaded bool
	out    []types.Row
	pos    int
}

func (e *Executor) buildWindow(ec *execCtx, n *plan.Window) (RowSource, error) {
	input, err := e.build(ec, n.Input)
	if err != nil {
		return nil, err
	}
	inSchema := input.Schema()
	schema := make(types.Schema, 0, len(inSchema)+len(n.Calls))
	schema = append(schema, inSchema...)
	for _, call := range n.Calls {
		schema = append(schema, types.Column{
			Name:     call.Alias,
			Type:     windowType(call, inSchema),
			Nullable: true,
		})
	}
	return &windowOp{ec: ec, input: input, calls: n.Calls, inSchema: inSchema, schema: schema}, nil
}

func windowType(call plan.WindowCall, in types.Schema) types.ValueType {
	switch call.Fn {
	case plan.RowNumber, plan.Rank, plan.DenseRank, plan.WinCount:
		return types.IntType
	case plan.WinAvg:
		return types.FloatType
	default:
		if call.Arg == nil {
			return types.NullType
		}
		return inferType(call.Arg, in)
	}
}

func (w *windowOp) Schema() types.Schema { return w.schema }

func (w *windowOp) Next() (types.Row, error) {
	if !w.loaded {
		if err := w.load(); err != nil {
			return nil, err
		}
	}
	if err := w.ec.cancelled(); err != nil {
		return nil, err
	}
	if w.pos >= len(w.out) {
		return nil, nil
	}
	row := w.out[w.pos]
	w.pos++
	return row, nil
}

func (w *windowOp) load() error {
	w.loaded = true
	rows, err := drainSource(w.ec, w.input)
	if err != nil {
		return err
	}
	results := make([][]types.Value, len(w.calls))
	for ci, call := range w.calls {
		if err := w.ec.cancelled(); err != nil {
			return err
		}
		results[ci], err = w.computeCall(call, rows)
		if err != nil {
			return err
		}
	}
	w.out = make([]types.Row, len(rows))
	for i, row := range rows {
		out := make(types.Row, 0, len(w.schema))
		out = append(out, row...)
		for ci := range w.calls {
			out = append(out, results[ci][i])
		}
		w.out[i] = out
	}
	return nil
}

// computeCall evaluates one window call across all rows, returning one
// value per original row index.
func (w *windowOp) computeCall(call plan.WindowCall, rows []types.Row) ([]types.Value, error) {
	// Partition by key tuple; partitions keep first-seen order, members
	// keep input order until the per-call sort.
	partitions := make(map[string][]int)
	var order []string
	for i, row := range rows {
		w.ec.env.push(w.inSchema, row)
		keyVals := make([]types.Value, len(call.PartitionBy))
		var err error
		for k, expr := range call.PartitionBy {
			keyVals[k], err = w.ec.eval(expr)
			if err != nil {
				w.ec.env.pop()
				return nil, err
			}
		}
		w.ec.env.pop()
		key := types.EncodeKey(keyVals)
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	out := make([]types.Value, len(rows))
	for _, key := range order {
		part := partitions[key]
		sortKeys := make([][]types.Value, len(part))
		if len(call.OrderBy) > 0 {
			for pi, ri := range part {
				vals, err := evalSortKeys(w.ec, w.inSchema, rows[ri], call.OrderBy)
				if err != nil {
					return nil, err
				}
				sortKeys[pi] = vals
			}
			perm := make([]int, len(part))
			for i := range perm {
				perm[i] = i
			}
			sort.SliceStable(perm, func(a, b int) bool {
				return compareSortKeys(sortKeys[perm[a]], sortKeys[perm[b]], call.OrderBy) < 0
			})
			ordered := make([]int, len(part))
			orderedKeys := make([][]types.Value, len(part))
			for i, p := range perm {
				ordered[i] = part[p]
				orderedKeys[i] = sortKeys[p]
			}
			part, sortKeys = ordered, orderedKeys
		}
		if err := w.evalPartition(call, rows, part, sortKeys, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// evalPartition fills out[ri] for every row index in one ordered
// partition.
func (w *windowOp) evalPartition(call plan.WindowCall, rows []types.Row, part []int, sortKeys [][]types.Value, out []types.Value) error {
	n := len(part)
	peersEqual := func(a, b int) bool {
		if len(call.OrderBy) == 0 {
			return true
		}
		return compareSortKeys(sortKeys[a], sortKeys[b], call.OrderBy) == 0
	}

	switch call.Fn {
	case plan.RowNumber:
		for pos, ri := range part {
			out[ri] = types.NewInt(int64(pos + 1))
		}

	case plan.Rank:
		// Peers share a rank; the next distinct key jumps past them.
		rank := 1
		for pos, ri := range part {
			if pos > 0 && !peersEqual(pos, pos-1) {
				rank = pos + 1
			}
			out[ri] = types.NewInt(int64(rank))
		}

	case plan.DenseRank:
		rank := 1
		for pos, ri := range part {
			if pos > 0 && !peersEqual(pos, pos-1) {
				rank++
			}
			out[ri] = types.NewInt(int64(rank))
		}

	case plan.Lead, plan.Lag:
		for pos, ri := range part {
			target := pos + call.Offset
			if call.Fn == plan.Lag {
				target = pos - call.Offset
			}
			if target >= 0 && target < n {
				v, err := w.evalAt(call.Arg, rows[part[target]])
				if err != nil {
					return err
				}
				out[ri] = v
				continue
			}
			if call.Default == nil {
				out[ri] = types.Null()
				continue
			}
			v, err := w.evalAt(call.Default, rows[ri])
			if err != nil {
				return err
			}
			out[ri] = v
		}

	default:
		for pos, ri := range part {
			start, end := frameRange(call, pos, n)
			st := newAggState(windowAggCall(call))
			for t := start; t <= end; t++ {
				arg := types.Null()
				if call.Arg != nil {
					v, err := w.evalAt(call.Arg, rows[part[t]])
					if err != nil {
						return err
					}
					arg = v
				}
				if err := st.add(arg); err != nil {
					return err
				}
			}
			out[ri] = st.result()
		}
	}
	return nil
}

func (w *windowOp) evalAt(expr plan.Expr, row types.Row) (types.Value, error) {
	w.ec.env.push(w.inSchema, row)
	defer w.ec.env.pop()
	return w.ec.eval(expr)
}

// frameRange resolves the ROWS frame of one call to inclusive partition
// positions, clamped to the partition. start > end means an empty frame.
// Without an explicit frame: partition start through the current row when
// an ORDER BY is present, the whole partition otherwise.
func frameRange(call plan.WindowCall, pos, n int) (int, int) {
	if call.Frame == nil {
		if len(call.OrderBy) > 0 {
			return 0, pos
		}
		return 0, n - 1
	}
	start := resolveBound(call.Frame.Start, pos, n)
	end := resolveBound(call.Frame.End, pos, n)
	if start < 0 {
		start = 0
	}
	if end > n-1 {
		end = n - 1
	}
	return start, end
}

func resolveBound(b plan.FrameBound, pos, n int) int {
	switch b.Type {
	case plan.UnboundedPreceding:
		return 0
	case plan.Preceding:
		return pos - b.Offset
	case plan.CurrentRow:
		return pos
	case plan.Following:
		return pos + b.Offset
	default: // UnboundedFollowing
		return n - 1
	}
}

// windowAggCall maps a framed window aggregate onto the grouped
// aggregate machinery.
func windowAggCall(call plan.WindowCall) plan.AggCall {
	fn := plan.CountStar
	switch call.Fn {
	case plan.WinSum:
		fn = plan.Sum
	case plan.WinAvg:
		fn = plan.Avg
	case plan.WinCount:
		fn = plan.Count
		if call.Arg == nil {
			fn = plan.CountStar
		}
	case plan.WinMin:
		fn = plan.Min
	case plan.WinMax:
		fn = plan.Max
	}
	return plan.AggCall{Fn: fn, Arg: call.Arg}
}

func (w *windowOp) Close() error { return w.input.Close() }

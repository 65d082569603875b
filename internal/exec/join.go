package exec

import (
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

func (e *Executor) buildJoin(ec *execCtx, n *plan.Join) (RowSource, error) {
	left, err := e.build(ec, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.build(ec, n.Right)
	if err != nil {
		return nil, err
	}

	// RIGHT OUTER delegates to LEFT OUTER with the operands swapped and
	// the projected column order re-swapped on the way out.
	if n.Kind == plan.RightJoin {
		innerWidth := len(right.Schema())
		src := e.newJoinSource(ec, plan.LeftJoin, n.On, right, left)
		return newSwapColumns(src, innerWidth), nil
	}
	return e.newJoinSource(ec, n.Kind, n.On, left, right), nil
}

func (e *Executor) newJoinSource(ec *execCtx, kind plan.JoinKind, on plan.Expr, left, right RowSource) RowSource {
	leftSchema, rightSchema := left.Schema(), right.Schema()
	schema := joinSchema(kind, leftSchema, rightSchema)

	if kind != plan.CrossJoin && e.hashJoin {
		if pairs := equiPairs(on, leftSchema, rightSchema); len(pairs) > 0 {
			e.log.Debugw("hash join", "query_id", ec.queryID, "kind", kind.String(), "keys", len(pairs))
			return &hashJoin{
				ec: ec, kind: kind, on: on, pairs: pairs,
				left: left, right: right,
				leftSchema: leftSchema, rightSchema: rightSchema, schema: schema,
			}
		}
	}
	return &nestedLoopJoin{
		ec: ec, kind: kind, on: on,
		left: left, right: right,
		leftSchema: leftSchema, rightSchema: rightSchema, schema: schema,
	}
}

// joinSchema concatenates the operand schemas, marking outer-padded sides
// nullable.
func joinSchema(kind plan.JoinKind, left, right types.Schema) types.Schema {
	l := make(types.Schema, len(left))
	copy(l, left)
	r := make(types.Schema, len(right))
	copy(r, right)
	if kind == plan.LeftJoin || kind == plan.FullJoin {
		for i := range r {
			r[i].Nullable = true
		}
	}
	if kind == plan.FullJoin {
		for i := range l {
			l[i].Nullable = true
		}
	}
	return l.Concat(r)
}

// nestedLoopJoin probes the condition row by row: the left side streams,
// the right side is materialized once and rescanned per left row. Output
// preserves left-row-then-right-row order.
type nestedLoopJoin struct {
	ec   *execCtx
	kind plan.JoinKind
	on   plan.Expr

	left        RowSource
	right       RowSource
	leftSchema  types.Schema
	rightSchema types.Schema
	schema      types.Schema

	loaded       bool
	rightRows    []types.Row
	matchedRight []bool

	cur        types.Row
	curMatched bool
	rightPos   int
	extraPos   int
	leftDone   bool
}

func (j *nestedLoopJoin) Schema() types.Schema { return j.schema }

func (j *nestedLoopJoin) Next() (types.Row, error) {
	if !j.loaded {
		rows, err := drainSource(j.ec, j.right)
		if err != nil {
			return nil, err
		}
		j.rightRows = rows
		j.matchedRight = make([]bool, len(rows))
		j.loaded = true
	}
	for {
		if err := j.ec.cancelled(); err != nil {
			return nil, err
		}
		if j.leftDone {
			return j.nextUnmatchedRight()
		}
		if j.cur == nil {
			row, err := j.left.Next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				j.leftDone = true
				continue
			}
			j.cur = row
			j.curMatched = false
			j.rightPos = 0
		}
		for j.rightPos < len(j.rightRows) {
			rightRow := j.rightRows[j.rightPos]
			idx := j.rightPos
			j.rightPos++
			combined := j.cur.Concat(rightRow)
			if j.kind == plan.CrossJoin {
				return combined, nil
			}
			ok, err := j.conditionHolds(combined)
			if err != nil {
				return nil, err
			}
			if ok {
				j.curMatched = true
				j.matchedRight[idx] = true
				return combined, nil
			}
		}
		// Right side exhausted for this left row.
		left := j.cur
		matched := j.curMatched
		j.cur = nil
		if !matched && (j.kind == plan.LeftJoin || j.kind == plan.FullJoin) {
			return left.Concat(nullRow(len(j.rightSchema))), nil
		}
	}
}

// nextUnmatchedRight emits the right rows no left row matched, null-padded
// on the left. Matched pairs already appeared exactly once during the
// probe phase.
func (j *nestedLoopJoin) nextUnmatchedRight() (types.Row, error) {
	if j.kind != plan.FullJoin {
		return nil, nil
	}
	for j.extraPos < len(j.rightRows) {
		idx := j.extraPos
		j.extraPos++
		if !j.matchedRight[idx] {
			return nullRow(len(j.leftSchema)).Concat(j.rightRows[idx]), nil
		}
	}
	return nil, nil
}

func (j *nestedLoopJoin) conditionHolds(combined types.Row) (bool, error) {
	if j.on == nil {
		return true, nil
	}
	j.ec.env.push(j.schema, combined)
	v, err := j.ec.evalBool(j.on)
	j.ec.env.pop()
	if err != nil {
		return false, err
	}
	return isTrue(v), nil
}

func (j *nestedLoopJoin) Close() error {
	j.rightRows = nil
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// equiPair is one `left column = right column` conjunct of a join
// condition.
type equiPair struct {
	left  *plan.ColumnRef
	right *plan.ColumnRef
}

// equiPairs extracts the hash-joinable equality conjuncts: comparisons
// between a column of the left schema and a column of the right schema.
func equiPairs(on plan.Expr, left, right types.Schema) []equiPair {
	var pairs []equiPair
	for _, conjunct := range conjuncts(on) {
		cmp, ok := conjunct.(*plan.Compare)
		if !ok || cmp.Op != plan.Eq {
			continue
		}
		a, aok := cmp.Left.(*plan.ColumnRef)
		b, bok := cmp.Right.(*plan.ColumnRef)
		if !aok || !bok {
			continue
		}
		switch {
		case refIn(a, left) && refIn(b, right):
			pairs = append(pairs, equiPair{left: a, right: b})
		case refIn(b, left) && refIn(a, right):
			pairs = append(pairs, equiPair{left: b, right: a})
		}
	}
	return pairs
}

func refIn(ref *plan.ColumnRef, s types.Schema) bool {
	return s.Count(ref.Table, ref.Name) == 1
}

// hashJoin materializes both sides, builds a hash table on the smaller
// one keyed by the equality columns, and probes from the other. NULL keys
// never enter the table and never probe, consistent with three-valued
// equality. Output row order is unspecified.
type hashJoin struct {
	ec    *execCtx
	kind  plan.JoinKind
	on    plan.Expr
	pairs []equiPair

	left        RowSource
	right       RowSource
	leftSchema  types.Schema
	rightSchema types.Schema
	schema      types.Schema

	loaded bool
	out    []types.Row
	pos    int
}

func (j *hashJoin) Schema() types.Schema { return j.schema }

func (j *hashJoin) Next() (types.Row, error) {
	if !j.loaded {
		if err := j.load(); err != nil {
			return nil, err
		}
	}
	if err := j.ec.cancelled(); err != nil {
		return nil, err
	}
	if j.pos >= len(j.out) {
		return nil, nil
	}
	row := j.out[j.pos]
	j.pos++
	return row, nil
}

func (j *hashJoin) load() error {
	j.loaded = true
	leftRows, err := drainSource(j.ec, j.left)
	if err != nil {
		return err
	}
	rightRows, err := drainSource(j.ec, j.right)
	if err != nil {
		return err
	}

	leftKeys := make([]*plan.ColumnRef, len(j.pairs))
	rightKeys := make([]*plan.ColumnRef, len(j.pairs))
	for i, p := range j.pairs {
		leftKeys[i] = p.left
		rightKeys[i] = p.right
	}

	buildLeft := len(leftRows) <= len(rightRows)
	var buildRows, probeRows []types.Row
	var buildSchema, probeSchema types.Schema
	var buildKeys, probeKeys []*plan.ColumnRef
	if buildLeft {
		buildRows, probeRows = leftRows, rightRows
		buildSchema, probeSchema = j.leftSchema, j.rightSchema
		buildKeys, probeKeys = leftKeys, rightKeys
	} else {
		buildRows, probeRows = rightRows, leftRows
		buildSchema, probeSchema = j.rightSchema, j.leftSchema
		buildKeys, probeKeys = rightKeys, leftKeys
	}

	table := make(map[string][]int, len(buildRows))
	for i, row := range buildRows {
		key, ok, err := j.keyFor(buildSchema, row, buildKeys)
		if err != nil {
			return err
		}
		if ok {
			table[key] = append(table[key], i)
		}
	}

	matchedBuild := make([]bool, len(buildRows))
	matchedProbe := make([]bool, len(probeRows))
	for pi, probeRow := range probeRows {
		if err := j.ec.cancelled(); err != nil {
			return err
		}
		key, ok, err := j.keyFor(probeSchema, probeRow, probeKeys)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, bi := range table[key] {
			var combined types.Row
			if buildLeft {
				combined = buildRows[bi].Concat(probeRow)
			} else {
				combined = probeRow.Concat(buildRows[bi])
			}
			holds, err := j.conditionHolds(combined)
			if err != nil {
				return err
			}
			if holds {
				matchedBuild[bi] = true
				matchedProbe[pi] = true
				j.out = append(j.out, combined)
			}
		}
	}

	matchedLeft, matchedRight := matchedBuild, matchedProbe
	if !buildLeft {
		matchedLeft, matchedRight = matchedProbe, matchedBuild
	}
	if j.kind == plan.LeftJoin || j.kind == plan.FullJoin {
		for i, row := range leftRows {
			if !matchedLeft[i] {
				j.out = append(j.out, row.Concat(nullRow(len(j.rightSchema))))
			}
		}
	}
	if j.kind == plan.FullJoin {
		for i, row := range rightRows {
			if !matchedRight[i] {
				j.out = append(j.out, nullRow(len(j.leftSchema)).Concat(row))
			}
		}
	}
	return nil
}

// keyFor encodes a row's equality key; ok is false when any key column is
// NULL, which excludes the row from equality matching entirely.
func (j *hashJoin) keyFor(schema types.Schema, row types.Row, keys []*plan.ColumnRef) (string, bool, error) {
	vals := make([]types.Value, len(keys))
	for i, ref := range keys {
		idx, err := schema.Resolve(ref.Table, ref.Name)
		if err != nil {
			return "", false, err
		}
		v := row[idx]
		if v.IsNull() {
			return "", false, nil
		}
		vals[i] = v
	}
	return types.EncodeKey(vals), true, nil
}

func (j *hashJoin) conditionHolds(combined types.Row) (bool, error) {
	if j.on == nil {
		return true, nil
	}
	j.ec.env.push(j.schema, combined)
	v, err := j.ec.evalBool(j.on)
	j.ec.env.pop()
	if err != nil {
		return false, err
	}
	return isTrue(v), nil
}

func (j *hashJoin) Close() error {
	j.out = nil
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// swapColumns re-orders the output of a delegated RIGHT OUTER join from
// (right, left) back to (left, right).
type swapColumns struct {
	src        RowSource
	innerWidth int // width of the delegated join's left side
	schema     types.Schema
}

func newSwapColumns(src RowSource, innerWidth int) *swapColumns {
	inner := src.Schema()
	schema := inner[innerWidth:].Concat(inner[:innerWidth])
	return &swapColumns{src: src, innerWidth: innerWidth, schema: schema}
}

func (s *swapColumns) Schema() types.Schema { return s.schema }

func (s *swapColumns) Next() (types.Row, error) {
	row, err := s.src.Next()
	if err != nil || row == nil {
		return nil, err
	}
	return row[s.innerWidth:].Concat(row[:s.innerWidth]), nil
}

func (s *swapColumns) Close() error { return s.src.Close() }

func nullRow(n int) types.Row {
	row := make(types.Row, n)
	for i := range row {
		row[i] = types.Null()
	}
	return row
}
